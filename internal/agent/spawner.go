package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/memberscope/internal/model"
)

// Spawner executes task units against a static registry, converting every
// task fault (timeout, returned error, panic) into a failure result. Callers
// never receive a raised fault for a task that was successfully dispatched.
type Spawner struct {
	registry *Registry
}

// NewSpawner creates a spawner over the given registry.
func NewSpawner(registry *Registry) *Spawner {
	return &Spawner{registry: registry}
}

// Spawn executes one task under a timeout. A registry miss fails fast with an
// error; everything after dispatch comes back as a TaskResult.
func (s *Spawner) Spawn(ctx context.Context, taskType string, task model.Task, timeout time.Duration) (*model.TaskResult, error) {
	a, err := s.registry.Get(taskType)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, a, task, timeout), nil
}

// SpawnMany fans one task per entry of tasks out under a concurrency cap.
// Results are returned in input order regardless of completion order, one per
// task; per-task faults never cancel siblings. The aggregate summary logged
// here is the only per-batch accounting.
func (s *Spawner) SpawnMany(ctx context.Context, taskType string, tasks []model.Task, maxConcurrent int, timeout time.Duration) ([]*model.TaskResult, error) {
	a, err := s.registry.Get(taskType)
	if err != nil {
		return nil, err
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	results := make([]*model.TaskResult, len(tasks))

	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			results[i] = s.run(ctx, a, task, timeout)
			return nil
		})
	}
	_ = g.Wait()

	var successes, failures, records int
	for _, r := range results {
		if r.Success {
			successes++
		} else {
			failures++
		}
		records += r.RecordsProcessed
	}
	zap.L().Info("spawn batch complete",
		zap.String("task_type", taskType),
		zap.Int("tasks", len(tasks)),
		zap.Int("successes", successes),
		zap.Int("failures", failures),
		zap.Int("records_processed", records),
	)

	return results, nil
}

// run executes the agent under a watchdog: the agent runs in its own
// goroutine with panic recovery while run selects on completion or deadline.
type outcome struct {
	res      *model.TaskResult
	err      error
	panicked bool
}

func (s *Spawner) run(ctx context.Context, a Agent, task model.Task, timeout time.Duration) *model.TaskResult {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("%v", r), panicked: true}
			}
		}()
		res, execErr := a.Execute(runCtx, task)
		ch <- outcome{res: res, err: execErr}
	}()

	select {
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return model.FailedResult("timeout", fmt.Sprintf("timeout after %ds", int(timeout.Seconds())))
		}
		return model.FailedResult("cancelled", runCtx.Err().Error())
	case o := <-ch:
		switch {
		case o.panicked:
			zap.L().Warn("task panicked",
				zap.String("task_type", a.Type()),
				zap.String("url", task.URL),
				zap.Error(o.err),
			)
			return model.FailedResult("panic", o.err.Error())
		case o.err != nil:
			return model.FailedResult(errTypeName(o.err), o.err.Error())
		case o.res == nil:
			return model.FailedResult("nil_result", "agent returned no result")
		default:
			return o.res
		}
	}
}

// errTypeName reports the concrete type of the root cause, for the
// error_type field of failure results.
func errTypeName(err error) string {
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	if errors.Is(root, context.DeadlineExceeded) {
		return "timeout"
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", root), "*")
}
