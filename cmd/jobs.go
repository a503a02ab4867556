package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/memberscope/internal/statestore"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage stored pipeline jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "jobs: open store")
		}
		defer store.Close()

		jobs, err := store.ListJobs(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "jobs: list")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "JOB ID\tPHASE\tASSOCIATIONS\tUPDATED")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				j.JobID, j.CurrentPhase, len(j.AssociationCodes),
				j.UpdatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show the full state of one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "jobs: open store")
		}
		defer store.Close()

		state, err := store.LoadState(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "jobs: load %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	},
}

var jobsCheckpointsCmd = &cobra.Command{
	Use:   "checkpoints <job-id>",
	Short: "List the checkpoint history of one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "jobs: open store")
		}
		defer store.Close()

		checkpoints, err := store.ListCheckpoints(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrapf(err, "jobs: checkpoints %s", args[0])
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PHASE\tQUEUE\tVISITED\tCOMPANIES\tENTITIES\tERRORS\tCREATED")
		for _, cp := range checkpoints {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				cp.Phase, cp.QueueDepth,
				cp.Counters.URLsVisited, cp.Counters.CompaniesExtracted,
				cp.Counters.EntitiesResolved, cp.Counters.Errors,
				cp.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job and its checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "jobs: open store")
		}
		defer store.Close()

		if err := store.DeleteJob(cmd.Context(), args[0]); err != nil {
			if eris.Is(err, statestore.ErrNotFound) {
				return eris.Errorf("jobs: no job %s", args[0])
			}
			return eris.Wrapf(err, "jobs: delete %s", args[0])
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsCheckpointsCmd, jobsDeleteCmd)
	rootCmd.AddCommand(jobsCmd)
}
