package model

// PipelinePhase is one stage of the fixed pipeline order.
type PipelinePhase string

const (
	PhaseInit           PipelinePhase = "init"
	PhaseGatekeeper     PipelinePhase = "gatekeeper"
	PhaseDiscovery      PipelinePhase = "discovery"
	PhaseClassification PipelinePhase = "classification"
	PhaseExtraction     PipelinePhase = "extraction"
	PhaseEnrichment     PipelinePhase = "enrichment"
	PhaseValidation     PipelinePhase = "validation"
	PhaseResolution     PipelinePhase = "resolution"
	PhaseGraph          PipelinePhase = "graph"
	PhaseExport         PipelinePhase = "export"
	PhaseMonitor        PipelinePhase = "monitor"
	PhaseDone           PipelinePhase = "done"
	PhaseFailed         PipelinePhase = "failed"
)

// phaseOrder is the linear execution order. DONE and FAILED are terminal and
// never appear as transition sources.
var phaseOrder = []PipelinePhase{
	PhaseInit,
	PhaseGatekeeper,
	PhaseDiscovery,
	PhaseClassification,
	PhaseExtraction,
	PhaseEnrichment,
	PhaseValidation,
	PhaseResolution,
	PhaseGraph,
	PhaseExport,
	PhaseMonitor,
	PhaseDone,
}

// phaseIndex maps each phase to its position in phaseOrder.
var phaseIndex = func() map[PipelinePhase]int {
	m := make(map[PipelinePhase]int, len(phaseOrder))
	for i, p := range phaseOrder {
		m[p] = i
	}
	return m
}()

// PhaseOrder returns a copy of the linear phase order.
func PhaseOrder() []PipelinePhase {
	out := make([]PipelinePhase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// Terminal reports whether p is a terminal phase.
func (p PipelinePhase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Valid reports whether p is a known phase value.
func (p PipelinePhase) Valid() bool {
	if p == PhaseFailed {
		return true
	}
	_, ok := phaseIndex[p]
	return ok
}

// Next returns the phase following p in the fixed order. The second return is
// false when p is terminal or unknown. When skipMonitor is set, EXPORT
// advances directly to DONE.
func (p PipelinePhase) Next(skipMonitor bool) (PipelinePhase, bool) {
	if p.Terminal() {
		return "", false
	}
	i, ok := phaseIndex[p]
	if !ok || i+1 >= len(phaseOrder) {
		return "", false
	}
	if skipMonitor && p == PhaseExport {
		return PhaseDone, true
	}
	return phaseOrder[i+1], true
}

// CanTransition reports whether a transition from p to next is legal: the
// immediate successor in the fixed order, the EXPORT→DONE shortcut, or the
// jump to FAILED from any non-terminal phase.
func (p PipelinePhase) CanTransition(next PipelinePhase) bool {
	if p.Terminal() {
		return false
	}
	if next == PhaseFailed {
		return true
	}
	if p == PhaseExport && next == PhaseDone {
		return true
	}
	i, ok := phaseIndex[p]
	if !ok {
		return false
	}
	j, ok := phaseIndex[next]
	if !ok {
		return false
	}
	return j == i+1
}
