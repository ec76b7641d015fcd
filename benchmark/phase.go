package benchmark

// Phase is a state of the benchmark controller.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWarmup
	PhaseSilence
	PhaseStabilizationReset
	PhaseMeasurement
	PhaseDone
	PhaseAborted
)

var phaseNames = [...]string{
	PhaseIdle:               "idle",
	PhaseWarmup:             "warmup",
	PhaseSilence:            "silence",
	PhaseStabilizationReset: "stabilization_reset",
	PhaseMeasurement:        "measurement",
	PhaseDone:               "done",
	PhaseAborted:            "aborted",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Terminal reports whether no further transition can happen from p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseAborted
}
