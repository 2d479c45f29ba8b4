package domain

import "fmt"

type Stage string

const (
	StageReading   Stage = "reading"
	StageComputing Stage = "computing"
	StageRamping   Stage = "ramping"
	StageWriting   Stage = "writing"
	StageTimeout   Stage = "timeout"
)

type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeDegraded Outcome = "degraded"
	OutcomeNoChange Outcome = "no_change"
	OutcomeFailed   Outcome = "failed"
)

// Applied describes the strategy that accepted a write.
type Applied struct {
	Strategy string
	ValueW   float64
	Phases   int
	PhasesOK int
	Degraded bool
	Release  bool
}

// Report is the observable result of one control iteration.
type Report struct {
	Outcome Outcome
	// Stage where a failed iteration stopped. Empty otherwise.
	FailedStage Stage
	Reading     *PowerReading
	RawTargetW  float64
	TargetW     float64
	Applied     *Applied
	State       LimitState
	Err         error
}

func (r Report) String() string {
	switch r.Outcome {
	case OutcomeFailed:
		if r.FailedStage == "" {
			return fmt.Sprintf("failed: %v", r.Err)
		}
		return fmt.Sprintf("failed at %s: %v", r.FailedStage, r.Err)
	case OutcomeNoChange:
		return fmt.Sprintf("no change (raw target %.0f W)", r.RawTargetW)
	default:
		return fmt.Sprintf("%s %.0f W via %s", r.Outcome, r.TargetW, r.Applied.Strategy)
	}
}
