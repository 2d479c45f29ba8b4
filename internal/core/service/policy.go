package service

import (
	"math"

	"github.com/berfenger/exportlimit/internal/config"
	"github.com/berfenger/exportlimit/internal/core/domain"
)

type Branch string

const (
	BranchImporting Branch = "importing"
	BranchWithin    Branch = "within_bound"
	BranchOverLimit Branch = "over_limit"
)

type Decision struct {
	TargetW float64
	// Change is false when actuation must be skipped
	Change bool
	Branch Branch
}

// ComputeTarget returns the output limit for an export reading (positive = exporting).
// An unknown previous limit counts as cfg.MaxExportW.
//
// Over the bound the limit only ever goes down: a target that is not strictly
// below the previous limit is no change. Within the bound the limit is
// released to cfg.MaxExportW, which is no change once it is already there.
func ComputeTarget(readingW float64, cfg config.LimitConfig, state domain.LimitState) Decision {
	previous := state.Previous(cfg.MaxExportW)

	if readingW <= cfg.MaxExportW {
		branch := BranchWithin
		if readingW <= 0 {
			branch = BranchImporting
		}
		return Decision{
			TargetW: cfg.MaxExportW,
			Change:  previous != cfg.MaxExportW,
			Branch:  branch,
		}
	}

	target := math.Max(cfg.MinOutputW, previous-(readingW-cfg.MaxExportW)-cfg.ReserveMarginW)
	return Decision{
		TargetW: target,
		Change:  target < previous,
		Branch:  BranchOverLimit,
	}
}

// PerPhase splits a total limit evenly across phases. The remainder is dropped.
func PerPhase(totalW float64, phases int) float64 {
	if phases <= 1 {
		return math.Trunc(totalW)
	}
	return float64(int64(totalW) / int64(phases))
}
