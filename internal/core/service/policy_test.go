package service

import (
	"testing"

	"github.com/berfenger/exportlimit/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func known(w float64) domain.LimitState {
	return domain.LimitState{LastAppliedW: w, Known: true}
}

func TestImportReleasesToMaximum(t *testing.T) {
	cfg := testConfig().Limit
	for _, reading := range []float64{0, -1, -300, -15000} {
		for _, state := range []domain.LimitState{{}, known(500), known(9000), known(15000)} {
			d := ComputeTarget(reading, cfg, state)
			assert.Equal(t, cfg.MaxExportW, d.TargetW, "reading %v previous %+v", reading, state)
			assert.Equal(t, BranchImporting, d.Branch)
		}
	}
}

func TestWithinBoundReleasesToMaximum(t *testing.T) {
	cfg := testConfig().Limit
	for _, reading := range []float64{1, 10000, 14999, cfg.MaxExportW} {
		d := ComputeTarget(reading, cfg, known(7000))
		assert.Equal(t, cfg.MaxExportW, d.TargetW)
		assert.Equal(t, BranchWithin, d.Branch)
		assert.True(t, d.Change)
	}
}

func TestOverLimitFormula(t *testing.T) {
	cfg := testConfig().Limit
	for _, reading := range []float64{15001, 16000, 18000, 30000, 100000} {
		for _, previous := range []float64{500, 4000, 13000, 15000} {
			d := ComputeTarget(reading, cfg, known(previous))
			expected := max(cfg.MinOutputW, previous-(reading-cfg.MaxExportW)-cfg.ReserveMarginW)
			assert.Equal(t, expected, d.TargetW)
			assert.GreaterOrEqual(t, d.TargetW, cfg.MinOutputW)
			assert.Equal(t, BranchOverLimit, d.Branch)
		}
	}
}

func TestScenarioAImporting(t *testing.T) {
	d := ComputeTarget(-300, testConfig().Limit, domain.LimitState{})
	assert.Equal(t, 15000.0, d.TargetW)
}

func TestScenarioBWithinBound(t *testing.T) {
	d := ComputeTarget(10000, testConfig().Limit, domain.LimitState{})
	assert.Equal(t, 15000.0, d.TargetW)
}

func TestScenarioCOverLimit(t *testing.T) {
	d := ComputeTarget(18000, testConfig().Limit, known(15000))
	assert.Equal(t, 11500.0, d.TargetW)
	assert.True(t, d.Change)
}

func TestUnknownPreviousCountsAsMaximum(t *testing.T) {
	cfg := testConfig().Limit
	assert.Equal(t, ComputeTarget(18000, cfg, known(15000)), ComputeTarget(18000, cfg, domain.LimitState{}))
	// released and unknown: nothing to write
	assert.False(t, ComputeTarget(-300, cfg, domain.LimitState{}).Change)
}

func TestNoChangeWhenTargetNotLower(t *testing.T) {
	cfg := testConfig().Limit
	// already at the floor
	d := ComputeTarget(20000, cfg, known(cfg.MinOutputW))
	assert.Equal(t, cfg.MinOutputW, d.TargetW)
	assert.False(t, d.Change)

	// released and already released
	d = ComputeTarget(5000, cfg, known(cfg.MaxExportW))
	assert.False(t, d.Change)
}

func TestPerPhaseTruncates(t *testing.T) {
	assert.Equal(t, 3833.0, PerPhase(11500, 3))
	assert.Equal(t, 5000.0, PerPhase(15000, 3))
	assert.Equal(t, 4333.0, PerPhase(13000, 3))
	assert.Equal(t, 11500.0, PerPhase(11500.7, 1))

	for _, total := range []float64{500, 1001, 9500, 14999} {
		assert.LessOrEqual(t, PerPhase(total, 3)*3, total, "never over-allocated")
	}
}
