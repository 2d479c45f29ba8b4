package service

import (
	"sync"
	"testing"

	"github.com/berfenger/exportlimit/internal/adapter/bus"
	"github.com/berfenger/exportlimit/internal/config"
	"github.com/berfenger/exportlimit/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newController(b *bus.MemoryBus, cfg config.Config) *Controller {
	return NewController(b, cfg, testLogger)
}

func stateAt(w float64) IterationContext {
	ictx := NewIterationContext()
	ictx.Limit = domain.LimitState{LastAppliedW: w, Known: true, TargetW: w}
	return ictx
}

func TestScenarioAImportingAtStartup(t *testing.T) {
	b := newSiteBus(-300)
	next, report := newController(b, testConfig()).Iterate(NewIterationContext())
	assert.Equal(t, domain.OutcomeNoChange, report.Outcome)
	assert.Equal(t, 15000.0, report.RawTargetW)
	assert.Empty(t, b.Writes(), "already unconstrained")
	assert.False(t, next.Limit.Known)
}

func TestScenarioBReleasesAfterLimit(t *testing.T) {
	b := newSiteBus(10000)
	next, report := newController(b, testConfig()).Iterate(stateAt(13000))
	require.Equal(t, domain.OutcomeApplied, report.Outcome, report.String())
	assert.Equal(t, 15000.0, report.RawTargetW)
	assert.Equal(t, 15000.0, report.TargetW)
	assert.Equal(t, 15000.0, next.Limit.LastAppliedW)
}

func TestScenarioCRampsDown(t *testing.T) {
	b := newSiteBus(18000)
	next, report := newController(b, testConfig()).Iterate(stateAt(15000))
	require.Equal(t, domain.OutcomeApplied, report.Outcome, report.String())
	assert.Equal(t, 11500.0, report.RawTargetW)
	assert.Equal(t, 13000.0, report.TargetW)
	assert.Empty(t, report.FailedStage)
	assert.Equal(t, domain.LimitState{LastAppliedW: 13000, Known: true, TargetW: 11500}, next.Limit)
	v, _ := b.Value(VEBUS_SVC, PATH_PRIMARY)
	assert.Equal(t, 13000.0, v)
}

func TestScenarioCFromUnknownState(t *testing.T) {
	b := newSiteBus(18000)
	next, report := newController(b, testConfig()).Iterate(NewIterationContext())
	require.Equal(t, domain.OutcomeApplied, report.Outcome)
	assert.Equal(t, 13000.0, next.Limit.LastAppliedW)
}

func TestScenarioDConverges(t *testing.T) {
	b := newSiteBus(18000)
	_, report := newController(b, testConfig()).Iterate(stateAt(13000))
	require.Equal(t, domain.OutcomeApplied, report.Outcome)
	assert.Equal(t, 9500.0, report.RawTargetW)
	assert.Equal(t, 11000.0, report.TargetW)
}

func TestScenarioEAllStrategiesFail(t *testing.T) {
	b := newSiteBus(18000)
	b.FailWrites(VEBUS_SVC, PATH_PRIMARY, true)
	b.FailWrites(SETTINGS_SVC, PATH_ALTERNATE, true)
	failPhases(b, 3)
	ictx := stateAt(15000)

	next, report := newController(b, testConfig()).Iterate(ictx)
	assert.Equal(t, domain.OutcomeFailed, report.Outcome)
	assert.Equal(t, domain.StageWriting, report.FailedStage)
	assert.ErrorIs(t, report.Err, domain.ErrAllStrategiesFailed)
	assert.Equal(t, ictx.Limit, next.Limit, "limit state untouched")
	assert.Equal(t, 13000.0, report.TargetW)
	_, ok := next.Endpoints.Get(domain.RoleInverter)
	assert.False(t, ok)
}

func TestSteadyStateIsIdempotent(t *testing.T) {
	b := newSiteBus(5000)
	controller := newController(b, testConfig())
	ictx := NewIterationContext()
	for i := 0; i < 5; i++ {
		var report domain.Report
		ictx, report = controller.Iterate(ictx)
		assert.Equal(t, domain.OutcomeNoChange, report.Outcome)
	}
	assert.Empty(t, b.Writes())
}

func TestConvergesToFloorThenHolds(t *testing.T) {
	b := newSiteBus(30000)
	controller := newController(b, testConfig())
	ictx := stateAt(15000)
	var limits []float64
	for i := 0; i < 10; i++ {
		var report domain.Report
		ictx, report = controller.Iterate(ictx)
		require.NotEqual(t, domain.OutcomeFailed, report.Outcome)
		limits = append(limits, ictx.Limit.LastAppliedW)
	}
	assert.Equal(t, []float64{13000, 11000, 9000, 7000, 5000, 3000, 1000, 500, 500, 500}, limits)
	assert.Len(t, b.Writes(), 8)
}

func TestReadFailureKeepsState(t *testing.T) {
	b := bus.NewMemoryBus()
	ictx := stateAt(9000)
	next, report := newController(b, testConfig()).Iterate(ictx)
	assert.Equal(t, domain.OutcomeFailed, report.Outcome)
	assert.Equal(t, domain.StageReading, report.FailedStage)
	assert.ErrorIs(t, report.Err, domain.ErrDeviceNotFound)
	assert.Equal(t, ictx.Limit, next.Limit)
}

func TestDegradedWriteUpdatesState(t *testing.T) {
	b := newSiteBus(18000)
	b.Remove(VEBUS_SVC, PATH_PRIMARY)
	b.Remove(SETTINGS_SVC, PATH_ALTERNATE)
	failPhases(b, 1)
	next, report := newController(b, testConfig()).Iterate(stateAt(15000))
	assert.Equal(t, domain.OutcomeDegraded, report.Outcome)
	assert.Equal(t, 13000.0, next.Limit.LastAppliedW)
}

func TestExplicitReleaseRemovesLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Actuation.ExplicitRelease = true
	b := newSiteBus(-200)
	next, report := newController(b, cfg).Iterate(stateAt(14000))
	require.Equal(t, domain.OutcomeApplied, report.Outcome)
	require.NotNil(t, report.Applied)
	assert.True(t, report.Applied.Release)
	v, _ := b.Value(VEBUS_SVC, PATH_PRIMARY)
	assert.Equal(t, -1.0, v)
	assert.Equal(t, 15000.0, next.Limit.LastAppliedW)
}

type panickingBus struct {
	*bus.MemoryBus
}

func (b *panickingBus) Write(serviceID, path string, value float64) error {
	panic("driver crashed")
}

func TestPanicIsReported(t *testing.T) {
	b := newSiteBus(18000)
	ictx := stateAt(15000)
	next, report := NewController(&panickingBus{MemoryBus: b}, testConfig(), testLogger).Iterate(ictx)
	assert.Equal(t, domain.OutcomeFailed, report.Outcome)
	assert.Equal(t, domain.StageWriting, report.FailedStage)
	assert.ErrorContains(t, report.Err, "driver crashed")
	assert.Equal(t, ictx.Limit, next.Limit)
}

func TestLoopSerializesIterations(t *testing.T) {
	b := newSiteBus(30000)
	loop := NewLoop(newController(b, testConfig()))
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop.RunOnce()
		}()
	}
	wg.Wait()
	// 15000 -> 13000 -> 11000 -> 9000 -> 7000, one step per iteration
	assert.Equal(t, 7000.0, loop.State().LastAppliedW)
	assert.Len(t, b.Writes(), 4)
}
