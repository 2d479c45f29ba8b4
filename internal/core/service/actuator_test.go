package service

import (
	"testing"

	"github.com/berfenger/exportlimit/internal/adapter/bus"
	"github.com/berfenger/exportlimit/internal/config"
	"github.com/berfenger/exportlimit/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActuator(b *bus.MemoryBus, cfg config.Config) *Actuator {
	return NewActuator(b, NewResolver(b, cfg.Devices, testLogger), cfg, testLogger)
}

func failPhases(b *bus.MemoryBus, n int) {
	for _, p := range phasePaths[:n] {
		b.FailWrites(VEBUS_SVC, p, true)
	}
}

func TestApplyPrimary(t *testing.T) {
	b := newSiteBus(0)
	applied, err := newActuator(b, testConfig()).Apply(NewEndpointCache(), domain.RoleInverter, 13000)
	require.NoError(t, err)
	assert.Equal(t, STRATEGY_PRIMARY, applied.Strategy)
	assert.False(t, applied.Degraded)
	assert.Equal(t, []bus.MemoryWrite{{ServiceID: VEBUS_SVC, Path: PATH_PRIMARY, Value: 13000}}, b.Writes())
}

func TestApplyFallsBackToAlternate(t *testing.T) {
	b := newSiteBus(0)
	b.FailWrites(VEBUS_SVC, PATH_PRIMARY, true)
	applied, err := newActuator(b, testConfig()).Apply(NewEndpointCache(), domain.RoleInverter, 13000)
	require.NoError(t, err)
	assert.Equal(t, STRATEGY_ALTERNATE, applied.Strategy)
	v, _ := b.Value(SETTINGS_SVC, PATH_ALTERNATE)
	assert.Equal(t, 13000.0, v)
}

func TestApplyFallsBackToPerPhase(t *testing.T) {
	b := newSiteBus(0)
	b.Remove(VEBUS_SVC, PATH_PRIMARY)
	b.FailWrites(SETTINGS_SVC, PATH_ALTERNATE, true)
	applied, err := newActuator(b, testConfig()).Apply(NewEndpointCache(), domain.RoleInverter, 13000)
	require.NoError(t, err)
	assert.Equal(t, STRATEGY_PER_PHASE, applied.Strategy)
	assert.Equal(t, 4333.0, applied.ValueW)
	assert.Equal(t, 3, applied.PhasesOK)
	assert.False(t, applied.Degraded)
	for _, p := range phasePaths {
		v, _ := b.Value(VEBUS_SVC, p)
		assert.Equal(t, 4333.0, v, p)
	}
}

func TestApplyPerPhaseDegraded(t *testing.T) {
	b := newSiteBus(0)
	b.Remove(VEBUS_SVC, PATH_PRIMARY)
	b.Remove(SETTINGS_SVC, PATH_ALTERNATE)
	failPhases(b, 1)
	applied, err := newActuator(b, testConfig()).Apply(NewEndpointCache(), domain.RoleInverter, 15000)
	require.NoError(t, err)
	assert.Equal(t, STRATEGY_PER_PHASE, applied.Strategy)
	assert.Equal(t, 2, applied.PhasesOK)
	assert.Equal(t, 3, applied.Phases)
	assert.True(t, applied.Degraded)
}

func TestApplyModeGateRetriesPerPhase(t *testing.T) {
	b := newSiteBus(0)
	b.Remove(VEBUS_SVC, PATH_PRIMARY)
	b.Remove(SETTINGS_SVC, PATH_ALTERNATE)
	b.Set(SETTINGS_SVC, PATH_MODE, 1)
	// phase setpoints are refused until external control is enabled
	failPhases(b, 3)
	cfg := testConfig()
	actuator := NewActuator(&modeGatedBus{MemoryBus: b}, NewResolver(b, cfg.Devices, testLogger), cfg, testLogger)

	applied, err := actuator.Apply(NewEndpointCache(), domain.RoleInverter, 12000)
	require.NoError(t, err)
	assert.Equal(t, STRATEGY_MODE_GATE, applied.Strategy)
	assert.Equal(t, 3, applied.PhasesOK)
	mode, _ := b.Value(SETTINGS_SVC, PATH_MODE)
	assert.Equal(t, float64(config.HUB4_MODE_EXTERNAL_CONTROL), mode)
}

func TestApplyModeGateFailsWhenModeAlreadySet(t *testing.T) {
	b := newSiteBus(0)
	b.Remove(VEBUS_SVC, PATH_PRIMARY)
	b.Remove(SETTINGS_SVC, PATH_ALTERNATE)
	failPhases(b, 3)
	cache := NewEndpointCache()

	_, err := newActuator(b, testConfig()).Apply(cache, domain.RoleInverter, 12000)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAllStrategiesFailed)
	assert.ErrorIs(t, err, domain.ErrWriteRejected)
	assert.Empty(t, b.Writes())
	_, ok := cache.Get(domain.RoleInverter)
	assert.False(t, ok, "inverter endpoint evicted")
}

func TestApplyAcceptsBestPartialWhenEverythingFails(t *testing.T) {
	b := newSiteBus(0)
	b.Remove(VEBUS_SVC, PATH_PRIMARY)
	b.Remove(SETTINGS_SVC, PATH_ALTERNATE)
	b.Remove(SETTINGS_SVC, PATH_MODE)
	failPhases(b, 2)
	cache := NewEndpointCache()

	applied, err := newActuator(b, testConfig()).Apply(cache, domain.RoleInverter, 12000)
	require.NoError(t, err)
	assert.Equal(t, STRATEGY_PER_PHASE, applied.Strategy)
	assert.Equal(t, 1, applied.PhasesOK)
	assert.True(t, applied.Degraded)
	_, ok := cache.Get(domain.RoleInverter)
	assert.True(t, ok)
}

func TestApplyAllPhasesRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Actuation.MinPhases = 3
	b := newSiteBus(0)
	b.Remove(VEBUS_SVC, PATH_PRIMARY)
	b.Remove(SETTINGS_SVC, PATH_ALTERNATE)
	b.Remove(SETTINGS_SVC, PATH_MODE)
	failPhases(b, 1)

	applied, err := newActuator(b, cfg).Apply(NewEndpointCache(), domain.RoleInverter, 12000)
	require.NoError(t, err, "partial result still accepted as last resort")
	assert.True(t, applied.Degraded)
	assert.Equal(t, 2, applied.PhasesOK)
}

func TestApplyWithoutInverter(t *testing.T) {
	b := bus.NewMemoryBus()
	_, err := newActuator(b, testConfig()).Apply(NewEndpointCache(), domain.RoleInverter, 12000)
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
}

func TestRemoveLimitWritesReleaseValue(t *testing.T) {
	b := newSiteBus(0)
	applied, err := newActuator(b, testConfig()).RemoveLimit(NewEndpointCache(), domain.RoleInverter)
	require.NoError(t, err)
	assert.True(t, applied.Release)
	assert.Equal(t, -1.0, applied.ValueW)
	v, _ := b.Value(VEBUS_SVC, PATH_PRIMARY)
	assert.Equal(t, -1.0, v)
}

func TestRemoveLimitPerPhase(t *testing.T) {
	b := newSiteBus(0)
	b.Remove(VEBUS_SVC, PATH_PRIMARY)
	b.Remove(SETTINGS_SVC, PATH_ALTERNATE)
	applied, err := newActuator(b, testConfig()).RemoveLimit(NewEndpointCache(), domain.RoleInverter)
	require.NoError(t, err)
	assert.Equal(t, STRATEGY_PER_PHASE, applied.Strategy)
	for _, p := range phasePaths {
		v, _ := b.Value(VEBUS_SVC, p)
		assert.Equal(t, -1.0, v, p)
	}
}

// modeGatedBus refuses per-phase setpoints until the mode item holds the
// external control value.
type modeGatedBus struct {
	*bus.MemoryBus
}

func (b *modeGatedBus) Write(serviceID, path string, value float64) error {
	if path == PATH_MODE && value == config.HUB4_MODE_EXTERNAL_CONTROL {
		for _, p := range phasePaths {
			b.FailWrites(VEBUS_SVC, p, false)
		}
	}
	return b.MemoryBus.Write(serviceID, path, value)
}
