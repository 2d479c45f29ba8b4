package service

import (
	"errors"
	"fmt"

	"github.com/berfenger/exportlimit/internal/config"
	"github.com/berfenger/exportlimit/internal/core/domain"
	"github.com/berfenger/exportlimit/internal/core/port"

	"go.uber.org/zap"
)

const (
	STRATEGY_PRIMARY   = "primary"
	STRATEGY_ALTERNATE = "alternate"
	STRATEGY_PER_PHASE = "per_phase"
	STRATEGY_MODE_GATE = "mode_gate"
)

// Actuator writes limits through an ordered chain of write strategies.
type Actuator struct {
	bus        port.Bus
	resolver   *Resolver
	cfg        config.ActuationConfig
	phaseCount int
	minPhases  int
	logger     *zap.Logger
}

func NewActuator(bus port.Bus, resolver *Resolver, cfg config.Config, logger *zap.Logger) *Actuator {
	return &Actuator{
		bus:        bus,
		resolver:   resolver,
		cfg:        cfg.Actuation,
		phaseCount: cfg.Limit.PhaseCount,
		minPhases:  cfg.EffectiveMinPhases(),
		logger:     logger.With(zap.String("component", "actuator")),
	}
}

// Apply writes a total limit of limitW to the device of role.
func (a *Actuator) Apply(cache *EndpointCache, role domain.Role, limitW float64) (domain.Applied, error) {
	return a.run(cache, role, limitW, PerPhase(limitW, a.phaseCount), false)
}

// RemoveLimit writes the release value, leaving the device unconstrained.
func (a *Actuator) RemoveLimit(cache *EndpointCache, role domain.Role) (domain.Applied, error) {
	return a.run(cache, role, a.cfg.ReleaseValue, a.cfg.ReleaseValue, true)
}

type phaseResult struct {
	applied domain.Applied
	err     error
}

func (a *Actuator) run(cache *EndpointCache, role domain.Role, value, phaseValue float64, release bool) (domain.Applied, error) {
	ep, err := a.resolver.Endpoint(cache, role)
	if err != nil {
		return domain.Applied{}, err
	}

	// best partial per-phase result, kept in case every strategy fails
	var partial *domain.Applied
	perPhase := func(name string) (domain.Applied, error) {
		r := a.writePhases(ep, name, phaseValue, release)
		if r.applied.PhasesOK > 0 && r.err != nil {
			if partial == nil || r.applied.PhasesOK > partial.PhasesOK {
				p := r.applied
				partial = &p
			}
		}
		return r.applied, r.err
	}

	var attempts []Attempt[domain.Applied]
	for _, s := range []struct {
		name   string
		target domain.WriteTarget
	}{
		{STRATEGY_PRIMARY, a.cfg.Primary},
		{STRATEGY_ALTERNATE, a.cfg.Alternate},
	} {
		if s.target.Path == "" {
			continue
		}
		attempts = append(attempts, Attempt[domain.Applied]{
			Name: s.name,
			Run: func() (domain.Applied, error) {
				return a.writeSingle(ep, s.name, s.target, value, release)
			},
		})
	}
	if len(a.cfg.Phases) >= a.phaseCount {
		attempts = append(attempts, Attempt[domain.Applied]{
			Name: STRATEGY_PER_PHASE,
			Run: func() (domain.Applied, error) {
				return perPhase(STRATEGY_PER_PHASE)
			},
		})
		if a.cfg.Mode.Path != "" {
			attempts = append(attempts, Attempt[domain.Applied]{
				Name: STRATEGY_MODE_GATE,
				Run: func() (domain.Applied, error) {
					if err := a.ensureMode(ep); err != nil {
						return domain.Applied{}, err
					}
					return perPhase(STRATEGY_MODE_GATE)
				},
			})
		}
	}

	applied, _, err := Chain[domain.Applied]{
		Attempts:  attempts,
		Exhausted: domain.ErrAllStrategiesFailed,
		OnFailure: func(name string, err error) {
			a.logger.Warn("actuator: strategy failed, falling back", zap.String("strategy", name), zap.Error(err))
		},
	}.Run()
	if err == nil {
		return applied, nil
	}
	if partial != nil {
		partial.Degraded = true
		a.logger.Warn("actuator: every strategy failed, accepting partially applied phases",
			zap.String("strategy", partial.Strategy), zap.Int("phases_ok", partial.PhasesOK), zap.Int("phases", partial.Phases))
		return *partial, nil
	}
	cache.Evict(role)
	return domain.Applied{}, err
}

func (a *Actuator) writeSingle(ep domain.Endpoint, name string, target domain.WriteTarget, value float64, release bool) (domain.Applied, error) {
	service := target.Service(ep)
	if err := a.bus.Write(service, target.Path, value); err != nil {
		return domain.Applied{}, fmt.Errorf("%w: %w", domain.ErrWriteRejected, err)
	}
	a.logger.Debug("actuator: written", zap.String("strategy", name), zap.String("service", service),
		zap.String("path", target.Path), zap.Float64("value", value))
	return domain.Applied{
		Strategy: name,
		ValueW:   value,
		Phases:   1,
		PhasesOK: 1,
		Release:  release,
	}, nil
}

// writePhases writes phaseValue to every phase target. It succeeds when at
// least minPhases writes were accepted.
func (a *Actuator) writePhases(ep domain.Endpoint, name string, phaseValue float64, release bool) phaseResult {
	applied := domain.Applied{
		Strategy: name,
		ValueW:   phaseValue,
		Phases:   a.phaseCount,
		Release:  release,
	}
	var errs []error
	for _, target := range a.cfg.Phases[:a.phaseCount] {
		if err := a.bus.Write(target.Service(ep), target.Path, phaseValue); err != nil {
			errs = append(errs, err)
			continue
		}
		applied.PhasesOK++
	}
	if applied.PhasesOK < a.minPhases {
		return phaseResult{
			applied: applied,
			err: fmt.Errorf("%w: %d of %d phases accepted: %w", domain.ErrWriteRejected,
				applied.PhasesOK, a.phaseCount, errors.Join(errs...)),
		}
	}
	if applied.PhasesOK < a.phaseCount {
		applied.Degraded = true
		a.logger.Warn("actuator: phase writes partially rejected", zap.String("strategy", name),
			zap.Int("phases_ok", applied.PhasesOK), zap.Error(errors.Join(errs...)))
	}
	return phaseResult{applied: applied}
}

// ensureMode switches the operating mode to the required one. It fails when
// the mode already was the required one, as retrying would change nothing.
func (a *Actuator) ensureMode(ep domain.Endpoint) error {
	gate := a.cfg.Mode
	service := gate.Service(ep)
	mode, err := a.bus.Read(service, gate.Path)
	if err != nil {
		return fmt.Errorf("%w: mode unreadable: %w", domain.ErrWriteRejected, err)
	}
	if mode == gate.Required {
		return fmt.Errorf("%w: mode already %v", domain.ErrWriteRejected, mode)
	}
	if err := a.bus.Write(service, gate.Path, gate.Required); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrWriteRejected, err)
	}
	a.logger.Info("actuator: operating mode changed", zap.Float64("from", mode), zap.Float64("to", gate.Required))
	return nil
}
