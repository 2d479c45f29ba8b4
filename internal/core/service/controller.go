package service

import (
	"errors"
	"fmt"
	"sync"

	"github.com/berfenger/exportlimit/internal/config"
	"github.com/berfenger/exportlimit/internal/core/domain"
	"github.com/berfenger/exportlimit/internal/core/port"

	"go.uber.org/zap"
)

// IterationContext is the state carried from one iteration to the next.
type IterationContext struct {
	Limit     domain.LimitState
	Endpoints *EndpointCache
}

func NewIterationContext() IterationContext {
	return IterationContext{
		Endpoints: NewEndpointCache(),
	}
}

// Controller runs control iterations: read, compute, ramp, write.
type Controller struct {
	limit           config.LimitConfig
	explicitRelease bool
	telemetry       *TelemetryReader
	actuator        *Actuator
	logger          *zap.Logger
}

func NewController(bus port.Bus, cfg config.Config, logger *zap.Logger) *Controller {
	resolver := NewResolver(bus, cfg.Devices, logger)
	return &Controller{
		limit:           cfg.Limit,
		explicitRelease: cfg.Actuation.ExplicitRelease,
		telemetry:       NewTelemetryReader(bus, resolver, cfg.Telemetry.Roles, logger),
		actuator:        NewActuator(bus, resolver, cfg, logger),
		logger:          logger.With(zap.String("component", "controller")),
	}
}

// Iterate runs one iteration. Failures never escape: they are reported and the
// previous limit state is returned untouched.
func (c *Controller) Iterate(ictx IterationContext) (next IterationContext, report domain.Report) {
	if ictx.Endpoints == nil {
		ictx.Endpoints = NewEndpointCache()
	}
	stage := domain.StageReading
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("controller: iteration panicked", zap.Any("reason", r), zap.String("stage", string(stage)))
			next = ictx
			report = c.failed(ictx, stage, fmt.Errorf("panic: %v", r))
		}
	}()

	reading, err := c.telemetry.ReadSite(ictx.Endpoints)
	if err != nil {
		if errors.Is(err, domain.ErrDeviceNotFound) {
			c.logger.Warn("controller: no device found, keeping previous limit", zap.Error(err))
		} else {
			c.logger.Error("controller: could not read power", zap.Error(err))
		}
		return ictx, c.failed(ictx, stage, err)
	}

	stage = domain.StageComputing
	decision := ComputeTarget(reading.Watts, c.limit, ictx.Limit)
	report = domain.Report{
		Reading:    &reading,
		RawTargetW: decision.TargetW,
		State:      ictx.Limit,
	}
	previous := ictx.Limit.Previous(c.limit.MaxExportW)
	if !decision.Change {
		c.logger.Debug("controller: no change", zap.Float64("reading", reading.Watts),
			zap.String("branch", string(decision.Branch)), zap.Float64("limit", previous))
		report.Outcome = domain.OutcomeNoChange
		report.TargetW = previous
		return ictx, report
	}

	stage = domain.StageRamping
	bounded := Ramp(decision.TargetW, previous, true, c.limit.MaxStepW, c.limit.GradualAdjustment)
	report.TargetW = bounded
	if bounded == previous {
		report.Outcome = domain.OutcomeNoChange
		return ictx, report
	}

	stage = domain.StageWriting
	var applied domain.Applied
	if c.explicitRelease && bounded >= c.limit.MaxExportW {
		applied, err = c.actuator.RemoveLimit(ictx.Endpoints, domain.RoleInverter)
	} else {
		applied, err = c.actuator.Apply(ictx.Endpoints, domain.RoleInverter, bounded)
	}
	if err != nil {
		c.logger.Error("controller: could not apply limit", zap.Float64("target", bounded), zap.Error(err))
		failed := c.failed(ictx, stage, err)
		failed.Reading = &reading
		failed.RawTargetW = decision.TargetW
		failed.TargetW = bounded
		return ictx, failed
	}

	ictx.Limit = domain.LimitState{
		LastAppliedW: bounded,
		Known:        true,
		TargetW:      decision.TargetW,
	}
	report.Applied = &applied
	report.State = ictx.Limit
	report.Outcome = domain.OutcomeApplied
	if applied.Degraded {
		report.Outcome = domain.OutcomeDegraded
	}
	c.logger.Info("controller: limit applied", zap.Float64("reading", reading.Watts), zap.Float64("raw_target", decision.TargetW),
		zap.Float64("limit", bounded), zap.String("strategy", applied.Strategy), zap.Bool("degraded", applied.Degraded))
	return ictx, report
}

func (c *Controller) failed(ictx IterationContext, stage domain.Stage, err error) domain.Report {
	return domain.Report{
		Outcome:     domain.OutcomeFailed,
		FailedStage: stage,
		State:       ictx.Limit,
		Err:         err,
	}
}

// Loop owns an IterationContext and serializes iterations over it. The limit
// state snapshot stays readable while an iteration runs.
type Loop struct {
	mu         sync.Mutex
	controller *Controller
	ictx       IterationContext

	stateMu sync.RWMutex
	state   domain.LimitState
}

func NewLoop(controller *Controller) *Loop {
	return &Loop{
		controller: controller,
		ictx:       NewIterationContext(),
	}
}

func (l *Loop) RunOnce() domain.Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, report := l.controller.Iterate(l.ictx)
	l.ictx = next

	l.stateMu.Lock()
	l.state = next.Limit
	l.stateMu.Unlock()
	return report
}

func (l *Loop) State() domain.LimitState {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.state
}
