package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/exportlimit/internal/config"
	"github.com/berfenger/exportlimit/internal/core/domain"
	"github.com/berfenger/exportlimit/internal/core/service"
	"github.com/berfenger/exportlimit/internal/metrics"
	. "github.com/berfenger/exportlimit/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/carlmjohnson/versioninfo"
	"go.uber.org/zap"
)

// ControlActor drives the control loop: one iteration per tick, never two at once.
type ControlActor struct {
	ActorWithStates
	scheduler  *scheduler.TimerScheduler
	cancelTick scheduler.CancelFunc
	stash      *Stash
	loop       *service.Loop
	interval   time.Duration
	timeout    time.Duration
	maxFailed  uint

	consecutiveFailures uint
	lastOutcome         domain.Outcome

	logger *zap.Logger
}

type controlTick struct {
}

type iterationDone struct {
	report   domain.Report
	duration time.Duration
	replyTo  *actor.PID
}

func NewControlActor(cfg config.Config, loop *service.Loop, logger *zap.Logger) *ControlActor {
	act := &ControlActor{
		stash:     &Stash{},
		loop:      loop,
		interval:  time.Duration(cfg.Control.IntervalMillis) * time.Millisecond,
		timeout:   time.Duration(cfg.Control.IterationTimeoutMillis) * time.Millisecond,
		maxFailed: cfg.Health.MaxConsecutiveFailures,
		logger:    ActorLogger(domain.ACTOR_ID_CONTROL, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(CStartingState{
		actor: act,
	})
	return act
}

func (state *ControlActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type CStartingState struct {
	ActorState
	actor *ControlActor
}

func (state CStartingState) Name() string {
	return "starting"
}

func (state CStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("control@starting started", zap.Duration("interval", state.actor.interval))
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.cancelTick = state.actor.scheduler.SendRepeatedly(state.actor.interval, state.actor.interval, ctx.Self(), controlTick{})
		// first iteration right away
		ctx.Send(ctx.Self(), controlTick{})
		state.actor.Become(CIdleState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.actor.stopTicks()
	default:
		state.actor.logger.Debug("control@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state

type CIdleState struct {
	ActorState
	actor *ControlActor
}

func (state CIdleState) Name() string {
	return "idle"
}

func (state CIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("control@idle: ActorHealthRequest")
		ForRequest(msg).Respond(ctx, state.actor.health(state.Name()))
	case domain.GetLimitStateRequest:
		ForRequest(msg).Respond(ctx, domain.GetLimitStateResponse{
			State: state.actor.loop.State(),
		})
	case controlTick:
		state.actor.startIteration(ctx, nil)
	case domain.RunIterationRequest:
		state.actor.logger.Debug("control@idle: RunIterationRequest")
		state.actor.startIteration(ctx, ForRequest(msg).ReplyTo(ctx))
	case *actor.Stopping:
		state.actor.stopTicks()
	default:
		state.actor.logger.Debug("control@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Iterating state

type CIteratingState struct {
	ActorState
	actor *ControlActor
}

func (state CIteratingState) Name() string {
	return "iterating"
}

func (state CIteratingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("control@iterating: ActorHealthRequest")
		ForRequest(msg).Respond(ctx, state.actor.health(state.Name()))
	case domain.GetLimitStateRequest:
		ForRequest(msg).Respond(ctx, domain.GetLimitStateResponse{
			State: state.actor.loop.State(),
		})
	case controlTick:
		state.actor.logger.Debug("control@iterating: tick dropped, iteration still running")
	case domain.RunIterationRequest:
		state.actor.stash.Stash(ctx, msg)
	case iterationDone:
		state.actor.record(msg.report, msg.duration)
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, domain.RunIterationResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.report.Err,
				},
				Report: msg.report,
			})
		}
		state.actor.Become(CIdleState{
			actor: state.actor,
		})
		state.actor.stash.UnstashOldest(ctx)
	case *actor.Stopping:
		state.actor.stopTicks()
	default:
		state.actor.logger.Debug("control@iterating: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ControlActor) startIteration(ctx actor.Context, replyTo *actor.PID) {
	loop := state.loop
	limit := loop.State()
	started := time.Now()
	task := NewBackgroundTaskNoError(ctx, func() *iterationDone {
		report := loop.RunOnce()
		return &iterationDone{
			report:   report,
			duration: time.Since(started),
			replyTo:  replyTo,
		}
	}).Recover(func(err error) iterationDone {
		return iterationDone{
			report: domain.Report{
				Outcome:     domain.OutcomeFailed,
				FailedStage: domain.StageTimeout,
				State:       limit,
				Err:         fmt.Errorf("iteration did not finish: %w", err),
			},
			duration: time.Since(started),
			replyTo:  replyTo,
		}
	})
	if state.timeout > 0 {
		task = task.WithTimeout(state.timeout)
	}
	task.PipeTo(ctx.Self())
	state.Become(CIteratingState{
		actor: state,
	})
}

func (state *ControlActor) record(report domain.Report, duration time.Duration) {
	metrics.RecordIteration(report, duration)
	state.lastOutcome = report.Outcome
	if report.Outcome == domain.OutcomeFailed {
		state.consecutiveFailures++
		state.logger.Warn("control@iterating: iteration failed", zap.String("report", report.String()),
			zap.Uint("consecutive_failures", state.consecutiveFailures))
		return
	}
	state.consecutiveFailures = 0
	state.logger.Debug("control@iterating: iteration done", zap.String("report", report.String()))
}

func (state *ControlActor) health(stateName string) domain.ActorHealthResponse {
	return domain.ActorHealthResponse{
		Id:          domain.ACTOR_ID_CONTROL,
		Healthy:     state.maxFailed == 0 || state.consecutiveFailures < state.maxFailed,
		State:       stateName,
		Version:     versioninfo.Short(),
		LastOutcome: state.lastOutcome,
	}
}

func (state *ControlActor) stopTicks() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}
