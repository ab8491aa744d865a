// Package dispatcher implements the action dispatcher (spec §4.3):
// decode, validate per action kind, invoke the matching handler, and
// isolate handler failures so one bad message never blocks the poll
// loop.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smtlab/scheduler/internal/model"
	"github.com/smtlab/scheduler/internal/telemetry"
)

// handlers is the subset of handlers.Handlers the dispatcher invokes.
type handlers interface {
	Schedule(ctx context.Context, msg model.Schedule) error
	ScheduleInstances(ctx context.Context, msg model.ScheduleInstances) error
	ProcessResults(ctx context.Context, msg model.ProcessResults) error
	ProcessValidation(ctx context.Context, msg model.ProcessValidation) error
}

// Dispatcher decodes and routes one raw scheduler-queue message at a
// time.
type Dispatcher struct {
	handlers handlers
	log      *zap.Logger
}

// New builds a Dispatcher over the given handlers.
func New(h handlers, log *zap.Logger) *Dispatcher {
	return &Dispatcher{handlers: h, log: log}
}

// Dispatch implements spec §4.3 steps 1-6. It never returns an error
// that should block acknowledgement — every failure path here is
// logged and considered "handled": the caller (internal/pool) always
// acks after Dispatch returns, per spec §3's "no message is
// acknowledged until its handler completes (success or logged
// failure)".
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) {
	var envelope model.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		d.logError("malformed message JSON", "", err)
		telemetry.MessagesDispatched.WithLabelValues("unknown", "malformed").Inc()
		return
	}

	switch envelope.Action {
	case model.ActionSchedule:
		d.dispatchSchedule(ctx, raw)
	case model.ActionScheduleInstances:
		d.dispatchScheduleInstances(ctx, raw)
	case model.ActionProcessResults:
		d.dispatchProcessResults(ctx, raw)
	case model.ActionProcessValidation:
		d.dispatchProcessValidation(ctx, raw)
	default:
		d.logError("unknown action", string(envelope.Action), nil)
		telemetry.MessagesDispatched.WithLabelValues(string(envelope.Action), "unknown_action").Inc()
	}
}

func (d *Dispatcher) dispatchSchedule(ctx context.Context, raw []byte) {
	var msg model.Schedule
	if err := json.Unmarshal(raw, &msg); err != nil || msg.ID == "" {
		d.logError("schedule: missing or invalid id", string(model.ActionSchedule), err)
		telemetry.MessagesDispatched.WithLabelValues(string(model.ActionSchedule), "invalid_fields").Inc()
		return
	}
	d.invoke(ctx, model.ActionSchedule, func(ctx context.Context) error {
		return d.handlers.Schedule(ctx, msg)
	})
}

func (d *Dispatcher) dispatchScheduleInstances(ctx context.Context, raw []byte) {
	var msg model.ScheduleInstances
	if err := json.Unmarshal(raw, &msg); err != nil || msg.RunID == "" || len(msg.InstanceIDs) == 0 {
		d.logError("schedule_instances: missing run_id or instance_ids", string(model.ActionScheduleInstances), err)
		telemetry.MessagesDispatched.WithLabelValues(string(model.ActionScheduleInstances), "invalid_fields").Inc()
		return
	}
	d.invoke(ctx, model.ActionScheduleInstances, func(ctx context.Context) error {
		return d.handlers.ScheduleInstances(ctx, msg)
	})
}

func (d *Dispatcher) dispatchProcessResults(ctx context.Context, raw []byte) {
	var msg model.ProcessResults
	if err := json.Unmarshal(raw, &msg); err != nil || msg.RunID == "" {
		d.logError("process_results: missing run_id", string(model.ActionProcessResults), err)
		telemetry.MessagesDispatched.WithLabelValues(string(model.ActionProcessResults), "invalid_fields").Inc()
		return
	}
	// spec §4.3 step 4: every element of results must carry
	// instance_id, result, stdout and runtime. The first missing
	// field fails the whole message.
	for _, r := range msg.Results {
		if !hasResultFields(r) {
			d.logError("process_results: result element missing required field", string(model.ActionProcessResults), nil)
			telemetry.MessagesDispatched.WithLabelValues(string(model.ActionProcessResults), "invalid_fields").Inc()
			return
		}
	}
	d.invoke(ctx, model.ActionProcessResults, func(ctx context.Context) error {
		return d.handlers.ProcessResults(ctx, msg)
	})
}

// hasResultFields validates presence of instance_id, result, stdout
// and runtime on a decoded WorkerResult. runtime is a float64 so a
// missing "0" is indistinguishable from an explicit zero once
// decoded — acceptable, since a zero-runtime result is a legitimate
// (if unusual) value, not evidence of a missing field; instance_id,
// result and stdout being empty strings is the practical signal a
// required field was absent.
func hasResultFields(r model.WorkerResult) bool {
	return r.InstanceID != "" && r.Result != "" && r.Stdout != ""
}

func (d *Dispatcher) dispatchProcessValidation(ctx context.Context, raw []byte) {
	var msg model.ProcessValidation
	if err := json.Unmarshal(raw, &msg); err != nil || msg.ResultID == "" || msg.SolverID == "" || msg.Validation == "" || msg.Stdout == "" {
		d.logError("process_validation: missing required field", string(model.ActionProcessValidation), err)
		telemetry.MessagesDispatched.WithLabelValues(string(model.ActionProcessValidation), "invalid_fields").Inc()
		return
	}
	d.invoke(ctx, model.ActionProcessValidation, func(ctx context.Context) error {
		return d.handlers.ProcessValidation(ctx, msg)
	})
}

// invoke calls fn, recovering from panics and logging any error —
// spec §4.3 step 5: "any exception thrown inside a handler is logged
// with stack trace and swallowed; dispatch continues."
func (d *Dispatcher) invoke(ctx context.Context, action model.Action, fn func(context.Context) error) {
	start := time.Now()
	outcome := "ok"

	defer func() {
		telemetry.HandlerDuration.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
		telemetry.MessagesDispatched.WithLabelValues(string(action), outcome).Inc()
	}()

	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			if d.log != nil {
				d.log.Error("handler panicked",
					zap.String("action", string(action)),
					zap.Any("recovered", r),
					zap.Stack("stacktrace"),
				)
			}
		}
	}()

	if err := fn(ctx); err != nil {
		outcome = "error"
		if d.log != nil {
			d.log.Error("handler failed", zap.String("action", string(action)), zap.Error(err))
		}
	}
}

func (d *Dispatcher) logError(msg, action string, err error) {
	if d.log == nil {
		return
	}
	fields := []zap.Field{zap.String("action", action)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	d.log.Error(fmt.Sprintf("dispatch: %s", msg), fields...)
}
