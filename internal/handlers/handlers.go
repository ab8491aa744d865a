// Package handlers implements the four scheduling handlers (spec
// §4.4): schedule, schedule_instances, process_results and
// process_validation, plus the validation decision engine's call
// site (schedule_validation). Grounded on the teacher's
// pkg/scheduler/core.go (PollAndSchedule's fan-out/dispatch shape)
// and pkg/executor/core.go (result-reporting shape).
package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/smtlab/scheduler/internal/model"
	"github.com/smtlab/scheduler/internal/queue"
	"github.com/smtlab/scheduler/internal/telemetry"
	"github.com/smtlab/scheduler/internal/validation"
)

// api is the control-API surface the handlers need.
type api interface {
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	GetRunResults(ctx context.Context, runID string) ([]model.Result, error)
	PostRunResults(ctx context.Context, runID string, results []model.WorkerResultPayload) ([]model.Result, error)
	GetBenchmarkInstances(ctx context.Context, benchmarkID string) ([]model.Instance, error)
	GetResult(ctx context.Context, resultID string) (*model.Result, error)
	PostValidation(ctx context.Context, resultID string, v model.ValidationPayload) error
	GetSolvers(ctx context.Context) ([]model.Solver, error)
}

// Handlers implements the four scheduling handlers against an API
// client and a queue client. A single instance is shared by every
// worker in the pool that was built with the same clients, or each
// worker may hold its own (spec §5: "each worker owns its own HTTP
// client and queue client").
type Handlers struct {
	API   api
	Queue queue.Client
	Log   *zap.Logger
}

// New builds a Handlers bound to the given API and queue clients.
func New(apiClient api, queueClient queue.Client, log *zap.Logger) *Handlers {
	return &Handlers{API: apiClient, Queue: queueClient, Log: log}
}

// Schedule implements spec §4.4.1: fan a run out into batched
// schedule_instances messages re-enqueued onto the scheduler queue.
func (h *Handlers) Schedule(ctx context.Context, msg model.Schedule) error {
	run, err := h.API.GetRun(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("schedule: fetching run %s: %w", msg.ID, err)
	}

	instances, err := h.API.GetBenchmarkInstances(ctx, run.BenchmarkID)
	if err != nil {
		return fmt.Errorf("schedule: fetching instances for benchmark %s: %w", run.BenchmarkID, err)
	}

	ids := make([]string, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
	}

	batch := batchSize(len(ids))
	chunks := partition(ids, batch)

	for _, chunk := range chunks {
		out := model.ScheduleInstances{
			Action:      model.ActionScheduleInstances,
			RunID:       msg.ID,
			InstanceIDs: chunk,
		}
		if err := h.Queue.Enqueue(ctx, model.QueueScheduler, out); err != nil {
			return fmt.Errorf("schedule: enqueueing schedule_instances: %w", err)
		}
	}

	telemetry.BatchesEmitted.Add(float64(len(chunks)))
	telemetry.InstancesScheduled.Add(float64(len(ids)))
	if h.Log != nil {
		h.Log.Debug("fanned out run",
			zap.String("run_id", msg.ID),
			zap.Int("instances", len(ids)),
			zap.Int("batch_size", batch),
			zap.Int("batches", len(chunks)),
		)
	}

	return nil
}

// ScheduleInstances implements spec §4.4.2: dispatch instances with
// no existing result as run work, and trigger validation for
// instances that already have one.
func (h *Handlers) ScheduleInstances(ctx context.Context, msg model.ScheduleInstances) error {
	run, err := h.API.GetRun(ctx, msg.RunID)
	if err != nil {
		return fmt.Errorf("schedule_instances: fetching run %s: %w", msg.RunID, err)
	}

	destQueue := model.QueueRegression
	if run.Performance {
		destQueue = model.QueuePerformance
	}

	existing, err := h.API.GetRunResults(ctx, msg.RunID)
	if err != nil {
		return fmt.Errorf("schedule_instances: fetching existing results: %w", err)
	}

	byInstance := make(map[string]model.Result, len(existing))
	for _, r := range existing {
		byInstance[r.InstanceID] = r
	}

	var dispatched int
	for _, instanceID := range msg.InstanceIDs {
		if result, hasResult := byInstance[instanceID]; hasResult {
			if err := h.scheduleValidation(ctx, result.ID); err != nil {
				if h.Log != nil {
					h.Log.Error("schedule_instances: schedule_validation failed", zap.String("result_id", result.ID), zap.Error(err))
				}
			}
			continue
		}

		runMsg := model.RunMessage{
			Action:     model.ActionRun,
			RunID:      msg.RunID,
			SolverID:   run.SolverID,
			InstanceID: instanceID,
			Arguments:  run.Arguments,
		}
		if err := h.Queue.Enqueue(ctx, destQueue, runMsg); err != nil {
			return fmt.Errorf("schedule_instances: enqueueing run for instance %s: %w", instanceID, err)
		}
		dispatched++
	}

	telemetry.RunsDispatched.WithLabelValues(destQueue).Add(float64(dispatched))
	return nil
}

// ProcessResults implements spec §4.4.3: post worker results to the
// API and schedule validation for each persisted result.
func (h *Handlers) ProcessResults(ctx context.Context, msg model.ProcessResults) error {
	payload := make([]model.WorkerResultPayload, len(msg.Results))
	for i, r := range msg.Results {
		payload[i] = model.WorkerResultPayload{
			InstanceID: r.InstanceID,
			Result:     r.Result,
			Stdout:     r.Stdout,
			Runtime:    r.Runtime,
			NodeName:   r.NodeName,
		}
	}

	persisted, err := h.API.PostRunResults(ctx, msg.RunID, payload)
	if err != nil {
		return fmt.Errorf("process_results: posting results for run %s: %w", msg.RunID, err)
	}

	telemetry.APIRequestsTotal.WithLabelValues("POST", "runs.results", "persisted").Add(float64(len(persisted)))

	for _, result := range persisted {
		if err := h.scheduleValidation(ctx, result.ID); err != nil {
			if h.Log != nil {
				h.Log.Error("process_results: schedule_validation failed", zap.String("result_id", result.ID), zap.Error(err))
			}
		}
	}
	return nil
}

// ProcessValidation implements spec §4.4.4: forward a single
// validation outcome for a result.
func (h *Handlers) ProcessValidation(ctx context.Context, msg model.ProcessValidation) error {
	payload := model.ValidationPayload{
		SolverID:   msg.SolverID,
		Validation: msg.Validation,
		Stdout:     msg.Stdout,
		NodeName:   msg.NodeName,
	}
	if err := h.API.PostValidation(ctx, msg.ResultID, payload); err != nil {
		return fmt.Errorf("process_validation: posting validation for result %s: %w", msg.ResultID, err)
	}
	return nil
}

// scheduleValidation implements the validation decision engine's
// call site (spec §4.4.5): fetch the result, decide via the pure
// validation.Decide function, and enqueue one validate message per
// solver it names.
func (h *Handlers) scheduleValidation(ctx context.Context, resultID string) error {
	result, err := h.API.GetResult(ctx, resultID)
	if err != nil {
		return fmt.Errorf("schedule_validation: fetching result %s: %w", resultID, err)
	}

	if needsLookup, reason := validation.NeedsSolverLookup(*result); !needsLookup {
		telemetry.ValidationShortCircuits.WithLabelValues(string(reason)).Inc()
		return nil
	}

	solvers, err := h.API.GetSolvers(ctx)
	if err != nil {
		return fmt.Errorf("schedule_validation: fetching solvers: %w", err)
	}

	solverIDs, reason := validation.Decide(*result, solvers)
	if reason != validation.ReasonNone {
		telemetry.ValidationShortCircuits.WithLabelValues(string(reason)).Inc()
		return nil
	}

	for _, solverID := range solverIDs {
		msg := model.ValidateMessage{
			Action:   model.ActionValidate,
			ResultID: resultID,
			SolverID: solverID,
		}
		if err := h.Queue.Enqueue(ctx, model.QueueRegression, msg); err != nil {
			return fmt.Errorf("schedule_validation: enqueueing validate for solver %s: %w", solverID, err)
		}
	}
	telemetry.ValidationsScheduled.Add(float64(len(solverIDs)))

	return nil
}
