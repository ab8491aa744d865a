package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smtlab/scheduler/internal/model"
	"github.com/smtlab/scheduler/internal/queue"
)

type fakeAPI struct {
	run       *model.Run
	instances []model.Instance
	results   []model.Result
	byResult  map[string]*model.Result
	solvers   []model.Solver

	postedResults []model.WorkerResultPayload
	postedValids  []model.ValidationPayload
}

func (f *fakeAPI) GetRun(_ context.Context, _ string) (*model.Run, error) {
	if f.run == nil {
		return nil, errors.New("no run configured")
	}
	return f.run, nil
}

func (f *fakeAPI) GetRunResults(_ context.Context, _ string) ([]model.Result, error) {
	return f.results, nil
}

func (f *fakeAPI) PostRunResults(_ context.Context, _ string, results []model.WorkerResultPayload) ([]model.Result, error) {
	f.postedResults = append(f.postedResults, results...)
	out := make([]model.Result, len(results))
	for i, r := range results {
		id := "result-" + r.InstanceID
		out[i] = model.Result{ID: id, InstanceID: r.InstanceID, Result: r.Result, Stdout: r.Stdout, Runtime: r.Runtime}
		if f.byResult != nil {
			f.byResult[id] = &out[i]
		}
	}
	return out, nil
}

func (f *fakeAPI) GetBenchmarkInstances(_ context.Context, _ string) ([]model.Instance, error) {
	return f.instances, nil
}

func (f *fakeAPI) GetResult(_ context.Context, resultID string) (*model.Result, error) {
	if f.byResult == nil {
		return nil, errors.New("no results configured")
	}
	r, ok := f.byResult[resultID]
	if !ok {
		return nil, errors.New("result not found")
	}
	return r, nil
}

func (f *fakeAPI) PostValidation(_ context.Context, _ string, v model.ValidationPayload) error {
	f.postedValids = append(f.postedValids, v)
	return nil
}

func (f *fakeAPI) GetSolvers(_ context.Context) ([]model.Solver, error) {
	return f.solvers, nil
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued map[string][]interface{}
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{enqueued: make(map[string][]interface{})}
}

func (f *fakeQueue) Enqueue(_ context.Context, queueName string, body interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued[queueName] = append(f.enqueued[queueName], body)
	return nil
}

func (f *fakeQueue) Poll(context.Context, string, int, time.Duration) ([]queue.Message, error) {
	return nil, nil
}

func TestSchedule_FansOutInBatches(t *testing.T) {
	instances := make([]model.Instance, 15)
	for i := range instances {
		instances[i] = model.Instance{ID: string(rune('a' + i))}
	}

	api := &fakeAPI{run: &model.Run{ID: "run1", BenchmarkID: "bench1"}, instances: instances}
	q := newFakeQueue()
	h := New(api, q, nil)

	if err := h.Schedule(context.Background(), model.Schedule{Action: model.ActionSchedule, ID: "run1"}); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	// 15 instances falls in the 11-100 band: batch size 5, so 3 batches.
	msgs := q.enqueued[model.QueueScheduler]
	if len(msgs) != 3 {
		t.Fatalf("expected 3 schedule_instances batches, got %d", len(msgs))
	}
}

func TestScheduleInstances_DispatchesRunsForMissingResults(t *testing.T) {
	api := &fakeAPI{run: &model.Run{ID: "run1", SolverID: "solver1", Arguments: "-v"}}
	q := newFakeQueue()
	h := New(api, q, nil)

	msg := model.ScheduleInstances{Action: model.ActionScheduleInstances, RunID: "run1", InstanceIDs: []string{"i1", "i2"}}
	if err := h.ScheduleInstances(context.Background(), msg); err != nil {
		t.Fatalf("ScheduleInstances failed: %v", err)
	}

	runs := q.enqueued[model.QueueRegression]
	if len(runs) != 2 {
		t.Fatalf("expected 2 run messages on the regression queue, got %d", len(runs))
	}
}

func TestScheduleInstances_UsesPerformanceQueueForPerformanceRuns(t *testing.T) {
	api := &fakeAPI{run: &model.Run{ID: "run1", SolverID: "solver1", Performance: true}}
	q := newFakeQueue()
	h := New(api, q, nil)

	msg := model.ScheduleInstances{Action: model.ActionScheduleInstances, RunID: "run1", InstanceIDs: []string{"i1"}}
	if err := h.ScheduleInstances(context.Background(), msg); err != nil {
		t.Fatalf("ScheduleInstances failed: %v", err)
	}

	if len(q.enqueued[model.QueuePerformance]) != 1 {
		t.Fatalf("expected 1 run message on the performance queue, got %d", len(q.enqueued[model.QueuePerformance]))
	}
}

func TestScheduleInstances_TriggersValidationForExistingResults(t *testing.T) {
	api := &fakeAPI{
		run:     &model.Run{ID: "run1", SolverID: "solver1"},
		results: []model.Result{{ID: "result1", InstanceID: "i1", Result: model.ResultSat}},
		byResult: map[string]*model.Result{
			"result1": {ID: "result1", InstanceID: "i1", Result: model.ResultSat},
		},
		solvers: []model.Solver{{ID: "solver1", ValidationSolver: true}, {ID: "solver2", ValidationSolver: true}},
	}
	q := newFakeQueue()
	h := New(api, q, nil)

	msg := model.ScheduleInstances{Action: model.ActionScheduleInstances, RunID: "run1", InstanceIDs: []string{"i1"}}
	if err := h.ScheduleInstances(context.Background(), msg); err != nil {
		t.Fatalf("ScheduleInstances failed: %v", err)
	}

	if len(q.enqueued[model.QueueRegression]) != 2 {
		t.Fatalf("expected 2 validate messages, got %d", len(q.enqueued[model.QueueRegression]))
	}
}

func TestProcessResults_PostsAndSchedulesValidation(t *testing.T) {
	api := &fakeAPI{
		byResult: make(map[string]*model.Result),
		solvers:  []model.Solver{{ID: "solver1", ValidationSolver: true}},
	}
	q := newFakeQueue()
	h := New(api, q, nil)

	msg := model.ProcessResults{
		Action: model.ActionProcessResults,
		RunID:  "run1",
		Results: []model.WorkerResult{
			{InstanceID: "i1", Result: model.ResultSat, Stdout: "ok"},
		},
	}

	if err := h.ProcessResults(context.Background(), msg); err != nil {
		t.Fatalf("ProcessResults failed: %v", err)
	}

	if len(api.postedResults) != 1 {
		t.Fatalf("expected 1 posted result, got %d", len(api.postedResults))
	}
	if len(q.enqueued[model.QueueRegression]) != 1 {
		t.Fatalf("expected 1 validate message scheduled, got %d", len(q.enqueued[model.QueueRegression]))
	}
}

func TestProcessValidation_PostsValidationPayload(t *testing.T) {
	api := &fakeAPI{}
	q := newFakeQueue()
	h := New(api, q, nil)

	msg := model.ProcessValidation{
		Action:     model.ActionProcessValidation,
		ResultID:   "result1",
		SolverID:   "solver1",
		Validation: model.ValidationValid,
		Stdout:     "ok",
	}

	if err := h.ProcessValidation(context.Background(), msg); err != nil {
		t.Fatalf("ProcessValidation failed: %v", err)
	}

	if len(api.postedValids) != 1 || api.postedValids[0].SolverID != "solver1" {
		t.Fatalf("expected validation posted for solver1, got %v", api.postedValids)
	}
}
