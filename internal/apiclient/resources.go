package apiclient

import (
	"context"
	"fmt"

	"github.com/smtlab/scheduler/internal/model"
)

// GetRun fetches a run by id.
func (c *Client) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var run model.Run
	if err := c.doJSON(ctx, "GET", fmt.Sprintf("runs/%s", runID), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRunResults fetches the results already persisted for a run.
func (c *Client) GetRunResults(ctx context.Context, runID string) ([]model.Result, error) {
	var results []model.Result
	if err := c.doJSON(ctx, "GET", fmt.Sprintf("runs/%s/results", runID), nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// PostRunResults persists newly produced worker results for a run and
// returns them with their assigned result IDs.
func (c *Client) PostRunResults(ctx context.Context, runID string, results []model.WorkerResultPayload) ([]model.Result, error) {
	var persisted []model.Result
	if err := c.doJSON(ctx, "POST", fmt.Sprintf("runs/%s/results", runID), results, &persisted); err != nil {
		return nil, err
	}
	return persisted, nil
}

// GetBenchmarkInstances fetches every instance in a benchmark.
func (c *Client) GetBenchmarkInstances(ctx context.Context, benchmarkID string) ([]model.Instance, error) {
	var instances []model.Instance
	if err := c.doJSON(ctx, "GET", fmt.Sprintf("benchmarks/%s/instances", benchmarkID), nil, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

// GetResult fetches a result, including its validations.
func (c *Client) GetResult(ctx context.Context, resultID string) (*model.Result, error) {
	var result model.Result
	if err := c.doJSON(ctx, "GET", fmt.Sprintf("results/%s", resultID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PostValidation posts a single validation outcome for a result.
func (c *Client) PostValidation(ctx context.Context, resultID string, validation model.ValidationPayload) error {
	payload := []model.ValidationPayload{validation}
	return c.doJSON(ctx, "POST", fmt.Sprintf("results/%s/validation", resultID), payload, nil)
}

// GetSolvers fetches every registered solver.
func (c *Client) GetSolvers(ctx context.Context) ([]model.Solver, error) {
	var solvers []model.Solver
	if err := c.doJSON(ctx, "GET", "solvers", nil, &solvers); err != nil {
		return nil, err
	}
	return solvers, nil
}

// GetQueue polls the HTTP-mediated queue resource for raw messages.
func (c *Client) GetQueue(ctx context.Context, name string) ([]string, error) {
	var messages []string
	if err := c.doJSON(ctx, "GET", fmt.Sprintf("queues/%s", name), nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// PostQueue enqueues a raw message body onto the HTTP-mediated queue
// resource.
func (c *Client) PostQueue(ctx context.Context, name string, body interface{}) error {
	return c.doJSON(ctx, "POST", fmt.Sprintf("queues/%s", name), body, nil)
}
