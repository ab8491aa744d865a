package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/smtlab/scheduler/internal/model"
)

func TestGetSolvers_SuccessDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"s1","validation_solver":true}]`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "user", "pass", nil)
	solvers, err := c.GetSolvers(context.Background())
	if err != nil {
		t.Fatalf("GetSolvers failed: %v", err)
	}
	if len(solvers) != 1 || solvers[0].ID != "s1" {
		t.Fatalf("unexpected solvers: %+v", solvers)
	}
}

func TestDoJSON_RetriesOnServerErrorThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"run1","solver_id":"s1","benchmark_id":"b1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "user", "pass", nil)
	run, err := c.GetRun(context.Background(), "run1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.ID != "run1" {
		t.Fatalf("unexpected run: %+v", run)
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestDoJSON_NonRetryableStatusFailsImmediately(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "user", "pass", nil)
	_, err := c.GetRun(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable status, got %d", attempts)
	}

	var remoteErr *RemoteError
	if !asRemoteError(err, &remoteErr) {
		t.Fatalf("expected a *RemoteError, got %v", err)
	}
	if remoteErr.Status != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", remoteErr.Status)
	}
}

func asRemoteError(err error, target **RemoteError) bool {
	re, ok := err.(*RemoteError)
	if !ok {
		return false
	}
	*target = re
	return true
}

func TestPostValidation_SendsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "user", "pass", nil)
	err := c.PostValidation(context.Background(), "result1", model.ValidationPayload{SolverID: "s1", Validation: model.ValidationValid})
	if err != nil {
		t.Fatalf("PostValidation failed: %v", err)
	}
}
