// Package pool implements the poll loop & worker pool (spec §4.5):
// a fixed-size pool of identical workers, each independently polling
// the scheduler queue with exponential backoff on emptiness.
// Grounded on the teacher's pkg/executor/core.go worker loop,
// restructured from "N goroutines sharing one semaphore" into T
// independent long-lived poller goroutines, since spec §4.5/§5
// specifies T workers each driving its own blocking poll loop rather
// than a fixed-concurrency fan-out over a single poll.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/smtlab/scheduler/internal/apiclient"
	"github.com/smtlab/scheduler/internal/dispatcher"
	"github.com/smtlab/scheduler/internal/model"
	"github.com/smtlab/scheduler/internal/queue"
	"github.com/smtlab/scheduler/internal/telemetry"
)

const pollMaxMessages = 1
const pollWait = 5 * time.Second

// Pool runs a fixed number of workers, each polling the scheduler
// queue independently.
type Pool struct {
	size         int
	backoffLimit int
	newWorker    func(id int) *Worker
}

// New builds a Pool of size workers, each built by newWorker — one
// dispatcher/queue-client pair per worker so no in-process mutable
// state is shared across workers (spec §5).
func New(size, backoffLimit int, newWorker func(id int) *Worker) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size, backoffLimit: backoffLimit, newWorker: newWorker}
}

// Run starts size workers and blocks until ctx is cancelled, then
// waits for every worker's current dispatch to finish before
// returning (spec §4.5 step 5: "drain current message if any, exit").
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		w := p.newWorker(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run(ctx, p.backoffLimit)
		}()
	}
	wg.Wait()
}

// Worker polls the scheduler queue, dispatches any messages it
// receives, and backs off exponentially on an empty poll.
type Worker struct {
	ID         int
	Queue      queue.Client
	Dispatcher *dispatcher.Dispatcher
	Limiter    *rate.Limiter
	Log        *zap.Logger
}

// NewWorker builds a Worker with its own queue client and dispatcher.
func NewWorker(id int, queueClient queue.Client, disp *dispatcher.Dispatcher, log *zap.Logger) *Worker {
	return &Worker{
		ID:         id,
		Queue:      queueClient,
		Dispatcher: disp,
		// Per-worker ceiling of 5 polls/s, burst 1: bounds how fast any
		// single worker can hammer the control API while draining a
		// backlog, independent of T — this does not bound aggregate
		// cluster throughput, only one worker's own request rate.
		Limiter: rate.NewLimiter(rate.Limit(5), 1),
		Log:     log,
	}
}

func (w *Worker) workerLabel() string {
	return strconv.Itoa(w.ID)
}

func (w *Worker) run(ctx context.Context, backoffLimit int) {
	backoffExp := 0

	for {
		if ctx.Err() != nil {
			return
		}

		if err := w.Limiter.Wait(ctx); err != nil {
			return
		}

		messages, err := w.Queue.Poll(ctx, model.QueueScheduler, pollMaxMessages, pollWait)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if w.Log != nil {
				w.Log.Warn("poll failed", zap.Int("worker", w.ID), zap.Error(err))
			}
			// Treat a transport failure like an empty poll: back off
			// and retry, without terminating the worker (spec §7:
			// "queue poll failure: log; continue after backoff").
			backoffExp = w.backoffAndContinue(ctx, backoffExp, backoffLimit)
			continue
		}

		telemetry.PollsTotal.WithLabelValues(w.workerLabel(), resultLabel(len(messages))).Inc()

		if len(messages) == 0 {
			backoffExp = w.backoffAndContinue(ctx, backoffExp, backoffLimit)
			continue
		}

		for _, msg := range messages {
			w.Dispatcher.Dispatch(ctx, msg.Body)
			if err := msg.Ack(ctx); err != nil && w.Log != nil {
				w.Log.Error("failed to ack message", zap.Int("worker", w.ID), zap.Error(err))
			}
		}
		backoffExp = 0
		telemetry.QueueBackoffExponent.WithLabelValues(w.workerLabel()).Set(0)
	}
}

func resultLabel(n int) string {
	if n == 0 {
		return "empty"
	}
	return "messages"
}

// backoffAndContinue sleeps 0.1*2^b seconds (spec §4.5 step 3),
// clamping b at backoffLimit, and returns the next exponent to use.
func (w *Worker) backoffAndContinue(ctx context.Context, exp, limit int) int {
	delay := time.Duration(0.1*math.Pow(2, float64(exp))*1000) * time.Millisecond
	telemetry.QueueBackoffExponent.WithLabelValues(w.workerLabel()).Set(float64(exp))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	if exp < limit {
		exp++
	}
	return exp
}

// BuildWorkerFactory wraps a per-worker builder into the constructor
// pool.New expects. build is called once per worker slot and must
// return that worker's own queue client and dispatcher — spec §5
// requires each worker to own its HTTP client (and therefore its own
// connection pool and circuit breakers) and its own queue client, so
// build should never close over a client shared with another worker.
func BuildWorkerFactory(build func(id int) (queue.Client, *dispatcher.Dispatcher), log *zap.Logger) func(id int) *Worker {
	return func(id int) *Worker {
		q, d := build(id)
		return NewWorker(id, q, d, log)
	}
}

// ErrStartup wraps the error CheckStartup returns when the initial
// connectivity check against the control API fails; cmd/scheduler
// then exits non-zero (spec §6's "non-zero on fatal startup error").
var ErrStartup = errors.New("smtlab: startup check failed")

// CheckStartup performs a minimal reachability check, wrapping any
// failure in ErrStartup.
func CheckStartup(ctx context.Context, api *apiclient.Client) error {
	if api == nil {
		return nil
	}
	if _, err := api.GetSolvers(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStartup, err)
	}
	return nil
}
