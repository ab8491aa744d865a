package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/smtlab/scheduler/internal/apiclient"
	"github.com/smtlab/scheduler/internal/config"
	"github.com/smtlab/scheduler/internal/dispatcher"
	"github.com/smtlab/scheduler/internal/handlers"
	"github.com/smtlab/scheduler/internal/logging"
	"github.com/smtlab/scheduler/internal/pool"
	"github.com/smtlab/scheduler/internal/queue"
	"github.com/smtlab/scheduler/internal/queue/httpqueue"
	"github.com/smtlab/scheduler/internal/queue/redisqueue"
	"github.com/smtlab/scheduler/internal/telemetry"
)

func main() {
	cfg, warnings := config.Load()

	logCfg := logging.DefaultConfig()
	log, err := logging.Init(logCfg)
	if err != nil {
		os.Exit(1)
	}
	defer logging.Sync()

	for _, w := range warnings {
		log.Warn("config: " + w)
	}

	log.Info("smtlab scheduler starting",
		zap.String("api_endpoint", cfg.APIEndpoint),
		zap.Int("threads", cfg.SchedulerThreads),
		zap.String("queue_transport", string(cfg.QueueTransport)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	startupAPI := apiclient.New(cfg.APIEndpoint, cfg.Username, cfg.Password, log)
	if err := pool.CheckStartup(ctx, startupAPI); err != nil {
		log.Error("startup check failed", zap.Error(err))
		os.Exit(1)
	}

	// Each worker gets its own apiclient.Client (own *http.Client
	// connection pool and own per-endpoint-group circuit breakers) and
	// its own queue client, per spec §5: "no in-process mutable state
	// is shared across workers." A shared client would let one
	// worker's breaker trip fail-fast every other worker's requests.
	var closeMu sync.Mutex
	var closers []func() error

	build := func(id int) (queue.Client, *dispatcher.Dispatcher) {
		api := apiclient.New(cfg.APIEndpoint, cfg.Username, cfg.Password, log)

		var q queue.Client
		if cfg.QueueTransport == config.TransportHTTP {
			q = httpqueue.New(api)
		} else {
			redisClient, err := redisqueue.New(cfg.RedisAddr)
			if err != nil {
				log.Fatal("failed to connect to redis", zap.Int("worker", id), zap.Error(err))
			}
			closeMu.Lock()
			closers = append(closers, redisClient.Close)
			closeMu.Unlock()
			q = redisClient
		}

		h := handlers.New(api, q, log)
		return q, dispatcher.New(h, log)
	}

	workerFactory := pool.BuildWorkerFactory(build, log)
	workerPool := pool.New(cfg.SchedulerThreads, cfg.QueueBackoffLimit, workerFactory)

	metricsAddr := config.Getenv("SMTLAB_METRICS_ADDR", ":9090")
	go func() {
		if err := telemetry.Serve(ctx, metricsAddr); err != nil {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	done := make(chan struct{})
	go func() {
		workerPool.Run(ctx)
		close(done)
	}()

	sig := <-sigChan
	log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	cancel()
	<-done

	closeMu.Lock()
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("failed to close queue client", zap.Error(err))
		}
	}
	closeMu.Unlock()

	log.Info("smtlab scheduler stopped")
}
