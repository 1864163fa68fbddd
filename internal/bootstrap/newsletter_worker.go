package bootstrap

import (
	"context"
	"os"
	"sync"
	"time"

	"newsletter_server/adapter/in/worker"
	"newsletter_server/config"
	"newsletter_server/internal/stream"
	"newsletter_server/pkg/logger"

	"github.com/rs/zerolog"
)

// Worker runs the job pool, the stream consumer, and the stale-sync
// watchdog.
type Worker struct {
	pool     *worker.Pool
	consumer *stream.Consumer
	deps     *Dependencies
	cfg      *config.Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	zlog   zerolog.Logger
}

func NewWorker(cfg *config.Config, deps *Dependencies) *Worker {
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	handler := worker.NewHandler(deps.SyncService)
	poolConfig := &worker.PoolConfig{
		Workers:        cfg.WorkerCount,
		QueueSize:      cfg.WorkerQueueSize,
		BatchSize:      cfg.ConsumerBatchSize,
		WorkerChanSize: 32,
		JobTimeout:     cfg.JobTimeout,
		MaxRetries:     cfg.JobMaxRetries,
	}
	pool := worker.NewPool(handler, poolConfig, zlog)

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		pool:   pool,
		deps:   deps,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		zlog:   zlog,
	}

	if deps.Stream != nil {
		w.consumer = stream.NewConsumer(deps.Stream, pool, cfg.WorkerID)
	} else {
		logger.Warn("redis unavailable, worker consumes no stream; syncs run in the API process")
	}
	return w
}

// Start launches the pool, the consumer, and the watchdog, then blocks
// until Stop is called.
func (w *Worker) Start() {
	w.pool.Start()

	if w.consumer != nil {
		if err := w.consumer.Start(w.ctx); err != nil {
			w.zlog.Error().Err(err).Msg("failed to start stream consumer")
		}
	}

	w.wg.Add(1)
	go w.watchdog()

	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	w.cancel()
	w.pool.Stop()
	w.wg.Wait()
}

// watchdog periodically recovers connections stuck in syncing, so a crash
// mid-run never blocks a user forever.
func (w *Worker) watchdog() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.SyncWatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
			if _, err := w.deps.SyncService.RecoverStale(ctx); err != nil {
				w.zlog.Error().Err(err).Msg("stale sync recovery failed")
			}
			if w.deps.Stream != nil {
				pending, err := w.deps.Stream.Pending(ctx, stream.StreamMailboxSync)
				switch {
				case err != nil:
					w.zlog.Warn().Err(err).Msg("failed to read pending backlog")
				case pending > 0:
					w.zlog.Info().Int64("pending", pending).
						Str("stream", stream.StreamMailboxSync).
						Msg("unacked jobs in backlog")
				}
			}
			cancel()
		}
	}
}
