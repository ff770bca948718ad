package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/pentest-portal/internal/core/events"
	"github.com/frahmantamala/pentest-portal/internal/upload/storage"
)

var ErrPurgeQueueFull = errors.New("purge queue full")

type PurgeJob struct {
	Key      string
	Attempts int
}

type purgeWorker struct {
	id         int
	workerPool chan chan PurgeJob
	jobChannel chan PurgeJob
	logger     *slog.Logger
}

func newPurgeWorker(id int, workerPool chan chan PurgeJob, logger *slog.Logger) *purgeWorker {
	return &purgeWorker{
		id:         id,
		workerPool: workerPool,
		jobChannel: make(chan PurgeJob),
		logger:     logger,
	}
}

func (w *purgeWorker) start(ctx context.Context, wg *sync.WaitGroup, process func(PurgeJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case w.workerPool <- w.jobChannel:
			case <-ctx.Done():
				return
			}

			select {
			case job := <-w.jobChannel:
				w.logger.Debug("purging object", "worker_id", w.id, "key", job.Key)
				process(job)
			case <-ctx.Done():
				w.logger.Debug("purge worker shutting down", "worker_id", w.id)
				return
			}
		}
	}()
}

type PurgerConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration
}

// Purger deletes evidence blobs in the background once the rows that
// referenced them are gone.
type Purger struct {
	store  storage.ObjectStorage
	cfg    PurgerConfig
	logger *slog.Logger

	jobQueue   chan PurgeJob
	workerPool chan chan PurgeJob
	pending    atomic.Int64
	closing    atomic.Bool
	purged     atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewPurger(store storage.ObjectStorage, cfg PurgerConfig, logger *slog.Logger) *Purger {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Purger{
		store:      store,
		cfg:        cfg,
		logger:     logger.With("component", "upload_purger"),
		jobQueue:   make(chan PurgeJob, cfg.QueueSize),
		workerPool: make(chan chan PurgeJob, cfg.Workers),
		ctx:        ctx,
		cancel:     cancel,
	}
	p.start()
	return p
}

func (p *Purger) start() {
	p.once.Do(func() {
		for i := 0; i < p.cfg.Workers; i++ {
			newPurgeWorker(i, p.workerPool, p.logger).start(p.ctx, &p.wg, p.process)
		}

		p.wg.Add(1)
		go p.dispatch()

		p.logger.Info("upload purge pool started", "workers", p.cfg.Workers, "queue_size", p.cfg.QueueSize)
	})
}

func (p *Purger) dispatch() {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.jobQueue:
			select {
			case jobChannel := <-p.workerPool:
				select {
				case jobChannel <- job:
				case <-p.ctx.Done():
					return
				}
			case <-p.ctx.Done():
				return
			}
		case <-p.ctx.Done():
			return
		}
	}
}

// Enqueue schedules keys for deletion without blocking. Keys that do not
// fit are reported through ErrPurgeQueueFull; the orphan sweep picks them
// up later.
func (p *Purger) Enqueue(keys ...string) error {
	if p.closing.Load() {
		return errors.New("purger is shutting down")
	}
	dropped := 0
	for _, key := range keys {
		p.pending.Add(1)
		select {
		case p.jobQueue <- PurgeJob{Key: key}:
		default:
			p.pending.Add(-1)
			dropped++
		}
	}
	if dropped > 0 {
		p.logger.Warn("purge queue full, objects left for the orphan sweep", "dropped", dropped, "queue_capacity", cap(p.jobQueue))
		return fmt.Errorf("%w: %d of %d keys dropped", ErrPurgeQueueFull, dropped, len(keys))
	}
	return nil
}

// HandleUploadsRemoved is the event bus subscriber for uploads.removed.
func (p *Purger) HandleUploadsRemoved(_ context.Context, event events.Event) error {
	removed, ok := event.(*events.UploadsRemovedEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}
	return p.Enqueue(removed.Keys...)
}

func (p *Purger) process(job PurgeJob) {
	defer p.pending.Add(-1)

	for {
		job.Attempts++
		ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
		err := p.store.Delete(ctx, job.Key)
		cancel()

		if err == nil || errors.Is(err, storage.ErrObjectNotFound) {
			p.purged.Add(1)
			p.logger.Debug("object purged", "key", job.Key, "attempts", job.Attempts)
			return
		}
		if job.Attempts >= p.cfg.MaxAttempts {
			p.logger.Error("giving up on object purge", "key", job.Key, "attempts", job.Attempts, "error", err)
			return
		}

		p.logger.Warn("object purge failed, retrying", "key", job.Key, "attempt", job.Attempts, "error", err)
		select {
		case <-time.After(p.cfg.Backoff * time.Duration(job.Attempts)):
		case <-p.ctx.Done():
			return
		}
	}
}

// Purged is the number of objects removed since start.
func (p *Purger) Purged() int64 {
	return p.purged.Load()
}

// Shutdown stops intake, lets queued jobs finish until ctx expires, then
// stops the workers.
func (p *Purger) Shutdown(ctx context.Context) error {
	p.closing.Store(true)
	p.logger.Info("shutting down upload purge pool", "pending", p.pending.Load())

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var err error
drain:
	for p.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break drain
		case <-ticker.C:
		}
	}

	p.cancel()
	p.wg.Wait()
	p.logger.Info("upload purge pool stopped", "purged", p.purged.Load())
	return err
}
