package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned by Submit when the ingestion backlog is at
// capacity; the upload itself has already been accepted and stays pending.
var ErrQueueFull = errors.New("ingest: queue full")

// Processor runs the ingestion for a single document.
type Processor interface {
	Process(ctx context.Context, documentID int64) error
}

// Runner feeds queued document ids to a fixed pool of workers. Documents
// wait in the pending status until a worker picks them up.
type Runner struct {
	processor Processor
	queue     chan int64
	workers   int
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewRunner(processor Processor, workers, queueSize int, logger *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		processor: processor,
		queue:     make(chan int64, queueSize),
		workers:   workers,
		logger:    logger,
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or
// the queue is closed via Stop.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work(ctx, i)
	}
}

func (r *Runner) work(ctx context.Context, id int) {
	defer r.wg.Done()
	logger := r.logger.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case documentID, ok := <-r.queue:
			if !ok {
				return
			}
			if err := r.processor.Process(ctx, documentID); err != nil {
				logger.Error("ingestion failed", "document_id", documentID, "error", err)
			}
		}
	}
}

// Submit enqueues a document for ingestion without blocking.
func (r *Runner) Submit(documentID int64) error {
	select {
	case r.queue <- documentID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight work to finish.
func (r *Runner) Stop() {
	close(r.queue)
	r.wg.Wait()
}
