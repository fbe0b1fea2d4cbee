package inmemory

import (
	"context"
	"sync"

	"github.com/dvloznov/openbank-sync/internal/jobs"
	"github.com/rs/zerolog"
)

// DefaultWorkers is the number of workers used when none is configured.
const DefaultWorkers = 5

// Queue is an in-memory implementation of task publisher and consumer.
// It uses Go channels for task distribution and is safe for concurrent use.
// Tasks are lost on restart; their jobs stay pending in the job store.
type Queue struct {
	taskChan  chan jobs.SyncTask
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	workers   int
	closed    bool
	started   bool
	log       zerolog.Logger
}

// NewQueue creates a new in-memory task queue.
// bufferSize determines how many tasks can wait before PublishSync returns ErrQueueFull.
func NewQueue(bufferSize, workers int, log zerolog.Logger) *Queue {
	if bufferSize < 0 {
		bufferSize = 0
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		taskChan:  make(chan jobs.SyncTask, bufferSize),
		closeChan: make(chan struct{}),
		workers:   workers,
		log:       log,
	}
}

// PublishSync implements the Publisher interface.
// It never blocks: a full buffer is reported as ErrQueueFull.
func (q *Queue) PublishSync(ctx context.Context, task jobs.SyncTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.taskChan <- task:
		return nil
	default:
		return jobs.ErrQueueFull
	}
}

// Start implements the Consumer interface.
// Workers run on ctx, so it should outlive the requests that publish tasks.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}
	if q.started {
		return nil
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

// worker processes tasks from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case task := <-q.taskChan:
			q.process(ctx, task, handler)
		}
	}
}

// process runs one task, keeping the worker alive if the handler panics.
func (q *Queue) process(ctx context.Context, task jobs.SyncTask, handler jobs.JobHandler) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().
				Str("job_id", task.JobID).
				Interface("panic", r).
				Msg("Sync task panicked")
		}
	}()

	handler(ctx, task)
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight tasks to complete.
// Tasks still buffered are dropped.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
// It closes the queue and releases resources.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Pending returns the number of buffered tasks.
func (q *Queue) Pending() int {
	return len(q.taskChan)
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
