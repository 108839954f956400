// Package process re-encodes uploaded images in the background: embedded
// metadata is stripped by redrawing the pixels, oversized images are
// downscaled, and the result replaces the original when it is meaningfully
// smaller.
package process

import (
	"context"
	"sync"

	"github.com/imghost-io/imghost/internal/logging"
	"github.com/imghost-io/imghost/internal/metrics"
)

// Job is one image awaiting re-encoding. Bytes holds the uploaded payload so
// workers can usually skip a round trip to the object store; when nil the
// worker fetches the object by Filename.
type Job struct {
	ImageID  string
	Filename string
	MIME     string
	Bytes    []byte
}

// QueueConfig configures the re-encode queue.
type QueueConfig struct {
	// Workers is the number of concurrent worker goroutines. Default: 2.
	Workers int

	// Size is the job buffer capacity. Default: 64.
	Size int
}

// DefaultQueueConfig returns default queue configuration.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Workers: 2,
		Size:    64,
	}
}

// Queue feeds jobs to a pool of re-encode workers. Enqueue never blocks:
// when the buffer is full the job is dropped, matching the fire-and-forget
// contract of the upload path.
type Queue struct {
	jobs    chan Job
	handle  func(ctx context.Context, job Job)
	workers int
	logger  *logging.Logger
	metrics *metrics.ProcessMetrics

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the logger.
func WithQueueLogger(l *logging.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// WithQueueMetrics sets the metrics bundle.
func WithQueueMetrics(m *metrics.ProcessMetrics) QueueOption {
	return func(q *Queue) { q.metrics = m }
}

// NewQueue creates a queue that dispatches jobs to handle.
func NewQueue(config QueueConfig, handle func(ctx context.Context, job Job), opts ...QueueOption) *Queue {
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.Size <= 0 {
		config.Size = 64
	}

	q := &Queue{
		jobs:    make(chan Job, config.Size),
		handle:  handle,
		workers: config.Workers,
		logger:  logging.Global(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the worker pool.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Stop halts the workers and waits for in-flight jobs to finish. Jobs still
// buffered are dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()

	q.mu.Lock()
	q.running = false
	q.mu.Unlock()
}

// Enqueue submits a job. Returns false if the buffer was full and the job
// was dropped.
func (q *Queue) Enqueue(job Job) bool {
	select {
	case q.jobs <- job:
		if q.metrics != nil {
			q.metrics.RecordQueueDepth(len(q.jobs))
		}
		return true
	default:
		q.logger.Warnf("re-encode queue full, dropping job", map[string]any{"imageID": job.ImageID})
		if q.metrics != nil {
			q.metrics.RecordDropped()
		}
		return false
	}
}

// Depth returns the number of buffered jobs.
func (q *Queue) Depth() int {
	return len(q.jobs)
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case job := <-q.jobs:
			if q.metrics != nil {
				q.metrics.RecordQueueDepth(len(q.jobs))
			}
			q.handle(context.Background(), job)
		}
	}
}
