package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/imghost-io/imghost/internal/logging"
)

// WorkerConfig configures the background sweep worker.
type WorkerConfig struct {
	// Interval is the time between sweep runs. Default: 1 hour.
	Interval time.Duration
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Interval: time.Hour,
	}
}

// Worker runs sweeps on a ticker. The first run happens immediately on
// Start; a run in progress finishes before Stop returns.
type Worker struct {
	sweeper *Sweeper
	config  WorkerConfig
	logger  *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWorker creates a background worker around the given sweeper.
func NewWorker(sweeper *Sweeper, config WorkerConfig) *Worker {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	return &Worker{
		sweeper: sweeper,
		config:  config,
		logger:  sweeper.logger,
	}
}

// Start begins the worker background loop.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run()
}

// Stop stops the worker and waits for completion.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// run is the main worker loop.
func (w *Worker) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.sweepOnce()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweepOnce()
		}
	}
}

func (w *Worker) sweepOnce() {
	ctx := context.Background()
	if _, err := w.sweeper.Run(ctx); err != nil {
		w.logger.Errorf("sweep run failed", map[string]any{"error": err.Error()})
	}
}
