// Package workers runs periodic background jobs.
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Worker is a job the manager runs once at start and then on every interval.
type Worker interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// RunTimeout bounds a single run of a worker.
const RunTimeout = 2 * time.Minute

type WorkerManager struct {
	workers []Worker
	log     logrus.FieldLogger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	stats   map[string]*WorkerRunStats
}

// WorkerRunStats counts the runs of one worker.
type WorkerRunStats struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int           `json:"runs"`
	Failures  int           `json:"failures"`
	LastRun   time.Time     `json:"lastRun"`
	LastError string        `json:"lastError,omitempty"`
}

func NewWorkerManager(log logrus.FieldLogger) *WorkerManager {
	return &WorkerManager{
		log:   log,
		stats: make(map[string]*WorkerRunStats),
	}
}

func (wm *WorkerManager) RegisterWorker(w Worker) {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	wm.workers = append(wm.workers, w)
	wm.stats[w.Name()] = &WorkerRunStats{Name: w.Name(), Interval: w.Interval()}
	wm.log.WithFields(logrus.Fields{"worker": w.Name(), "interval": w.Interval()}).Info("✅ Worker registered")
}

// Start launches every registered worker. They stop when ctx is done or Stop is called.
func (wm *WorkerManager) Start(ctx context.Context) {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	ctx, wm.cancel = context.WithCancel(ctx)
	wm.log.WithField("count", len(wm.workers)).Info("🚀 Starting workers")

	for _, worker := range wm.workers {
		wm.wg.Add(1)
		go wm.runWorker(ctx, worker)
	}
}

func (wm *WorkerManager) runWorker(ctx context.Context, w Worker) {
	defer wm.wg.Done()

	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()

	wm.executeWorker(ctx, w)

	for {
		select {
		case <-ticker.C:
			wm.executeWorker(ctx, w)
		case <-ctx.Done():
			wm.log.WithField("worker", w.Name()).Info("🛑 Worker stopped")
			return
		}
	}
}

func (wm *WorkerManager) executeWorker(ctx context.Context, w Worker) {
	ctx, cancel := context.WithTimeout(ctx, RunTimeout)
	defer cancel()

	startTime := time.Now()
	err := w.Run(ctx)
	duration := time.Since(startTime)

	wm.mu.Lock()
	s := wm.stats[w.Name()]
	s.Runs++
	s.LastRun = startTime
	s.LastError = ""
	if err != nil {
		s.Failures++
		s.LastError = err.Error()
	}
	wm.mu.Unlock()

	logger := wm.log.WithFields(logrus.Fields{"worker": w.Name(), "duration": duration})
	if err != nil {
		logger.WithError(err).Error("❌ Worker run failed")
		return
	}
	logger.Debug("worker run finished")
}

// Stop cancels every worker and waits for running jobs to return.
func (wm *WorkerManager) Stop() {
	wm.mu.Lock()
	cancel := wm.cancel
	wm.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	wm.wg.Wait()
	wm.log.Info("✅ All workers stopped")
}

type WorkerStats struct {
	TotalWorkers int              `json:"totalWorkers"`
	Workers      []WorkerRunStats `json:"workers"`
}

func (wm *WorkerManager) GetStats() WorkerStats {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	out := WorkerStats{TotalWorkers: len(wm.workers), Workers: make([]WorkerRunStats, len(wm.workers))}
	for i, w := range wm.workers {
		out.Workers[i] = *wm.stats[w.Name()]
	}
	return out
}
