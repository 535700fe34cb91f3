package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultHealthInterval = 30 * time.Second

// HealthMonitor periodically samples the pool and exports its state.
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// HealthStatus is one sample of the pool.
type HealthStatus struct {
	TotalWorkers   int       `json:"total_workers"`
	IdleWorkers    int       `json:"idle_workers"`
	BusyWorkers    int       `json:"busy_workers"`
	StoppedWorkers int       `json:"stopped_workers"`
	QueueDepth     int       `json:"queue_depth"`
	Saturated      bool      `json:"saturated"`
	Healthy        bool      `json:"healthy"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewHealthMonitor creates a monitor sampling pool every interval.
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins sampling. Calls after the first are no-ops.
func (h *HealthMonitor) Start() {
	h.startOnce.Do(func() {
		go h.loop()
	})
}

// Stop ends sampling.
func (h *HealthMonitor) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

func (h *HealthMonitor) loop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.report(h.GetStatus())
		}
	}
}

// report exports a sample as metrics and logs when the pool cannot keep up
func (h *HealthMonitor) report(s *HealthStatus) {
	h.pool.metrics.SetQueueDepth(s.QueueDepth)
	h.pool.metrics.RecordWorkerPoolStatus(s.IdleWorkers, s.BusyWorkers, s.StoppedWorkers)

	fields := []zap.Field{
		zap.Int("total", s.TotalWorkers),
		zap.Int("busy", s.BusyWorkers),
		zap.Int("stopped", s.StoppedWorkers),
		zap.Int("queued", s.QueueDepth),
	}

	switch {
	case !s.Healthy:
		h.logger.Warn("worker pool is unhealthy", fields...)
	case s.Saturated:
		h.logger.Warn("worker pool saturated, consider raising WORKER_POOL_SIZE", fields...)
	default:
		h.logger.Debug("worker pool health check", fields...)
	}
}

// GetStatus samples the pool now.
func (h *HealthMonitor) GetStatus() *HealthStatus {
	s := &HealthStatus{
		QueueDepth: len(h.pool.tasks),
		Timestamp:  time.Now(),
	}

	for _, ws := range h.pool.GetStatus() {
		s.TotalWorkers++
		switch ws {
		case WorkerStatusIdle:
			s.IdleWorkers++
		case WorkerStatusBusy:
			s.BusyWorkers++
		case WorkerStatusStopped:
			s.StoppedWorkers++
		}
	}

	// Saturation still makes progress; only stopped workers are unhealthy.
	s.Saturated = s.TotalWorkers > 0 && s.BusyWorkers == s.TotalWorkers
	s.Healthy = s.TotalWorkers > 0 && s.StoppedWorkers == 0
	return s
}

// IsHealthy reports whether every worker is still running.
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}
