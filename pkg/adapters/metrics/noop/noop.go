// Package noop provides a MetricsCollector that discards everything.
package noop

import "time"

// Collector discards all metrics.
type Collector struct{}

func (Collector) RecordPartialReceived() {}

func (Collector) RecordCompute(string, time.Duration) {}

func (Collector) RecordForward(string, string) {}

func (Collector) RecordFinalDelivered() {}

func (Collector) RecordDegraded() {}

func (Collector) SetPendingRequests(int) {}

func (Collector) SetRosterSize(int) {}

func (Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {}

func (Collector) SetQueueDepth(int) {}
