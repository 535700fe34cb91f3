// Package workers implements the worker pool that runs request
// completeness checks off the request path.
//
// The worker pool manages a fixed number of goroutines that:
//   - Receive request ids from the node's buffered task queue
//   - Run the check-and-compute step of the task manager for each id
//   - Report their status for the health monitor
//
// The health monitor tracks worker status and logs metrics.
package workers
