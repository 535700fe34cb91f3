// Package tasks implements the per-node request pipeline.
//
// A Manager accumulates partial inputs per request, runs the node's shard
// once every required input is present, forwards the designated outputs to
// child nodes and delivers terminal outputs to the root. Completeness checks
// are decoupled from input arrival through a task queue drained by the
// worker pool; an atomic test-and-clear of the pending set guarantees that a
// request is computed and forwarded at most once.
package tasks
