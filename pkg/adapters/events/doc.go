// Package events provides event bus implementations for request and cluster
// lifecycle events.
//
// Implementations:
//   - redis: Redis Streams, one consumer group per subscription
//   - memory: in-process handlers for single-process runs and tests
package events
