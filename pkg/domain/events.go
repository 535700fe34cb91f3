package domain

import "time"

// EventType represents the type of a request lifecycle event
type EventType string

const (
	EventTypePartialReceived EventType = "request.partial_received"
	EventTypeComputed        EventType = "request.computed"
	EventTypeForwarded       EventType = "request.forwarded"
	EventTypeFailed          EventType = "request.failed"
	EventTypeDegraded        EventType = "request.degraded"
	EventTypeFinalDelivered  EventType = "request.final_delivered"
	EventTypeNodeRegistered  EventType = "cluster.node_registered"
	EventTypeShardAssigned   EventType = "cluster.shard_assigned"
)

// Topics used on the event bus.
const (
	TopicRequests = "request.events"
	TopicCluster  = "cluster.events"
)

// Event is published on the event bus whenever a request or the cluster
// changes state.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	InferID   string                 `json:"infer_id,omitempty"`
	Node      string                 `json:"node"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
