package domain

import "time"

// Status is the externally visible state of a request on a node.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Result is the answer to a get_output or get_final query. Outputs is only
// set when Status is StatusSuccess.
type Result struct {
	InferID string `json:"infer_id"`
	Status  Status `json:"status"`
	Outputs Bundle `json:"outputs,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RequestInfo describes a pending request. Used by the expiry extension
// point and by the admin API.
type RequestInfo struct {
	InferID   string    `json:"infer_id"`
	Present   []string  `json:"present"`
	Missing   []string  `json:"missing"`
	CreatedAt time.Time `json:"created_at"`
}
