package http

import "github.com/aescanero/periphery/pkg/domain"

// RegisterRequest is the body of POST /api/v1/cluster/register
type RegisterRequest struct {
	Address string `json:"address"`
}

// AssignChildrenRequest is the body of POST /api/v1/children
type AssignChildrenRequest struct {
	Child string   `json:"child"`
	Names []string `json:"names"`
}

// TensorsRequest is the body of the partial and final submissions
type TensorsRequest struct {
	Tensors domain.Bundle `json:"tensors" binding:"required"`
}

// AckResponse acknowledges a one-way message
type AckResponse struct {
	Status string `json:"status"`
}

// ShardResponse describes the own shard of a node
type ShardResponse struct {
	Assigned bool     `json:"assigned"`
	Inputs   []string `json:"inputs"`
	Outputs  []string `json:"outputs"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}
