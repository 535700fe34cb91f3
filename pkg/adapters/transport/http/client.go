// Package http implements the node-to-node contracts as JSON over HTTP
// against the API served by pkg/api/http.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	api "github.com/aescanero/periphery/pkg/api/http"
	"github.com/aescanero/periphery/pkg/domain"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single call.
const DefaultTimeout = 30 * time.Second

// Client implements ports.Transport. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client whose calls time out after timeout; zero uses
// DefaultTimeout.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Probe checks that the node at addr answers its health endpoint.
func (c *Client) Probe(ctx context.Context, addr string) error {
	return c.do(ctx, http.MethodGet, addr, "/health", nil, nil)
}

func (c *Client) Register(ctx context.Context, addr, self string) error {
	return c.do(ctx, http.MethodPost, addr, "/api/v1/cluster/register", api.RegisterRequest{Address: self}, nil)
}

func (c *Client) AssignShard(ctx context.Context, addr string, artifact []byte) error {
	return c.do(ctx, http.MethodPost, addr, "/api/v1/shard", json.RawMessage(artifact), nil)
}

func (c *Client) AssignChildren(ctx context.Context, addr, child string, names []string) error {
	return c.do(ctx, http.MethodPost, addr, "/api/v1/children", api.AssignChildrenRequest{Child: child, Names: names}, nil)
}

func (c *Client) SubmitPartial(ctx context.Context, addr, inferID string, tensors domain.Bundle) error {
	return c.do(ctx, http.MethodPost, addr, requestPath(inferID, "partial"), api.TensorsRequest{Tensors: tensors}, nil)
}

func (c *Client) GetOutput(ctx context.Context, addr, inferID string) (*domain.Result, error) {
	var res domain.Result
	if err := c.do(ctx, http.MethodGet, addr, requestPath(inferID, "output"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) DeliverFinal(ctx context.Context, addr, inferID string, tensors domain.Bundle) error {
	return c.do(ctx, http.MethodPost, addr, requestPath(inferID, "final"), api.TensorsRequest{Tensors: tensors}, nil)
}

func (c *Client) GetFinal(ctx context.Context, addr, inferID string) (*domain.Result, error) {
	var res domain.Result
	if err := c.do(ctx, http.MethodGet, addr, requestPath(inferID, "final"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AwaitFinal polls get_final on addr until the request succeeds, is
// unknown, or ctx ends.
func (c *Client) AwaitFinal(ctx context.Context, addr, inferID string, interval time.Duration) (*domain.Result, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := c.GetFinal(ctx, addr, inferID)
		switch {
		case err != nil && !errors.Is(err, domain.ErrTransport):
			return nil, err
		case err == nil && res.Status != domain.StatusPending:
			return res, nil
		case err != nil:
			c.logger.Debug("final not reachable yet", zap.String("infer_id", inferID), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for final outputs of %s: %w", inferID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func requestPath(inferID, leaf string) string {
	return "/api/v1/requests/" + url.PathEscape(inferID) + "/" + leaf
}

// do sends one call. Network failures and gateway statuses become
// domain.ErrTransport; error responses are mapped back to their sentinel.
func (c *Client) do(ctx context.Context, method, addr, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://"+addr+path, reader)
	if err != nil {
		return fmt.Errorf("%w: building request to %s: %v", domain.ErrTransport, addr, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s%s: %v", domain.ErrTransport, method, addr, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response from %s: %v", domain.ErrTransport, addr, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: decoding response from %s: %v", domain.ErrTransport, addr, err)
		}
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var resp api.ErrorResponse
	if err := json.Unmarshal(data, &resp); err != nil || resp.Error.Code == "" {
		return fmt.Errorf("%w: unexpected status %d", domain.ErrTransport, status)
	}
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", domain.ErrTransport, resp.Error.Message)
	}
	return api.ErrorFor(resp.Error)
}
