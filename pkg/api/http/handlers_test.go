package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aescanero/periphery/internal/application/node"
	"github.com/aescanero/periphery/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCluster struct {
	partials map[string]domain.Bundle
}

func (f *fakeCluster) Register(ctx context.Context, addr string) error {
	switch addr {
	case "":
		return domain.ErrMissingAddress
	case "dup:8080":
		return domain.ErrDuplicateRegistration
	case "late:8080":
		return domain.ErrClusterClosed
	}
	return nil
}

func (f *fakeCluster) AssignShard(ctx context.Context, artifact []byte) error {
	_, err := domain.DecodeArtifact(artifact)
	return err
}

func (f *fakeCluster) AssignChildren(ctx context.Context, child string, names []string) error {
	if child == "" {
		return domain.ErrMissingAddress
	}
	return nil
}

func (f *fakeCluster) SubmitPartial(ctx context.Context, inferID string, tensors domain.Bundle) error {
	f.partials[inferID] = tensors
	return nil
}

func (f *fakeCluster) GetOutput(ctx context.Context, inferID string) (*domain.Result, error) {
	return f.query(inferID)
}

func (f *fakeCluster) DeliverFinal(ctx context.Context, inferID string, tensors domain.Bundle) error {
	return nil
}

func (f *fakeCluster) GetFinal(ctx context.Context, inferID string) (*domain.Result, error) {
	return f.query(inferID)
}

func (f *fakeCluster) query(inferID string) (*domain.Result, error) {
	switch inferID {
	case "done":
		return &domain.Result{InferID: inferID, Status: domain.StatusSuccess, Outputs: domain.Bundle{"y": {DType: "uint8", Data: []byte("v")}}}, nil
	case "busy":
		return &domain.Result{InferID: inferID, Status: domain.StatusPending}, nil
	case "broken":
		return nil, domain.ErrInternal
	}
	return nil, domain.ErrNotFound
}

func (f *fakeCluster) Info(ctx context.Context) node.ClusterInfo {
	return node.ClusterInfo{Self: "root:8080", IsRoot: true, Roster: []string{"a:8080"}}
}

type fakeTasks struct{}

func (fakeTasks) Shard() ([]string, []string, bool) {
	return []string{"x"}, []string{"h1"}, true
}

func (fakeTasks) Pending() []domain.RequestInfo {
	return []domain.RequestInfo{{InferID: "req-1", Present: []string{"a"}, Missing: []string{"b"}, CreatedAt: time.Unix(0, 0)}}
}

func (fakeTasks) Finals(ctx context.Context) ([]string, error) {
	return []string{"done"}, nil
}

func (fakeTasks) Release(ctx context.Context, inferID string) error {
	if inferID != "done" {
		return fmt.Errorf("%w: request %s", domain.ErrNotFound, inferID)
	}
	return nil
}

type unhealthy struct{}

func (unhealthy) IsHealthy() bool { return false }

func newTestServer() (*Server, *fakeCluster) {
	cluster := &fakeCluster{partials: make(map[string]domain.Bundle)}
	return NewServer(&Config{
		Cluster: cluster,
		Tasks:   fakeTasks{},
		Workers: unhealthy{},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("periphery_roster_size 1\n"))
		}),
		Logger: zap.NewNop(),
	}), cluster
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestRegister(t *testing.T) {
	s, _ := newTestServer()

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{name: "ok", body: `{"address":"a:8080"}`, wantCode: http.StatusOK},
		{name: "missing address", body: `{}`, wantCode: http.StatusBadRequest, wantErr: CodeMissingAddress},
		{name: "duplicate", body: `{"address":"dup:8080"}`, wantCode: http.StatusConflict, wantErr: CodeDuplicateRegistration},
		{name: "closed", body: `{"address":"late:8080"}`, wantCode: http.StatusConflict, wantErr: CodeClusterClosed},
		{name: "malformed", body: `{`, wantCode: http.StatusBadRequest, wantErr: CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, http.MethodPost, "/api/v1/cluster/register", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decodeError(t, rec).Code)
			}
		})
	}
}

func TestQueries(t *testing.T) {
	s, _ := newTestServer()

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/api/v1/requests/done/output", http.StatusOK},
		{"/api/v1/requests/busy/output", http.StatusAccepted},
		{"/api/v1/requests/nope/output", http.StatusNotFound},
		{"/api/v1/requests/broken/output", http.StatusInternalServerError},
		{"/api/v1/requests/done/final", http.StatusOK},
		{"/api/v1/requests/busy/final", http.StatusAccepted},
		{"/api/v1/requests/nope/final", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(s, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}

	t.Run("success carries outputs", func(t *testing.T) {
		rec := serve(s, http.MethodGet, "/api/v1/requests/done/final", "")
		var res domain.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, domain.StatusSuccess, res.Status)
		assert.Equal(t, "v", string(res.Outputs["y"].Data))
	})
}

func TestSubmitPartial(t *testing.T) {
	s, cluster := newTestServer()

	rec := serve(s, http.MethodPost, "/api/v1/requests/req-1/partial", `{"tensors":{"x":{"dtype":"uint8","data":"AQI="}}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []byte{1, 2}, cluster.partials["req-1"]["x"].Data)

	rec = serve(s, http.MethodPost, "/api/v1/requests/req-1/partial", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssignments(t *testing.T) {
	s, _ := newTestServer()

	rec := serve(s, http.MethodPost, "/api/v1/shard", `{"shard_id":1,"format":"reference","outputs":["y"],"blob":"e30="}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, http.MethodPost, "/api/v1/shard", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidArtifact, decodeError(t, rec).Code)

	rec = serve(s, http.MethodPost, "/api/v1/children", `{"child":"b:8080","names":["y"]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, http.MethodPost, "/api/v1/children", `{"names":["y"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInspection(t *testing.T) {
	s, _ := newTestServer()

	rec := serve(s, http.MethodGet, "/api/v1/shard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var shard ShardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shard))
	assert.Equal(t, ShardResponse{Assigned: true, Inputs: []string{"x"}, Outputs: []string{"h1"}}, shard)

	rec = serve(s, http.MethodGet, "/api/v1/cluster", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"roster":["a:8080"]`)

	rec = serve(s, http.MethodGet, "/api/v1/requests", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"missing":["b"]`)

	rec = serve(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"workers":"degraded"`)

	rec = serve(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "periphery_roster_size")
}

func TestReclaim(t *testing.T) {
	s, _ := newTestServer()

	rec := serve(s, http.MethodGet, "/api/v1/finals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"requests":["done"],"total":1}`, rec.Body.String())

	rec = serve(s, http.MethodDelete, "/api/v1/requests/done", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, http.MethodDelete, "/api/v1/requests/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).Code)
}

func TestStatusFor(t *testing.T) {
	status, code := StatusFor(context.Canceled)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, CodeInternal, code)

	err := ErrorFor(ErrorDetail{Code: CodeNotFound, Message: "req-9"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = ErrorFor(ErrorDetail{Code: "SOMETHING_NEW", Message: "?"})
	assert.ErrorIs(t, err, domain.ErrTransport)
}
