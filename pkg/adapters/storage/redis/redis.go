package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aescanero/periphery/pkg/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// FinalStore implements ports.FinalStore using one Redis hash per request.
// Each field holds one JSON-encoded tensor, so concurrent deliveries of
// different names merge without a read-modify-write cycle.
type FinalStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewFinalStore creates a new Redis final store
func NewFinalStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *FinalStore {
	return &FinalStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Merge adds tensors to the stored final bundle (ports.FinalStore interface)
func (s *FinalStore) Merge(ctx context.Context, inferID string, tensors domain.Bundle) (domain.Bundle, error) {
	key := getFinalKey(inferID)

	fields := make(map[string]interface{}, len(tensors))
	for name, t := range tensors {
		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tensor %s: %w", name, err)
		}
		fields[name] = data
	}

	var all *redis.MapStringStringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		all = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to merge final outputs: %w", err)
	}

	merged, err := decodeBundle(all.Val())
	if err != nil {
		return nil, err
	}

	s.logger.Debug("final outputs merged",
		zap.String("infer_id", inferID),
		zap.Strings("names", merged.Names()))

	return merged, nil
}

// Get retrieves the final bundle for a request (ports.FinalStore interface)
func (s *FinalStore) Get(ctx context.Context, inferID string) (domain.Bundle, bool, error) {
	fields, err := s.client.HGetAll(ctx, getFinalKey(inferID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get final outputs: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	bundle, err := decodeBundle(fields)
	if err != nil {
		return nil, false, err
	}
	return bundle, true, nil
}

// Delete removes the final bundle for a request (ports.FinalStore interface)
func (s *FinalStore) Delete(ctx context.Context, inferID string) error {
	if err := s.client.Del(ctx, getFinalKey(inferID)).Err(); err != nil {
		return fmt.Errorf("failed to delete final outputs: %w", err)
	}
	return nil
}

// List returns the sorted ids of every stored request (ports.FinalStore interface)
func (s *FinalStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		if id, ok := finalID(iter.Val()); ok {
			ids = append(ids, id)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan final outputs: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

func decodeBundle(fields map[string]string) (domain.Bundle, error) {
	bundle := make(domain.Bundle, len(fields))
	for name, raw := range fields {
		var t domain.Tensor
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tensor %s: %w", name, err)
		}
		bundle[name] = t
	}
	return bundle, nil
}

const (
	keyPrefix = "periphery:final:"
	scanBatch = 100
)

// getFinalKey returns the Redis key for a request's final outputs
func getFinalKey(inferID string) string {
	return keyPrefix + inferID
}

// finalID is the inverse of getFinalKey
func finalID(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, keyPrefix)
	return id, ok && id != ""
}
