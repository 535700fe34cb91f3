// Package badger persists the root's shard assignment in an embedded
// BadgerDB so the plan of the last formation survives restarts and can be
// inspected through the admin API.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aescanero/periphery/pkg/domain"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var assignmentKey = []byte("periphery:assignment")

// Config holds configuration for the BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string
	// InMemory disables disk persistence. Used in tests.
	InMemory bool
	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool
}

// zapLogger adapts zap to BadgerDB's Logger interface.
type zapLogger struct {
	logger *zap.SugaredLogger
}

func (l *zapLogger) Errorf(format string, args ...interface{}) { l.logger.Errorf(format, args...) }
func (l *zapLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l *zapLogger) Infof(format string, args ...interface{}) { l.logger.Infof(format, args...) }
func (l *zapLogger) Debugf(format string, args ...interface{}) { l.logger.Debugf(format, args...) }

// AssignmentStore implements ports.AssignmentStore on BadgerDB.
type AssignmentStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens the database described by cfg.
func Open(cfg Config, logger *zap.Logger) (*AssignmentStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("%w: assignment database path is required", domain.ErrInvalidConfig)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&zapLogger{logger: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	return &AssignmentStore{db: db, logger: logger}, nil
}

// SaveAssignment replaces the stored assignment.
func (s *AssignmentStore) SaveAssignment(ctx context.Context, a *domain.Assignment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal assignment: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(assignmentKey, data)
	})
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}

	s.logger.Debug("assignment saved",
		zap.Int("own_shard", a.OwnShard),
		zap.Int("peers", len(a.PeerToShard)))
	return nil
}

// LoadAssignment returns the stored assignment or domain.ErrNotFound.
func (s *AssignmentStore) LoadAssignment(ctx context.Context) (*domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var a domain.Assignment
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(assignmentKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &a)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: no assignment stored", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	return &a, nil
}

// Close closes the database.
func (s *AssignmentStore) Close() error {
	return s.db.Close()
}
