package crawler

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// CheckpointStore keeps the last successfully processed date as a single
// YYYY-MM-DD text object.
type CheckpointStore struct {
	store  BlobStore
	key    string
	logger *zap.Logger
}

// NewCheckpointStore keeps its state at key inside store.
func NewCheckpointStore(store BlobStore, key string, logger *zap.Logger) *CheckpointStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckpointStore{store: store, key: key, logger: logger}
}

// Key returns the object key holding the checkpoint.
func (c *CheckpointStore) Key() string {
	return c.key
}

// Read returns the stored date. A missing, unreadable, or malformed object
// yields ok=false; the caller then starts from its configured start date.
func (c *CheckpointStore) Read(ctx context.Context) (DateKey, bool) {
	raw, err := c.store.Get(ctx, c.key)
	if err != nil {
		if !errors.Is(err, ErrObjectNotFound) {
			c.logger.Warn("checkpoint read failed", zap.String("key", c.key), zap.Error(err))
		}
		return DateKey{}, false
	}
	date, err := ParseDateKey(strings.TrimSpace(string(raw)))
	if err != nil {
		c.logger.Warn("checkpoint content malformed", zap.String("key", c.key), zap.Error(err))
		return DateKey{}, false
	}
	return date, true
}

// Write overwrites the checkpoint with date.
func (c *CheckpointStore) Write(ctx context.Context, date DateKey) error {
	if _, err := c.store.Put(ctx, c.key, "text/plain; charset=utf-8", bytes.NewReader([]byte(date.String()))); err != nil {
		return &PersistenceError{Op: "write checkpoint", Key: c.key, Err: err}
	}
	return nil
}
