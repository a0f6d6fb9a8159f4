package crawler

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/metrics"
)

// PartitionKey builds {collection}/year=Y/month=MM/day=DD/{artifact}.
// Downstream consumers of the archive rely on this exact layout.
func PartitionKey(collection string, date DateKey, artifact string) string {
	return fmt.Sprintf("%s/year=%d/month=%02d/day=%02d/%s",
		strings.Trim(collection, "/"),
		date.Year,
		int(date.Month),
		date.Day,
		strings.TrimLeft(artifact, "/"),
	)
}

// SinkConfig controls where and how the sink writes.
type SinkConfig struct {
	Collection string
	RunID      string
	Topic      string
}

// DocumentSink persists one date's record at most once.
type DocumentSink struct {
	store     BlobStore
	encoder   Encoder
	hasher    Hasher
	manifest  ManifestStore
	publisher Publisher
	clock     Clock
	cfg       SinkConfig
	logger    *zap.Logger
}

// NewDocumentSink constructs a DocumentSink. The encoder is only needed for
// article records; hasher, manifest and publisher are optional.
func NewDocumentSink(
	store BlobStore,
	encoder Encoder,
	hasher Hasher,
	manifest ManifestStore,
	publisher Publisher,
	clock Clock,
	cfg SinkConfig,
	logger *zap.Logger,
) *DocumentSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentSink{
		store:     store,
		encoder:   encoder,
		hasher:    hasher,
		manifest:  manifest,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Key returns the partition key for artifact on date.
func (s *DocumentSink) Key(date DateKey, artifact string) string {
	return PartitionKey(s.cfg.Collection, date, artifact)
}

// Exists reports whether the artifact for date is already stored.
func (s *DocumentSink) Exists(ctx context.Context, date DateKey, artifact string) (bool, error) {
	key := s.Key(date, artifact)
	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		return false, &PersistenceError{Op: "exists", Key: key, Err: err}
	}
	return ok, nil
}

// Store writes rec under its partition key unless the key already exists.
// Errors are *PersistenceError values and come with OutcomeFailed.
func (s *DocumentSink) Store(ctx context.Context, artifact string, rec Record) (StoreOutcome, error) {
	key := s.Key(rec.Date, artifact)
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return OutcomeFailed, &PersistenceError{Op: "exists", Key: key, Err: err}
	}
	if exists {
		s.logger.Info("document already stored", zap.String("key", key))
		return OutcomeAlreadyExists, nil
	}

	payload, contentType, err := s.payload(rec)
	if err != nil {
		return OutcomeFailed, &PersistenceError{Op: "encode", Key: key, Err: err}
	}
	uri, err := s.store.Put(ctx, key, contentType, bytes.NewReader(payload))
	if err != nil {
		return OutcomeFailed, &PersistenceError{Op: "put", Key: key, Err: err}
	}
	metrics.ObserveStoredBytes(len(payload))
	s.logger.Info("document stored",
		zap.String("key", key),
		zap.String("uri", uri),
		zap.Int("bytes", len(payload)),
	)
	s.afterStore(ctx, key, uri, contentType, payload, rec)
	return OutcomeStored, nil
}

func (s *DocumentSink) payload(rec Record) ([]byte, string, error) {
	switch rec.Kind {
	case RecordArticles:
		if s.encoder == nil {
			return nil, "", fmt.Errorf("no encoder configured for article records")
		}
		data, err := s.encoder.Encode(rec.Articles)
		if err != nil {
			return nil, "", fmt.Errorf("encode articles: %w", err)
		}
		return data, s.encoder.ContentType(), nil
	case RecordBinary:
		if rec.Document == nil {
			return nil, "", fmt.Errorf("binary record has no document")
		}
		contentType := rec.Document.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return rec.Document.Body, contentType, nil
	default:
		return nil, "", fmt.Errorf("unknown record kind %q", rec.Kind)
	}
}

// afterStore records the manifest row and publishes the notification. Both
// are best effort: the document is already durable at this point.
func (s *DocumentSink) afterStore(ctx context.Context, key, uri, contentType string, payload []byte, rec Record) {
	entry := ManifestEntry{
		RunID:       s.cfg.RunID,
		Date:        rec.Date,
		Key:         key,
		URI:         uri,
		Locator:     rec.Locator,
		ContentType: contentType,
		Bytes:       len(payload),
		Items:       len(rec.Articles),
	}
	if rec.Kind == RecordBinary {
		entry.Items = 1
	}
	if s.clock != nil {
		entry.StoredAt = s.clock.Now()
	}
	if s.hasher != nil {
		hash, err := s.hasher.Hash(payload)
		if err != nil {
			s.logger.Warn("hash payload failed", zap.String("key", key), zap.Error(err))
		}
		entry.ContentHash = hash
	}
	if s.manifest != nil {
		if err := s.manifest.RecordDocument(ctx, entry); err != nil {
			s.logger.Warn("manifest record failed", zap.String("key", key), zap.Error(err))
		}
	}
	if s.publisher == nil || s.cfg.Topic == "" {
		return
	}
	msg := map[string]any{
		"run_id":       entry.RunID,
		"date":         entry.Date.String(),
		"key":          entry.Key,
		"uri":          entry.URI,
		"locator":      entry.Locator,
		"content_type": entry.ContentType,
		"hash":         entry.ContentHash,
		"bytes":        entry.Bytes,
		"items":        entry.Items,
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.Topic, msg); err != nil {
		s.logger.Warn("publish stored document failed", zap.String("key", key), zap.Error(err))
	}
}
