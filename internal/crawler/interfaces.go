package crawler

import (
	"context"
	"io"
	"time"
)

// Transport performs a single fetch with no retry. Implementations return a
// *StatusError for non-success responses.
type Transport interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (Content, error)
}

// Fetcher is a Transport with a retry policy applied. Errors are always
// *FetchFailure values.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Content, error)
}

// BlobStore is the object store boundary used by the sink and the checkpoint
// store.
type BlobStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, contentType string, r io.Reader) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// IndexSource builds the date to locator mapping for one period.
type IndexSource interface {
	Index(ctx context.Context, period PeriodKey) (PeriodIndex, error)
}

// Extractor turns the locator for one date into a Record. Artifact names the
// stored object for (date, locator) so existence can be checked before any
// content is fetched.
type Extractor interface {
	Artifact(date DateKey, locator string) string
	Extract(ctx context.Context, date DateKey, locator string) (Record, error)
}

// Encoder serializes article records into a storable payload.
type Encoder interface {
	Encode(articles []Article) ([]byte, error)
	ContentType() string
	Extension() string
}

// Publisher pushes stored-document notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ManifestStore records every document the sink stores.
type ManifestStore interface {
	RecordDocument(ctx context.Context, entry ManifestEntry) error
}

// Hasher computes digests for stored payloads.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Pauser blocks for the given delay or until ctx is done.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration) error
}

// ManifestEntry describes one stored document.
type ManifestEntry struct {
	RunID       string
	Date        DateKey
	Key         string
	URI         string
	Locator     string
	ContentType string
	ContentHash string
	Bytes       int
	Items       int
	StoredAt    time.Time
}
