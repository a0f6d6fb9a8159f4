package crawler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionKey(t *testing.T) {
	t.Parallel()

	date := mustDate("2024-03-07")
	assert.Equal(t, "aljarida/year=2024/month=03/day=07/data.xlsx", PartitionKey("aljarida", date, "data.xlsx"))
	assert.Equal(t, "aljarida/year=2024/month=03/day=07/magazinepdf/x.pdf", PartitionKey("aljarida/", date, "/magazinepdf/x.pdf"))
	assert.Equal(t, PartitionKey("c", date, "a"), PartitionKey("c", date, "a"))
}

func articleRecord(date string) Record {
	return Record{
		Date:    mustDate(date),
		Kind:    RecordArticles,
		Locator: "https://example.org/archive",
		Articles: []Article{
			{Category: "news", Title: "t1", Body: "b1", Status: ArticleComplete},
			{Category: "sport", Title: "t2", Status: ArticleBodyMissing},
		},
	}
}

func TestDocumentSinkStoresOnceThenReportsExisting(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	manifest := &recordingManifest{}
	publisher := &recordingPublisher{}
	sink := NewDocumentSink(store, stubEncoder{}, stubHasher{}, manifest, publisher, newFakeClock(),
		SinkConfig{Collection: "aljarida", RunID: "run-1", Topic: "docs"}, nil)
	ctx := context.Background()

	outcome, err := sink.Store(ctx, "data.txt", articleRecord("2024-03-07"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStored, outcome)

	key := "aljarida/year=2024/month=03/day=07/data.txt"
	assert.Equal(t, []string{key}, store.keys())
	assert.Equal(t, "news|t1|b1\nsport|t2|\n", string(store.objects[key]))
	assert.Equal(t, "text/plain", store.types[key])

	require.Len(t, manifest.entries, 1)
	entry := manifest.entries[0]
	assert.Equal(t, "run-1", entry.RunID)
	assert.Equal(t, key, entry.Key)
	assert.Equal(t, "mem://"+key, entry.URI)
	assert.Equal(t, 2, entry.Items)
	assert.Equal(t, "len-21", entry.ContentHash)
	assert.Equal(t, []string{"docs"}, publisher.topics)

	outcome, err = sink.Store(ctx, "data.txt", articleRecord("2024-03-07"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyExists, outcome)
	assert.Equal(t, 1, store.puts, "existing key must not be rewritten")
	assert.Len(t, manifest.entries, 1)

	exists, err := sink.Exists(ctx, mustDate("2024-03-07"), "data.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDocumentSinkBinaryRecord(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	sink := NewDocumentSink(store, nil, nil, nil, nil, nil, SinkConfig{Collection: "c"}, nil)
	rec := Record{
		Date:     mustDate("2024-06-09"),
		Kind:     RecordBinary,
		Document: &BinaryDocument{Filename: "e.pdf", Body: []byte("%PDF")},
	}

	outcome, err := sink.Store(context.Background(), "magazinepdf/e.pdf", rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStored, outcome)
	key := "c/year=2024/month=06/day=09/magazinepdf/e.pdf"
	assert.Equal(t, "%PDF", string(store.objects[key]))
	assert.Equal(t, "application/octet-stream", store.types[key])
}

func TestDocumentSinkFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		prepare func(*memStore)
		encoder Encoder
		op      string
	}{
		{name: "exists error", prepare: func(m *memStore) { m.existsErr = errBoom }, encoder: stubEncoder{}, op: "exists"},
		{name: "put error", prepare: func(m *memStore) { m.putErr = errBoom }, encoder: stubEncoder{}, op: "put"},
		{name: "encode error", prepare: func(*memStore) {}, encoder: stubEncoder{err: errBoom}, op: "encode"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			store := newMemStore()
			tc.prepare(store)
			sink := NewDocumentSink(store, tc.encoder, nil, nil, nil, nil, SinkConfig{Collection: "c"}, nil)

			outcome, err := sink.Store(context.Background(), "data.txt", articleRecord("2024-01-02"))
			assert.Equal(t, OutcomeFailed, outcome)
			var perr *PersistenceError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.op, perr.Op)
			require.ErrorIs(t, err, errBoom)
		})
	}
}

func TestDocumentSinkHooksAreBestEffort(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	manifest := &recordingManifest{err: errBoom}
	publisher := &recordingPublisher{err: errBoom}
	sink := NewDocumentSink(store, stubEncoder{}, nil, manifest, publisher, nil,
		SinkConfig{Collection: "c", Topic: "t"}, nil)

	outcome, err := sink.Store(context.Background(), "data.txt", articleRecord("2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStored, outcome)
	assert.Len(t, manifest.entries, 1)
	assert.Len(t, publisher.payloads, 1)
}
