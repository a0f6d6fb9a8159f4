package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/archive-harvester/internal/crawler"
)

const testBucket = "test-bucket"

// fakeGCS emulates the subset of the JSON and XML APIs used by BlobStore.
type fakeGCS struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	fail    bool
}

func newFakeGCS() *fakeGCS {
	return &fakeGCS{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	path := r.URL.Path
	switch {
	case strings.Contains(path, "/upload/"):
		f.upload(w, r)
	case strings.Contains(path, "/b/"+testBucket+"/o/"):
		name := path[strings.Index(path, "/o/")+3:]
		data, ok := f.objects[name]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("alt") == "media" {
			_, _ = w.Write(data)
			return
		}
		writeJSON(w, map[string]any{"name": name, "bucket": testBucket, "size": strconv.Itoa(len(data))})
	case strings.HasSuffix(path, "/b/"+testBucket):
		writeJSON(w, map[string]any{"name": testBucket})
	case strings.HasPrefix(path, "/"+testBucket+"/"):
		data, ok := f.objects[strings.TrimPrefix(path, "/"+testBucket+"/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeGCS) upload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	var meta map[string]any
	for i := 0; ; i++ {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(part)
		if i == 0 {
			_ = json.Unmarshal(body, &meta)
			if n, ok := meta["name"].(string); ok && name == "" {
				name = n
			}
			continue
		}
		f.objects[name] = body
		if ct, ok := meta["contentType"].(string); ok {
			f.types[name] = ct
		}
	}
	writeJSON(w, map[string]any{"name": name, "bucket": testBucket})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestStore(t *testing.T, fake *fakeGCS) *BlobStore {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: testBucket})
	require.NoError(t, err)
	return store
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	fake := newFakeGCS()
	store := newTestStore(t, fake)
	ctx := context.Background()
	key := "aljarida/year=2024/month=06/day=09/magazinepdf/e.pdf"

	require.NoError(t, store.CheckBucket(ctx))

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, crawler.ErrObjectNotFound)

	uri, err := store.Put(ctx, key, "application/pdf", bytes.NewReader([]byte("%PDF-1.7")))
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/"+key, uri)
	assert.Equal(t, "%PDF-1.7", string(fake.objects[key]))
	assert.Equal(t, "application/pdf", fake.types[key])

	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
}

func TestBlobStoreServerErrors(t *testing.T) {
	t.Parallel()

	fake := newFakeGCS()
	fake.fail = true
	store := newTestStore(t, fake)
	ctx := context.Background()

	_, err := store.Exists(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, crawler.ErrObjectNotFound)

	_, err = store.Put(ctx, "k", "text/plain", strings.NewReader("x"))
	require.Error(t, err)

	_, err = store.Put(ctx, " ", "text/plain", strings.NewReader("x"))
	require.Error(t, err)

	require.Error(t, store.CheckBucket(ctx))
}
