package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// fakeTransport serves canned responses per URL. A queued error is consumed
// before falling back to the canned body.
type fakeTransport struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string][]error
	calls  map[string]int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		bodies: make(map[string]string),
		errs:   make(map[string][]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeTransport) serve(url, body string) { f.bodies[url] = body }

func (f *fakeTransport) failNext(url string, errs ...error) {
	f.errs[url] = append(f.errs[url], errs...)
}

func (f *fakeTransport) Fetch(_ context.Context, url string, _ time.Duration) (Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if queue := f.errs[url]; len(queue) > 0 {
		f.errs[url] = queue[1:]
		return Content{}, queue[0]
	}
	body, ok := f.bodies[url]
	if !ok {
		return Content{}, &StatusError{URL: url, StatusCode: 404}
	}
	return Content{URL: url, StatusCode: 200, ContentType: "text/html", Body: []byte(body)}, nil
}

func (f *fakeTransport) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeTransport) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// recordingPauser never sleeps; it records the requested delays.
type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
	clock  *fakeClock
}

func (p *recordingPauser) Pause(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, delay)
	if p.clock != nil {
		p.clock.Advance(delay)
	}
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore is an in-memory BlobStore with optional failure injection.
type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	puts      int
	putErr    error
	existsErr error
	getErr    error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) Put(_ context.Context, key, contentType string, r io.Reader) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	m.objects[key] = buf.Bytes()
	m.types[key] = contentType
	m.puts++
	return "mem://" + key, nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return data, nil
}

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// staticIndex serves fixed period indexes and counts lookups. When cancel is
// set, a lookup cancels the run's context and fails with its error.
type staticIndex struct {
	mu      sync.Mutex
	indexes map[PeriodKey]PeriodIndex
	err     error
	cancel  context.CancelFunc
	calls   map[PeriodKey]int
}

func newStaticIndex(locators map[string]string) *staticIndex {
	s := &staticIndex{indexes: make(map[PeriodKey]PeriodIndex), calls: make(map[PeriodKey]int)}
	for raw, loc := range locators {
		d, err := ParseDateKey(raw)
		if err != nil {
			panic(err)
		}
		idx, ok := s.indexes[d.Period()]
		if !ok {
			idx = PeriodIndex{}
			s.indexes[d.Period()] = idx
		}
		idx[d] = loc
	}
	return s
}

func (s *staticIndex) Index(ctx context.Context, period PeriodKey) (PeriodIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[period]++
	if s.cancel != nil {
		s.cancel()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.indexes[period], nil
}

// binaryExtractor fetches the locator and returns its body as a document.
type binaryExtractor struct {
	fetcher Fetcher
	calls   int
}

func (e *binaryExtractor) Artifact(_ DateKey, locator string) string {
	return "docs/" + locator
}

func (e *binaryExtractor) Extract(ctx context.Context, date DateKey, locator string) (Record, error) {
	e.calls++
	content, err := e.fetcher.Fetch(ctx, locator)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Date:     date,
		Kind:     RecordBinary,
		Locator:  locator,
		Document: &BinaryDocument{Filename: locator, ContentType: "application/pdf", Body: content.Body},
	}, nil
}

type stubEncoder struct{ err error }

func (e stubEncoder) Encode(articles []Article) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	var buf bytes.Buffer
	for _, a := range articles {
		fmt.Fprintf(&buf, "%s|%s|%s\n", a.Category, a.Title, a.Body)
	}
	return buf.Bytes(), nil
}

func (stubEncoder) ContentType() string { return "text/plain" }
func (stubEncoder) Extension() string   { return "txt" }

type stubHasher struct{}

func (stubHasher) Hash(data []byte) (string, error) { return fmt.Sprintf("len-%d", len(data)), nil }

type recordingManifest struct {
	entries []ManifestEntry
	err     error
}

func (m *recordingManifest) RecordDocument(_ context.Context, entry ManifestEntry) error {
	m.entries = append(m.entries, entry)
	return m.err
}

type recordingPublisher struct {
	topics   []string
	payloads []any
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	if p.err != nil {
		return "", p.err
	}
	return fmt.Sprintf("msg-%d", len(p.payloads)), nil
}

var errBoom = errors.New("boom")

func mustDate(raw string) DateKey {
	d, err := ParseDateKey(raw)
	if err != nil {
		panic(err)
	}
	return d
}
