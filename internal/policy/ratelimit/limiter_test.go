package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-harvester/internal/crawler"
)

func TestLimiterSpacesRequestsPerHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.aljarida.com/archive/2024/6/9"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://www.aljarida.com/archive/2024/6/10"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	// Another host has its own bucket.
	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://cdn.example.org/e.pdf"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for range 20 {
		require.NoError(t, l.Wait(context.Background(), "https://example.com"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://example.com"))
}

func TestTransportWaitsThenFetches(t *testing.T) {
	t.Parallel()

	next := &countingTransport{}
	tr := Wrap(next, New(Config{}))

	content, err := tr.Fetch(context.Background(), "https://example.com/a", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", content.URL)
	assert.Equal(t, 1, next.calls)

	next.err = &crawler.StatusError{URL: "https://example.com/b", StatusCode: 503}
	_, err = tr.Fetch(context.Background(), "https://example.com/b", time.Second)
	var statusErr *crawler.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 503, statusErr.StatusCode)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	limited := Wrap(next, New(Config{RPS: 0.001, Burst: 1}))
	_, _ = limited.Fetch(context.Background(), "https://example.com/c", time.Second)
	_, err = limited.Fetch(canceled, "https://example.com/c", time.Second)
	require.Error(t, err)
	assert.Equal(t, 3, next.calls)
}

type countingTransport struct {
	calls int
	err   error
}

func (c *countingTransport) Fetch(_ context.Context, url string, _ time.Duration) (crawler.Content, error) {
	c.calls++
	if c.err != nil {
		err := c.err
		c.err = nil
		return crawler.Content{}, err
	}
	return crawler.Content{URL: url, StatusCode: 200}, nil
}
