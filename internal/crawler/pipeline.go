package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ListingItem is one row of a paginated listing page.
type ListingItem struct {
	Category string
	Title    string
	URL      string
}

// ListingPage is the parsed form of one listing page. Found is false when
// the page has no data container at all. LastPage is only meaningful on
// the first page.
type ListingPage struct {
	Found    bool
	Items    []ListingItem
	LastPage int
}

// ListingParser turns a fetched listing page into items.
type ListingParser func(content Content) (ListingPage, error)

// BodyParser extracts the cleaned full text from a detail page.
type BodyParser func(content Content) (string, error)

// PageURL returns the locator of a 1-based listing page.
type PageURL func(page int) string

// PipelineDelays are the politeness pauses inside one date.
type PipelineDelays struct {
	Page time.Duration
	Item time.Duration
}

// Pipeline walks a paginated listing and fetches the detail page of every
// listed item. It is strictly sequential.
type Pipeline struct {
	fetcher Fetcher
	pauser  Pauser
	delays  PipelineDelays
	logger  *zap.Logger
}

// NewPipeline constructs a Pipeline.
func NewPipeline(fetcher Fetcher, pauser Pauser, delays PipelineDelays, logger *zap.Logger) *Pipeline {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{fetcher: fetcher, pauser: pauser, delays: delays, logger: logger}
}

// Listing fetches page 1, reads the page count from it, then fetches pages
// 2..N. A failure on page 1 is returned as is. A failure on a later page
// returns the items collected so far together with ErrListingTruncated. A
// later page that fails to parse or lacks the data container counts as a
// failure.
func (p *Pipeline) Listing(ctx context.Context, pageURL PageURL, parse ListingParser) ([]ListingItem, error) {
	first, err := p.fetcher.Fetch(ctx, pageURL(1))
	if err != nil {
		return nil, err
	}
	page, err := parse(first)
	if err != nil {
		p.logger.Warn("listing page unparseable, treating as empty",
			zap.String("url", first.URL),
			zap.Error(err),
		)
		return nil, nil
	}
	if !page.Found {
		return nil, nil
	}
	items := append([]ListingItem(nil), page.Items...)
	last := page.LastPage
	if last < 1 {
		last = 1
	}
	for n := 2; n <= last; n++ {
		if err := p.pauser.Pause(ctx, p.delays.Page); err != nil {
			return items, fmt.Errorf("%w after page %d: %w", ErrListingTruncated, n-1, err)
		}
		content, err := p.fetcher.Fetch(ctx, pageURL(n))
		if err != nil {
			p.logger.Warn("listing truncated",
				zap.Int("page", n),
				zap.Int("last_page", last),
				zap.Int("items", len(items)),
				zap.Error(err),
			)
			return items, fmt.Errorf("%w after page %d of %d: %w", ErrListingTruncated, n-1, last, err)
		}
		next, err := parse(content)
		if err == nil && !next.Found {
			err = errors.New("no data container")
		}
		if err != nil {
			p.logger.Warn("listing truncated, page unparseable",
				zap.Int("page", n),
				zap.Int("last_page", last),
				zap.Int("items", len(items)),
				zap.Error(err),
			)
			return items, fmt.Errorf("%w after page %d of %d: %w", ErrListingTruncated, n-1, last, err)
		}
		items = append(items, next.Items...)
	}
	return items, nil
}

// Bodies fetches the detail page of every item. A failed fetch or parse
// leaves an empty body with ArticleBodyMissing; only cancellation aborts.
func (p *Pipeline) Bodies(ctx context.Context, items []ListingItem, parse BodyParser) ([]Article, error) {
	articles := make([]Article, 0, len(items))
	for _, item := range items {
		if err := p.pauser.Pause(ctx, p.delays.Item); err != nil {
			return articles, err
		}
		article := Article{
			Category: item.Category,
			Title:    item.Title,
			URL:      item.URL,
			Status:   ArticleBodyMissing,
		}
		content, err := p.fetcher.Fetch(ctx, item.URL)
		if err != nil {
			if ctx.Err() != nil {
				return articles, ctx.Err()
			}
			p.logger.Warn("article body unavailable", zap.String("url", item.URL), zap.Error(err))
			articles = append(articles, article)
			continue
		}
		body, err := parse(content)
		if err != nil {
			p.logger.Warn("article body unparseable", zap.String("url", item.URL), zap.Error(err))
			articles = append(articles, article)
			continue
		}
		article.Body = body
		article.Status = ArticleComplete
		articles = append(articles, article)
	}
	return articles, nil
}
