package archive

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/crawler"
)

// ArticleIndexSource maps every day of a month to its archive listing URL.
// The daily archive has no month-level index, so no request is made.
type ArticleIndexSource struct {
	site *Site
}

// NewArticleIndexSource constructs an ArticleIndexSource.
func NewArticleIndexSource(site *Site) *ArticleIndexSource {
	return &ArticleIndexSource{site: site}
}

// Index implements crawler.IndexSource.
func (s *ArticleIndexSource) Index(_ context.Context, period crawler.PeriodKey) (crawler.PeriodIndex, error) {
	idx := crawler.PeriodIndex{}
	for _, day := range period.Days() {
		idx[day] = s.site.ArchiveURL(day, 1)
	}
	return idx, nil
}

// ArticleExtractor collects every article listed for a date together with
// its full text.
type ArticleExtractor struct {
	site     *Site
	pipeline *crawler.Pipeline
	artifact string
	logger   *zap.Logger
}

// NewArticleExtractor stores each date's articles under artifact, e.g.
// "data.xlsx".
func NewArticleExtractor(site *Site, pipeline *crawler.Pipeline, artifact string, logger *zap.Logger) *ArticleExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArticleExtractor{site: site, pipeline: pipeline, artifact: artifact, logger: logger}
}

// Artifact implements crawler.Extractor.
func (e *ArticleExtractor) Artifact(crawler.DateKey, string) string {
	return e.artifact
}

// Extract implements crawler.Extractor. A truncated listing is returned as
// an error so the date is retried by a later run.
func (e *ArticleExtractor) Extract(ctx context.Context, date crawler.DateKey, locator string) (crawler.Record, error) {
	pageURL := func(page int) string {
		if page == 1 && locator != "" {
			return locator
		}
		return e.site.ArchiveURL(date, page)
	}
	rec := crawler.Record{Date: date, Kind: crawler.RecordArticles, Locator: locator}

	items, err := e.pipeline.Listing(ctx, pageURL, ParseListing)
	if err != nil {
		if errors.Is(err, crawler.ErrListingTruncated) {
			e.logger.Warn("archive listing truncated",
				zap.String("date", date.String()),
				zap.Int("items", len(items)),
			)
		}
		return rec, err
	}
	for i := range items {
		items[i].URL = e.site.Resolve(items[i].URL)
	}
	e.logger.Debug("archive listing collected", zap.String("date", date.String()), zap.Int("items", len(items)))

	articles, err := e.pipeline.Bodies(ctx, items, ParseArticleBody)
	if err != nil {
		return rec, err
	}
	rec.Articles = articles
	return rec, nil
}
