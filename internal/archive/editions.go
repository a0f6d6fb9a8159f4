package archive

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/crawler"
)

const pdfContentType = "application/pdf"

// EditionIndexSource reads one month of printed editions from the
// past-issues page.
type EditionIndexSource struct {
	site    *Site
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// NewEditionIndexSource constructs an EditionIndexSource.
func NewEditionIndexSource(site *Site, fetcher crawler.Fetcher, logger *zap.Logger) *EditionIndexSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EditionIndexSource{site: site, fetcher: fetcher, logger: logger}
}

// Index implements crawler.IndexSource.
func (s *EditionIndexSource) Index(ctx context.Context, period crawler.PeriodKey) (crawler.PeriodIndex, error) {
	content, err := s.fetcher.Fetch(ctx, s.site.EditionIndexURL(period))
	if err != nil {
		return nil, fmt.Errorf("fetch edition index %s: %w", period, err)
	}
	idx, found, err := ParseEditionIndex(content, s.site.Resolve)
	if err != nil {
		return nil, err
	}
	if !found {
		s.logger.Info("no editions widget for period", zap.String("period", period.String()))
	}
	s.logger.Debug("edition index parsed", zap.String("period", period.String()), zap.Int("editions", len(idx)))
	return idx, nil
}

// EditionExtractor downloads the PDF of one printed edition.
type EditionExtractor struct {
	collection string
	fetcher    crawler.Fetcher
}

// NewEditionExtractor downloads with fetcher, which should carry the longer
// document timeout.
func NewEditionExtractor(collection string, fetcher crawler.Fetcher) *EditionExtractor {
	return &EditionExtractor{collection: collection, fetcher: fetcher}
}

// Artifact implements crawler.Extractor.
func (e *EditionExtractor) Artifact(date crawler.DateKey, locator string) string {
	return "magazinepdf/" + EditionFilename(e.collection, date, locator)
}

// Extract implements crawler.Extractor.
func (e *EditionExtractor) Extract(ctx context.Context, date crawler.DateKey, locator string) (crawler.Record, error) {
	content, err := e.fetcher.Fetch(ctx, locator)
	if err != nil {
		return crawler.Record{}, err
	}
	return crawler.Record{
		Date:    date,
		Kind:    crawler.RecordBinary,
		Locator: locator,
		Document: &crawler.BinaryDocument{
			Filename:    EditionFilename(e.collection, date, locator),
			ContentType: pdfContentType,
			Body:        content.Body,
		},
	}, nil
}
