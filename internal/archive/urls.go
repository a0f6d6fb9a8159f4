// Package archive adapts the crawler engine to the newspaper's web archive:
// the daily article listing and the monthly index of printed editions.
package archive

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/JakeFAU/archive-harvester/internal/crawler"
)

// editionsPath is the site's "past issues" page.
const editionsPath = "الأعداد-السابقة"

// Site builds locators relative to the archive's base URL.
type Site struct {
	base *url.URL
}

// NewSite parses baseURL, which must be absolute.
func NewSite(baseURL string) (*Site, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	return &Site{base: u}, nil
}

// Base returns the normalized base URL.
func (s *Site) Base() string {
	return s.base.String()
}

// ArchiveURL returns the daily archive listing, e.g. /archive/2024/6/9?pgno=2.
func (s *Site) ArchiveURL(date crawler.DateKey, page int) string {
	u := *s.base
	u.Path = fmt.Sprintf("%s/archive/%d/%d/%d", strings.TrimRight(s.base.Path, "/"), date.Year, int(date.Month), date.Day)
	if page > 1 {
		u.RawQuery = url.Values{"pgno": {fmt.Sprint(page)}}.Encode()
	}
	return u.String()
}

// EditionIndexURL returns the past-issues page filtered to one month.
func (s *Site) EditionIndexURL(period crawler.PeriodKey) string {
	u := *s.base
	u.Path = strings.TrimRight(s.base.Path, "/") + "/" + editionsPath
	u.RawQuery = url.Values{"monthFilter": {period.String()}}.Encode()
	return u.String()
}

// Resolve turns an href found on a page into an absolute URL.
func (s *Site) Resolve(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return s.base.ResolveReference(ref).String()
}

// EditionFilename derives the stored file name from the edition locator: the
// last path segment as written in the locator, percent escapes kept. Names
// not ending in a lowercase .pdf get {collection}-{YYYYMMDD}-1.pdf, so keys
// stay identical to those already in the bucket.
func EditionFilename(collection string, date crawler.DateKey, locator string) string {
	name := ""
	if u, err := url.Parse(locator); err == nil {
		name = path.Base(u.EscapedPath())
	}
	if name == "" || name == "." || name == "/" || !strings.HasSuffix(name, ".pdf") {
		name = fmt.Sprintf("%s-%04d%02d%02d-1.pdf", collection, date.Year, int(date.Month), date.Day)
	}
	return name
}
