package archive

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-harvester/internal/crawler"
)

const listingPage1 = `<html><body>
<div class="aljarida-archive-widget">
  <table>
    <tr><th>القسم</th><th>العنوان</th></tr>
    <tr><td> محليات </td><td><a href="/articles/1" title="Title One">ignored text</a></td></tr>
    <tr><td>رياضة</td><td><a href="https://www.aljarida.com/articles/2">Title Two</a></td></tr>
    <tr><td>only one cell</td></tr>
    <tr><td>no link</td><td>plain</td></tr>
  </table>
</div>
<nav class="pagination"><ul>
  <li class="pager-nav"><a href="?pgno=2">2</a></li>
  <li class="pager-nav"><a href="?pgno=3">3</a></li>
  <li class="pager-nav"><a href="?pgno=2">التالي</a></li>
</ul></nav>
</body></html>`

const listingPage2 = `<div class="aljarida-archive-widget"><table>
<tr><th>h</th><th>h</th></tr>
<tr><td>اقتصاد</td><td><a href="/articles/3" title="Title Three">x</a></td></tr>
</table></div>`

const articlePage = `<html><body>
<div class="articleContent">
  <p>First paragraph.</p>
  <div class="adInWidget">BUY NOW</div>
  <script>var tracking = 1;</script>
  <p>  Second
  paragraph. </p>
  <p>Line a


  </p>
  <p>Third.</p>
</div>
<div class="footer">not content</div>
</body></html>`

const editionsPage = `<div class="aljarida-archive-pdf">
  <div class="pdf-preview"><div class="date">النسخة الورقية<br>2024-06-10</div><a href="/uploads/pdf/e-0610.pdf">pdf</a></div>
  <div class="pdf-preview"><div class="date">النسخة الورقية<br>2024-06-09</div><a href="https://cdn.example.org/e-0609.pdf?v=2">pdf</a></div>
  <div class="pdf-preview"><div class="date">no date here</div><a href="/x.pdf">pdf</a></div>
  <div class="pdf-preview"><div class="date">2024-06-08</div></div>
</div>`

func content(u, body string) crawler.Content {
	return crawler.Content{URL: u, StatusCode: 200, Body: []byte(body)}
}

func testSite(t *testing.T) *Site {
	t.Helper()
	site, err := NewSite("https://www.aljarida.com/")
	require.NoError(t, err)
	return site
}

func TestSiteURLs(t *testing.T) {
	t.Parallel()

	site := testSite(t)
	date := crawler.NewDateKey(2024, time.June, 9)
	assert.Equal(t, "https://www.aljarida.com/archive/2024/6/9", site.ArchiveURL(date, 1))
	assert.Equal(t, "https://www.aljarida.com/archive/2024/6/9?pgno=2", site.ArchiveURL(date, 2))

	raw := site.EditionIndexURL(date.Period())
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/الأعداد-السابقة", parsed.Path)
	assert.Equal(t, "2024-06", parsed.Query().Get("monthFilter"))

	assert.Equal(t, "https://www.aljarida.com/a/b.pdf", site.Resolve("/a/b.pdf"))
	assert.Equal(t, "https://cdn.example.org/x.pdf", site.Resolve("https://cdn.example.org/x.pdf"))

	_, err = NewSite("not-a-url")
	require.Error(t, err)
}

func TestEditionFilename(t *testing.T) {
	t.Parallel()

	date := crawler.NewDateKey(2024, time.June, 9)
	tests := []struct {
		locator string
		want    string
	}{
		{"https://www.aljarida.com/uploads/e-0609.pdf", "e-0609.pdf"},
		{"https://cdn.example.org/e-0609.pdf?v=2", "e-0609.pdf"},
		{"https://www.aljarida.com/download?id=7", "aljarida-20240609-1.pdf"},
		{"https://www.aljarida.com/", "aljarida-20240609-1.pdf"},
		{"https://www.aljarida.com/uploads/E-0609.PDF", "aljarida-20240609-1.pdf"},
		{"https://www.aljarida.com/uploads/%D8%B9%D8%AF%D8%AF.pdf", "%D8%B9%D8%AF%D8%AF.pdf"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, EditionFilename("aljarida", date, tc.locator), tc.locator)
	}
}

func TestParseListing(t *testing.T) {
	t.Parallel()

	page, err := ParseListing(content("p1", listingPage1))
	require.NoError(t, err)
	assert.True(t, page.Found)
	assert.Equal(t, 3, page.LastPage)
	require.Len(t, page.Items, 2)
	assert.Equal(t, crawler.ListingItem{Category: "محليات", Title: "Title One", URL: "/articles/1"}, page.Items[0])
	assert.Equal(t, "Title Two", page.Items[1].Title)

	page, err = ParseListing(content("p2", listingPage2))
	require.NoError(t, err)
	assert.Equal(t, 1, page.LastPage)
	require.Len(t, page.Items, 1)

	page, err = ParseListing(content("empty", "<html><body><p>nothing</p></body></html>"))
	require.NoError(t, err)
	assert.False(t, page.Found)
	assert.Empty(t, page.Items)
}

func TestParseArticleBody(t *testing.T) {
	t.Parallel()

	body, err := ParseArticleBody(content("a", articlePage))
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\nSecond\n  paragraph.\nLine a\nThird.", body)
	assert.NotContains(t, body, "BUY NOW")
	assert.NotContains(t, body, "tracking")
	assert.NotContains(t, body, "not content")

	body, err = ParseArticleBody(content("b", "<p>no container</p>"))
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestParseEditionIndex(t *testing.T) {
	t.Parallel()

	site := testSite(t)
	idx, found, err := ParseEditionIndex(content("m", editionsPage), site.Resolve)
	require.NoError(t, err)
	assert.True(t, found)
	require.Len(t, idx, 2)
	assert.Equal(t, "https://www.aljarida.com/uploads/pdf/e-0610.pdf", idx[crawler.NewDateKey(2024, time.June, 10)])
	assert.Equal(t, "https://cdn.example.org/e-0609.pdf?v=2", idx[crawler.NewDateKey(2024, time.June, 9)])

	idx, found, err = ParseEditionIndex(content("m", "<p/>"), site.Resolve)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, idx)
}

func TestArticleIndexSource(t *testing.T) {
	t.Parallel()

	src := NewArticleIndexSource(testSite(t))
	idx, err := src.Index(context.Background(), crawler.PeriodKey{Year: 2024, Month: time.February})
	require.NoError(t, err)
	assert.Len(t, idx, 29)
	loc, ok := idx.Lookup(crawler.NewDateKey(2024, time.February, 29))
	require.True(t, ok)
	assert.Equal(t, "https://www.aljarida.com/archive/2024/2/29", loc)
}

func TestArticleExtractor(t *testing.T) {
	t.Parallel()

	site := testSite(t)
	date := crawler.NewDateKey(2024, time.June, 9)
	fetcher := fakeFetcher{
		site.ArchiveURL(date, 1):              listingPage1,
		site.ArchiveURL(date, 2):              listingPage2,
		site.ArchiveURL(date, 3):              `<div class="aljarida-archive-widget"><table><tr><th/></tr></table></div>`,
		"https://www.aljarida.com/articles/1": articlePage,
		"https://www.aljarida.com/articles/3": `<div class="articleContent">Three</div>`,
	}
	pipeline := crawler.NewPipeline(fetcher, noPause{}, crawler.PipelineDelays{}, nil)
	ex := NewArticleExtractor(site, pipeline, "data.xlsx", nil)

	assert.Equal(t, "data.xlsx", ex.Artifact(date, "ignored"))
	rec, err := ex.Extract(context.Background(), date, site.ArchiveURL(date, 1))
	require.NoError(t, err)
	assert.Equal(t, crawler.RecordArticles, rec.Kind)
	require.Len(t, rec.Articles, 3)
	assert.Equal(t, crawler.ArticleComplete, rec.Articles[0].Status)
	assert.Equal(t, crawler.ArticleBodyMissing, rec.Articles[1].Status, "articles/2 is not served")
	assert.Equal(t, "Three", rec.Articles[2].Body)
	assert.Equal(t, 1, rec.MissingBodies())
}

func TestArticleExtractorTruncated(t *testing.T) {
	t.Parallel()

	site := testSite(t)
	date := crawler.NewDateKey(2024, time.June, 9)
	fetcher := fakeFetcher{site.ArchiveURL(date, 1): listingPage1}
	pipeline := crawler.NewPipeline(fetcher, noPause{}, crawler.PipelineDelays{}, nil)

	_, err := NewArticleExtractor(site, pipeline, "data.xlsx", nil).Extract(context.Background(), date, site.ArchiveURL(date, 1))
	require.ErrorIs(t, err, crawler.ErrListingTruncated)
}

func TestEditionSourceAndExtractor(t *testing.T) {
	t.Parallel()

	site := testSite(t)
	period := crawler.PeriodKey{Year: 2024, Month: time.June}
	fetcher := fakeFetcher{
		site.EditionIndexURL(period):                      editionsPage,
		"https://www.aljarida.com/uploads/pdf/e-0610.pdf": "%PDF-1.7",
	}

	idx, err := NewEditionIndexSource(site, fetcher, nil).Index(context.Background(), period)
	require.NoError(t, err)
	loc, ok := idx.Lookup(crawler.NewDateKey(2024, time.June, 10))
	require.True(t, ok)

	ex := NewEditionExtractor("aljarida", fetcher)
	date := crawler.NewDateKey(2024, time.June, 10)
	assert.Equal(t, "magazinepdf/e-0610.pdf", ex.Artifact(date, loc))
	rec, err := ex.Extract(context.Background(), date, loc)
	require.NoError(t, err)
	assert.Equal(t, crawler.RecordBinary, rec.Kind)
	assert.Equal(t, "application/pdf", rec.Document.ContentType)
	assert.Equal(t, "%PDF-1.7", string(rec.Document.Body))

	_, err = NewEditionIndexSource(site, fakeFetcher{}, nil).Index(context.Background(), period)
	require.Error(t, err)
}

type fakeFetcher map[string]string

func (f fakeFetcher) Fetch(_ context.Context, u string) (crawler.Content, error) {
	body, ok := f[u]
	if !ok {
		return crawler.Content{}, &crawler.FetchFailure{URL: u, Attempts: 1, Err: &crawler.StatusError{URL: u, StatusCode: 404}}
	}
	return content(u, body), nil
}

type noPause struct{}

func (noPause) Pause(context.Context, time.Duration) error { return nil }
