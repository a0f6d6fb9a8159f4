package archive

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/archive-harvester/internal/crawler"
)

var (
	isoDateExpr   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	blankRunsExpr = regexp.MustCompile(`\n{3,}`)
)

func document(content crawler.Content) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content.Body))
	if err != nil {
		return nil, fmt.Errorf("parse document %s: %w", content.URL, err)
	}
	return doc, nil
}

// ParseListing reads one page of the daily archive widget. The header row of
// the table is skipped; rows without a link in the second cell are ignored.
// LastPage comes from the numeric pager links, defaulting to 1.
func ParseListing(content crawler.Content) (crawler.ListingPage, error) {
	doc, err := document(content)
	if err != nil {
		return crawler.ListingPage{}, err
	}
	page := crawler.ListingPage{LastPage: lastPage(doc)}

	widget := doc.Find("div.aljarida-archive-widget").First()
	if widget.Length() == 0 {
		return page, nil
	}
	page.Found = true

	widget.Find("table").First().Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		link := cells.Eq(1).Find("a").First()
		if link.Length() == 0 {
			return
		}
		href, _ := link.Attr("href")
		title, ok := link.Attr("title")
		if !ok {
			title = link.Text()
		}
		page.Items = append(page.Items, crawler.ListingItem{
			Category: strings.TrimSpace(cells.Eq(0).Text()),
			Title:    strings.TrimSpace(title),
			URL:      strings.TrimSpace(href),
		})
	})
	return page, nil
}

func lastPage(doc *goquery.Document) int {
	last := 1
	doc.Find("nav.pagination li.pager-nav a").Each(func(_ int, a *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(a.Text())); err == nil && n > last {
			last = n
		}
	})
	return last
}

// ParseArticleBody returns the cleaned text of the article container with
// ads and scripts removed: one line per text node, at most one blank line in
// a row. A page without the container yields an empty body.
func ParseArticleBody(content crawler.Content) (string, error) {
	doc, err := document(content)
	if err != nil {
		return "", err
	}
	body := doc.Find("div.articleContent").First()
	if body.Length() == 0 {
		return "", nil
	}
	body.Find("div.adInWidget, script").Remove()

	var lines []string
	for _, n := range body.Nodes {
		collectText(n, &lines)
	}
	text := blankRunsExpr.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text), nil
}

func collectText(n *html.Node, lines *[]string) {
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			*lines = append(*lines, s)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, lines)
	}
}

// ParseEditionIndex maps each date on a month's past-issues page to its PDF
// link. found is false when the page has no editions widget. Previews without
// a date or link are skipped.
func ParseEditionIndex(content crawler.Content, resolve func(string) string) (index crawler.PeriodIndex, found bool, err error) {
	doc, err := document(content)
	if err != nil {
		return nil, false, err
	}
	widget := doc.Find("div.aljarida-archive-pdf").First()
	if widget.Length() == 0 {
		return crawler.PeriodIndex{}, false, nil
	}

	index = crawler.PeriodIndex{}
	widget.Find("div.pdf-preview").Each(func(_ int, preview *goquery.Selection) {
		dateText := preview.Find("div.date").First()
		link := preview.Find("a[href]").First()
		if dateText.Length() == 0 || link.Length() == 0 {
			return
		}
		match := isoDateExpr.FindString(dateText.Text())
		if match == "" {
			return
		}
		date, err := crawler.ParseDateKey(match)
		if err != nil {
			return
		}
		href, _ := link.Attr("href")
		if loc := resolve(href); loc != "" {
			index[date] = loc
		}
	})
	return index, true, nil
}
