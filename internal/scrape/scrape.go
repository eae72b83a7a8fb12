// Package scrape fetches web pages and turns their HTML tables into frames.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/KaramelBytes/dataloom-agent/internal/analysis"
)

const (
	// DefaultUserAgent is sent when none is configured; some sites reject Go's default.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	maxTextRunes     = 5000
	maxBodyBytes     = 20 << 20
)

var (
	footnote   = regexp.MustCompile(`\[(\d+|[a-z]|note \d+|citation needed)\]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Page is the scraped content of one URL.
type Page struct {
	URL    string
	Title  string
	Text   string
	Tables []*analysis.Frame
	// wiki marks tables carrying the "wikitable" class, index-aligned with Tables.
	wiki []bool
}

type Scraper struct {
	client    *http.Client
	userAgent string
}

// New returns a Scraper. A nil client gets a 30s timeout.
func New(client *http.Client, userAgent string) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = DefaultUserAgent
	}
	return &Scraper{client: client, userAgent: userAgent}
}

// Fetch downloads rawURL and parses it.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: u.String(), StatusCode: resp.StatusCode}
	}
	return Parse(io.LimitReader(resp.Body, maxBodyBytes), u.String())
}

// Parse extracts title, visible text and tables from an HTML document.
func Parse(r io.Reader, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, sup.reference").Remove()

	p := &Page{URL: pageURL, Title: clean(doc.Find("title").First().Text())}
	base := pageName(pageURL)
	doc.Find("table").Each(func(i int, t *goquery.Selection) {
		f := parseTable(t)
		if f == nil {
			return
		}
		f.Name = fmt.Sprintf("%s_table%d", base, len(p.Tables)+1)
		p.Tables = append(p.Tables, f)
		p.wiki = append(p.wiki, t.HasClass("wikitable"))
	})

	text := clean(doc.Find("body").Text())
	if utf8.RuneCountInString(text) > maxTextRunes {
		text = string([]rune(text)[:maxTextRunes])
	}
	p.Text = text
	return p, nil
}

// parseTable reads the rows of one table, skipping nested tables. The first
// row is the header; colspan cells are repeated across the columns they span.
func parseTable(t *goquery.Selection) *analysis.Frame {
	var rows [][]string
	t.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Closest("table").Get(0) != t.Get(0) {
			return
		}
		var row []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
			v := clean(c.Text())
			span := 1
			if n, err := strconv.Atoi(c.AttrOr("colspan", "1")); err == nil && n > 1 {
				span = n
			}
			for k := 0; k < span && k < 50; k++ {
				row = append(row, v)
			}
		})
		if len(row) > 0 {
			rows = append(rows, row)
		}
	})
	if len(rows) == 0 {
		return nil
	}
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	header := make([]string, width)
	copy(header, rows[0])
	for i, h := range header {
		if h == "" {
			header[i] = fmt.Sprintf("column_%d", i+1)
		}
	}
	return analysis.NewFrame("", header, rows[1:])
}

// BestTable picks the table whose header shares the most words with hint,
// preferring wikitable tables, then the table with the most rows.
func BestTable(p *Page, hint string) *analysis.Frame {
	if p == nil || len(p.Tables) == 0 {
		return nil
	}
	words := hintWords(hint)
	best, bestScore := -1, -1
	for i, f := range p.Tables {
		head := strings.ToLower(strings.Join(f.Header, " "))
		score := 0
		for _, w := range words {
			if strings.Contains(head, w) {
				score += 100
			}
		}
		if i < len(p.wiki) && p.wiki[i] {
			score += 50
		}
		score += min(f.NumRows(), 49)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return p.Tables[best]
}

var stopwords = map[string]bool{
	"the": true, "and": true, "what": true, "which": true, "how": true, "many": true,
	"with": true, "from": true, "that": true, "this": true, "for": true, "are": true,
	"was": true, "were": true, "before": true, "after": true, "between": true, "answer": true,
}

func hintWords(hint string) []string {
	var out []string
	seen := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(hint), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(w) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// pageName derives a short identifier from the last URL path segment.
func pageName(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "page"
	}
	name := path.Base(strings.TrimRight(u.Path, "/"))
	if name == "" || name == "." || name == "/" {
		name = u.Hostname()
	}
	if dec, err := url.PathUnescape(name); err == nil {
		name = dec
	}
	if name == "" {
		return "page"
	}
	return name
}

func clean(s string) string {
	s = footnote.ReplaceAllString(s, "")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
