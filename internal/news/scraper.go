package news

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"ai-grid-trader/internal/api"
	"ai-grid-trader/internal/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Headline is one scraped news item.
type Headline struct {
	Title  string `json:"title"`
	URL    string `json:"url,omitempty"`
	Source string `json:"source"`
}

// Source is a page listing headlines. URL may contain {symbol}.
type Source struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Item     string `yaml:"item"`  // container selector
	Title    string `yaml:"title"` // title selector inside the container, empty for the container text
	Link     string `yaml:"link"`
	Fallback bool   `yaml:"fallback"` // fetched only when the primary sources return nothing
}

// Scraper collects headlines with colly. Fallback sources are fetched
// through the shared HTTP client and parsed with goquery directly.
type Scraper struct {
	sources []Source
	timeout time.Duration
	http    *api.Client
}

// DefaultSources are Taiwan market pages.
func DefaultSources() []Source {
	return []Source{
		{
			Name:  "cnyes",
			URL:   "https://news.cnyes.com/news/cat/tw_stock",
			Item:  "a[href*='/news/id/']",
			Title: "h3",
		},
		{
			Name:  "moneydj",
			URL:   "https://www.moneydj.com/kmdj/news/newsreallist.aspx?a=mb010000",
			Item:  "table.forumgrid tr td a",
			Title: "",
		},
		{
			Name:     "google-news",
			URL:      "https://news.google.com/search?q={symbol}%20%E8%82%A1%E5%83%B9&hl=zh-TW&gl=TW&ceid=TW:zh-Hant",
			Item:     "article",
			Title:    "h3, h4, a.JtKRv",
			Link:     "a",
			Fallback: true,
		},
	}
}

func NewScraper(sources []Source, timeout time.Duration, opts ...api.ClientOption) *Scraper {
	if sources == nil {
		sources = DefaultSources()
	}
	base := []api.ClientOption{api.WithTimeout(timeout), api.WithHeader("User-Agent", userAgent), api.WithHeader("Accept", "text/html")}
	return &Scraper{
		sources: sources,
		timeout: timeout,
		http:    api.NewClient(append(base, opts...)...),
	}
}

// Headlines returns at most max deduplicated headlines across sources.
func (s *Scraper) Headlines(ctx context.Context, symbol string, max int) ([]Headline, error) {
	var primary, fallback []Source
	for _, src := range s.sources {
		if src.Fallback {
			fallback = append(fallback, src)
		} else {
			primary = append(primary, src)
		}
	}

	var out []Headline
	var lastErr error
	seen := make(map[string]bool)
	add := func(hs []Headline) {
		for _, h := range hs {
			if len(out) >= max {
				return
			}
			if h.Title == "" || seen[h.Title] {
				continue
			}
			seen[h.Title] = true
			out = append(out, h)
		}
	}

	for _, src := range primary {
		hs, err := s.scrapeSource(ctx, src, symbol, max)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to scrape source", err, "source", src.Name, "symbol", symbol)
			lastErr = err
			continue
		}
		add(hs)
	}

	if len(out) == 0 {
		for _, src := range fallback {
			hs, err := s.fetchFallback(ctx, src, symbol, max)
			if err != nil {
				logger.ErrorWithErr(ctx, "Fallback source failed", err, "source", src.Name, "symbol", symbol)
				lastErr = err
				continue
			}
			add(hs)
		}
	}

	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func (s *Scraper) scrapeSource(ctx context.Context, src Source, symbol string, max int) ([]Headline, error) {
	target := sourceURL(src, symbol)
	var hs []Headline

	c := colly.NewCollector(
		colly.AllowedDomains(getDomain(target)),
		colly.MaxDepth(1),
		colly.Async(false),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", userAgent)
	})

	c.OnHTML(src.Item, func(e *colly.HTMLElement) {
		if len(hs) >= max {
			return
		}
		h := extract(e.DOM, src, e.Request.AbsoluteURL)
		if h.Title != "" {
			hs = append(hs, h)
		}
	})

	var scrapeErr error
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = fmt.Errorf("%s: HTTP %d: %w", src.Name, r.StatusCode, err)
	})

	if err := c.Visit(target); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", target, err)
	}
	c.Wait()

	if scrapeErr != nil {
		return nil, scrapeErr
	}
	return hs, nil
}

func (s *Scraper) fetchFallback(ctx context.Context, src Source, symbol string, max int) ([]Headline, error) {
	target := sourceURL(src, symbol)
	resp, err := s.http.GET(ctx, target)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.Name, err)
	}

	base, _ := url.Parse(target)
	abs := func(href string) string {
		if base == nil || href == "" {
			return href
		}
		ref, err := url.Parse(href)
		if err != nil {
			return href
		}
		return base.ResolveReference(ref).String()
	}

	var hs []Headline
	doc.Find(src.Item).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if h := extract(sel, src, abs); h.Title != "" {
			hs = append(hs, h)
		}
		return len(hs) < max
	})
	return hs, nil
}

func extract(sel *goquery.Selection, src Source, abs func(string) string) Headline {
	title := sel.Text()
	if src.Title != "" {
		title = sel.Find(src.Title).First().Text()
	}
	link, _ := sel.Attr("href")
	if src.Link != "" {
		link, _ = sel.Find(src.Link).First().Attr("href")
	}
	return Headline{
		Title:  strings.Join(strings.Fields(title), " "),
		URL:    abs(link),
		Source: src.Name,
	}
}

func sourceURL(src Source, symbol string) string {
	return strings.ReplaceAll(src.URL, "{symbol}", url.QueryEscape(symbol))
}

// getDomain extracts the host name from a URL.
func getDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
