package news

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sawpanic/equityrun/internal/domain"
)

// HTMLSelectors maps a news page's markup to article fields. Item is a CSS
// selector for one headline block; the rest select within an item. TimeAttr
// names the attribute carrying a machine-readable timestamp (usually
// "datetime" on a <time> element); when empty or absent the fetch time is
// used.
type HTMLSelectors struct {
	Item     string `yaml:"item"`
	Title    string `yaml:"title"`
	Link     string `yaml:"link"`
	Summary  string `yaml:"summary"`
	Time     string `yaml:"time"`
	TimeAttr string `yaml:"time_attr"`
}

// HTMLSource scrapes headlines off a news listing page.
type HTMLSource struct {
	name      string
	pageURL   string
	selectors HTMLSelectors
	client    httpDoer
	now       func() time.Time
}

// NewHTMLSource creates a scraping source for one listing page.
func NewHTMLSource(name, pageURL string, selectors HTMLSelectors) *HTMLSource {
	return &HTMLSource{
		name: name, pageURL: pageURL, selectors: selectors,
		client: defaultHTTPClient(), now: time.Now,
	}
}

// WithHTMLClient swaps the transport, for tests.
func (s *HTMLSource) WithHTMLClient(c httpDoer) *HTMLSource {
	s.client = c
	return s
}

func (s *HTMLSource) Name() string { return s.name }

// Fetch scrapes the page and returns headlines newer than the cutoff.
func (s *HTMLSource) Fetch(ctx context.Context, since time.Time) ([]domain.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build html request: %v", domain.ErrInternal, err)
	}
	req.Header.Set("User-Agent", "equityrun/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrNetwork, s.name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, s.name)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: %s status %d", domain.ErrNetwork, s.name, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s parse: %v", domain.ErrNetwork, s.name, err)
	}

	base, _ := url.Parse(s.pageURL)
	fetchedAt := s.now().UTC()

	var out []domain.Article
	doc.Find(s.selectors.Item).Each(func(_ int, item *goquery.Selection) {
		title := strings.TrimSpace(item.Find(s.selectors.Title).First().Text())
		if title == "" {
			return
		}
		link, _ := item.Find(s.selectors.Link).First().Attr("href")
		link = resolveLink(base, link)

		published := fetchedAt
		if s.selectors.Time != "" {
			raw, ok := item.Find(s.selectors.Time).First().Attr(s.selectors.TimeAttr)
			if !ok {
				raw = strings.TrimSpace(item.Find(s.selectors.Time).First().Text())
			}
			published = parsePubDate(raw, fetchedAt)
		}
		if published.Before(since) {
			return
		}

		summary := ""
		if s.selectors.Summary != "" {
			summary = strings.TrimSpace(item.Find(s.selectors.Summary).First().Text())
		}
		out = append(out, domain.Article{
			ID:          domain.ArticleID(link, s.name, title, published),
			Title:       title,
			Body:        summary,
			Source:      s.name,
			URL:         link,
			PublishedAt: published,
			FetchedAt:   fetchedAt,
		})
	})
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmpty, s.name)
	}
	return out, nil
}

func resolveLink(base *url.URL, href string) string {
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
