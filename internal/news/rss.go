package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
)

// rssFeed covers the RSS 2.0 shape every wire we consume emits. Atom feeds
// are out; the vendors we poll all publish RSS.
type rssFeed struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// RSSSource polls one RSS 2.0 feed URL.
type RSSSource struct {
	name    string
	feedURL string
	client  httpDoer
	now     func() time.Time
}

// NewRSSSource creates an RSS feed source.
func NewRSSSource(name, feedURL string) *RSSSource {
	return &RSSSource{name: name, feedURL: feedURL, client: defaultHTTPClient(), now: time.Now}
}

// WithRSSClient swaps the transport, for tests.
func (s *RSSSource) WithRSSClient(c httpDoer) *RSSSource {
	s.client = c
	return s
}

func (s *RSSSource) Name() string { return s.name }

// Fetch pulls the feed and returns items published after the cutoff.
func (s *RSSSource) Fetch(ctx context.Context, since time.Time) ([]domain.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build rss request: %v", domain.ErrInternal, err)
	}
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

	var feed rssFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("%w: %s decode: %v", domain.ErrNetwork, s.name, err)
	}

	fetchedAt := s.now().UTC()
	var out []domain.Article
	for _, item := range feed.Channel.Items {
		published := parsePubDate(item.PubDate, fetchedAt)
		if published.Before(since) {
			continue
		}
		out = append(out, domain.Article{
			ID:          domain.ArticleID(item.Link, s.name, item.Title, published),
			Title:       item.Title,
			Body:        item.Description,
			Source:      s.name,
			URL:         item.Link,
			PublishedAt: published,
			FetchedAt:   fetchedAt,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmpty, s.name)
	}
	return out, nil
}

// parsePubDate accepts the date formats seen on real feeds; an unparseable
// date falls back to fetch time rather than dropping the item.
func parsePubDate(raw string, fallback time.Time) time.Time {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339, time.RFC822Z, time.RFC822} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
