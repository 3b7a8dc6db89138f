// Package crawler reads event listing pages and turns their event cards into
// seed records.
package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/joshua-takyi/nearby/internal/seed"
)

const DefaultListingURL = "https://www.eventbrite.com/d/argentina--buenos-aires/all-events/"

// maxPageBytes bounds a fetched listing page.
const maxPageBytes = 10 << 20

// Listing is what one event card shows.
type Listing struct {
	Title     string `json:"title"`
	StartDate string `json:"datetime"`
	Venue     string `json:"location"`
	URL       string `json:"url"`
	ImageURL  string `json:"image_url"`
}

// Record maps the card onto a seed record. Coordinates are left for the
// importer to geocode from the venue.
func (l Listing) Record() seed.Record {
	return seed.Record{
		Title:       l.Title,
		Description: l.URL,
		Image:       l.ImageURL,
		Date:        l.StartDate,
		Location:    l.Venue,
	}
}

// ParseListing extracts every event card from a listing page. Relative links
// are resolved against base when it is set. Cards with none of the fields are
// dropped.
func ParseListing(r io.Reader, base *url.URL) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page: %w", err)
	}

	listings := []Listing{}
	doc.Find(`article[data-testid="event-card"]`).Each(func(i int, card *goquery.Selection) {
		l := Listing{
			Title:     cardText(card, `[data-testid="event-card-title"]`),
			StartDate: cardText(card, `[data-testid="event-card-start-date"]`),
			Venue:     cardText(card, `[data-testid="event-card-venue"]`),
		}
		if href, ok := card.Find(`a[data-testid="event-card-link"]`).First().Attr("href"); ok {
			l.URL = resolve(base, href)
		}
		if src, ok := card.Find("img").First().Attr("src"); ok {
			l.ImageURL = resolve(base, src)
		}
		if l == (Listing{}) {
			return
		}
		listings = append(listings, l)
	})
	return listings, nil
}

func cardText(card *goquery.Selection, selector string) string {
	return strings.Join(strings.Fields(card.Find(selector).First().Text()), " ")
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// Fetcher returns the HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// HTTPFetcher fetches pages with a plain GET. It only sees server-rendered
// markup.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html")

	res, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", fmt.Errorf("failed to fetch %s: status %d", pageURL, res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", pageURL, err)
	}
	return string(body), nil
}

type Crawler struct {
	fetcher Fetcher
	logger  *slog.Logger
}

func New(fetcher Fetcher, logger *slog.Logger) *Crawler {
	return &Crawler{fetcher: fetcher, logger: logger}
}

// Listings fetches and parses one listing page.
func (c *Crawler) Listings(ctx context.Context, listingURL string) ([]Listing, error) {
	base, err := url.Parse(listingURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listing url: %w", err)
	}

	html, err := c.fetcher.Fetch(ctx, listingURL)
	if err != nil {
		return nil, err
	}

	listings, err := ParseListing(strings.NewReader(html), base)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Crawled listing page", "url", listingURL, "events", len(listings))
	return listings, nil
}

// Records is Listings mapped onto seed records.
func (c *Crawler) Records(ctx context.Context, listingURL string) ([]seed.Record, error) {
	listings, err := c.Listings(ctx, listingURL)
	if err != nil {
		return nil, err
	}
	records := make([]seed.Record, 0, len(listings))
	for _, l := range listings {
		records = append(records, l.Record())
	}
	return records, nil
}
