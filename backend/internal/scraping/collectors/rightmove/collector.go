// backend/internal/scraping/collectors/rightmove/collector.go

// Package rightmove scrapes rental search results for a postcode outcode.
package rightmove

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/internal/scraping/text"
)

const maxListingText = 500

type Config struct {
	BaseURL    string
	SearchPath string
	// LocationCodes maps an outcode to its OUTCODE^<code> search identifier.
	LocationCodes       map[string]string
	DefaultLocationCode string
	MaxPages            int
	UserAgent           string
	Delay               time.Duration
	RandomDelay         time.Duration
	Timeout             time.Duration
	Logger              *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.rightmove.co.uk"
	}
	if c.SearchPath == "" {
		c.SearchPath = "/property-to-rent/find.html"
	}
	if c.DefaultLocationCode == "" {
		c.DefaultLocationCode = "1676"
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type Collector struct {
	collector *colly.Collector
	cfg       Config
}

func NewCollector(cfg Config) (*Collector, error) {
	cfg.defaults()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("rightmove: base url: %w", err)
	}

	opts := []colly.CollectorOption{
		colly.AllowedDomains(base.Hostname(), base.Host),
		colly.AllowURLRevisit(),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(cfg.Timeout)

	if cfg.Delay > 0 || cfg.RandomDelay > 0 {
		if err := c.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Parallelism: 1,
			Delay:       cfg.Delay,
			RandomDelay: cfg.RandomDelay,
		}); err != nil {
			return nil, fmt.Errorf("rightmove: limit rule: %w", err)
		}
	}

	return &Collector{collector: c, cfg: cfg}, nil
}

func (p *Collector) Source() domain.Source { return domain.SourceRightmove }

// SearchURL builds the let-agreed-inclusive search for outcode.
func (p *Collector) SearchURL(outcode string) string {
	code, ok := p.cfg.LocationCodes[outcode]
	if !ok || code == "" {
		code = p.cfg.DefaultLocationCode
	}
	q := url.Values{}
	q.Set("searchLocation", outcode)
	q.Set("useLocationIdentifier", "true")
	q.Set("locationIdentifier", "OUTCODE^"+code)
	q.Set("radius", "0.0")
	q.Set("_includeLetAgreed", "on")
	return strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.SearchPath + "?" + q.Encode()
}

// Fetch walks up to MaxPages result pages following link[rel=next]. A
// failing first page fails the key; a failing later page ends pagination
// with the listings gathered so far.
func (p *Collector) Fetch(ctx context.Context, outcode string) ([]domain.Entity, error) {
	c := p.collector.Clone()

	var (
		listings []domain.Listing
		seen     = make(map[string]bool)
		next     string
	)

	c.OnHTML("a[href*='/properties/']", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		link := e.Request.AbsoluteURL(href)
		id := PropertyID(link)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true

		l := parseCard(card(e.DOM))
		l.PropertyID = id
		l.PropertyURL = stripURL(link)
		l.PostcodeFilter = outcode
		listings = append(listings, l)
	})

	c.OnHTML("link[rel='next']", func(e *colly.HTMLElement) {
		if href := e.Attr("href"); href != "" {
			next = e.Request.AbsoluteURL(href)
		}
	})

	pageURL := p.SearchURL(outcode)
	for page := 1; page <= p.cfg.MaxPages && pageURL != ""; page++ {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(outcode, err)
		}
		before := len(listings)
		next = ""

		p.cfg.Logger.Debug("rightmove: visiting", "url", pageURL, "page", page)
		if err := c.Visit(pageURL); err != nil {
			if page == 1 {
				return nil, p.fail(outcode, fmt.Errorf("request URL %v failed: %w", pageURL, err))
			}
			p.cfg.Logger.Warn("rightmove: error scraping page", "page", page, "error", err)
			break
		}
		c.Wait()

		p.cfg.Logger.Info("rightmove: page scraped", "outcode", outcode, "page", page, "properties", len(listings)-before)
		pageURL = next
	}

	entities := make([]domain.Entity, len(listings))
	for i, l := range listings {
		entities[i] = l
	}
	return entities, nil
}

func (p *Collector) fail(outcode string, err error) error {
	return &domain.ExtractionError{Source: domain.SourceRightmove, Key: outcode, Err: err}
}

// card finds the listing card around a property link.
func card(a *goquery.Selection) *goquery.Selection {
	if c := a.Closest("div[class*='propertyCard']"); c.Length() > 0 {
		return c
	}
	if c := a.Closest("article"); c.Length() > 0 {
		return c
	}
	return a.Parent()
}

func parseCard(card *goquery.Selection) domain.Listing {
	body := text.InnerText(card)
	l := domain.Listing{ListingText: text.Truncate(body, maxListingText)}

	// "£2,100 pcm | £485 pw"
	for _, line := range strings.Split(body, "\n") {
		if !strings.Contains(line, "£") || !strings.Contains(line, "pcm") {
			continue
		}
		for _, part := range strings.Split(line, "|") {
			if strings.Contains(part, "£") && strings.Contains(part, "pcm") {
				l.Price = strings.TrimSpace(part)
				break
			}
		}
		break
	}

	upper := strings.ToUpper(body)
	l.IsFeatured = strings.Contains(upper, "FEATURED")
	l.IsPromoted = strings.Contains(upper, "PROMOTED") || strings.Contains(upper, "SPONSORED")

	addr := card.Find("address").First()
	if addr.Length() == 0 {
		addr = card.Find("[class*='address']").First()
	}
	l.Address = text.Clean(addr.Text())
	l.Postcode = text.Postcode(l.Address)
	return l
}

// PropertyID returns the numeric id of a /properties/<id> URL, or "".
func PropertyID(link string) string {
	_, rest, ok := strings.Cut(link, "/properties/")
	if !ok {
		return ""
	}
	if i := strings.IndexAny(rest, "?#/"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return ""
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return rest
}

// stripURL drops the query and fragment; search tracking parameters would
// otherwise register as a change on every scrape.
func stripURL(link string) string {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		return link[:i]
	}
	return link
}
