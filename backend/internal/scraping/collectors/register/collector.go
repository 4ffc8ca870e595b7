// backend/internal/scraping/collectors/register/collector.go

// Package register scrapes the property licensing public register: a
// postcode search followed by one detail page (and an optional "Additional
// details" page) per licensed property.
package register

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/internal/scraping/fetch"
	"github.com/ps-vitor/lettings-watch/backend/internal/scraping/text"
)

const (
	selAddress = "div.grid-row div.column-full h1.heading-large"
	selLicence = "div.grid-row div.column-full h2.heading-medium"
	selFields  = "div.grid-row div.column-full > div > p"
)

// fieldNames maps detail page labels onto record fields. Other labels on
// the main detail page are ignored.
var fieldNames = map[string]string{
	"Licence type":             "licence_type",
	"Licence reference number": "licence_number",
	"Year built":               "year_built",
	"Property description":     "property_description",
	"Licence holder name":      "licence_holder_name",
	"Licence holder address":   "licence_holder_address",
	"UPRN":                     "uprn",
	"Licence start date":       "licence_start_date",
	"Licence end date":         "licence_end_date",
}

type Config struct {
	BaseURL    string
	SearchPath string
	// DetailDelay is the pause between two detail pages.
	DetailDelay time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.SearchPath == "" {
		c.SearchPath = "/public-register"
	}
	if c.Sleep == nil {
		c.Sleep = fetch.Sleep
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type Collector struct {
	src fetch.PageSource
	cfg Config
}

func NewCollector(src fetch.PageSource, cfg Config) *Collector {
	cfg.defaults()
	return &Collector{src: src, cfg: cfg}
}

func (c *Collector) Source() domain.Source { return domain.SourceRegister }

// Fetch searches the register for postcode and returns one Licence per
// result. A failing detail or additional details page fails the whole key
// so it is retried.
func (c *Collector) Fetch(ctx context.Context, postcode string) ([]domain.Entity, error) {
	results, err := c.search(ctx, postcode)
	if err != nil {
		return nil, c.fail(postcode, err)
	}
	c.cfg.Logger.Info("register: search results", "postcode", postcode, "properties", len(results))

	entities := make([]domain.Entity, 0, len(results))
	for i, lic := range results {
		if i > 0 {
			if err := c.cfg.Sleep(ctx, c.cfg.DetailDelay); err != nil {
				return nil, c.fail(postcode, err)
			}
		}
		if err := c.details(ctx, &lic); err != nil {
			return nil, c.fail(postcode, err)
		}
		if lic.LicenceNumber() == "" {
			c.cfg.Logger.Warn("register: no licence number, entity id may collide",
				"address", lic.Address, "entity", lic.EntityID())
		}
		entities = append(entities, lic)
	}
	return entities, nil
}

func (c *Collector) fail(postcode string, err error) error {
	return &domain.ExtractionError{Source: domain.SourceRegister, Key: postcode, Err: err}
}

func (c *Collector) search(ctx context.Context, postcode string) ([]domain.Licence, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.SearchPath + "?search_query=" + url.QueryEscape(postcode)
	doc, err := c.src.Document(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	seen := make(map[string]bool)
	var out []domain.Licence
	doc.Find("h2 a").Each(func(_ int, a *goquery.Selection) {
		addr := text.Clean(a.Text())
		href, _ := a.Attr("href")
		if addr == "" || href == "" {
			return
		}
		link := c.resolve(doc, href)
		if seen[link] {
			return
		}
		seen[link] = true
		out = append(out, domain.Licence{
			Address:        addr,
			Postcode:       text.Postcode(addr),
			PostcodeFilter: postcode,
			DetailURL:      link,
		})
	})
	return out, nil
}

func (c *Collector) details(ctx context.Context, lic *domain.Licence) error {
	doc, err := c.src.Document(ctx, lic.DetailURL)
	if err != nil {
		return fmt.Errorf("details %s: %w", lic.DetailURL, err)
	}
	lic.Details = ParseDetails(doc)
	if lic.Postcode == "" {
		lic.Postcode = text.Postcode(lic.Details["address"])
	}

	link, ok := additionalLink(doc)
	if !ok {
		return nil
	}
	if err := c.cfg.Sleep(ctx, c.cfg.DetailDelay); err != nil {
		return err
	}
	// A record saved without its additional details would differ from the
	// stored one and create a version, so the key fails instead.
	extraURL := c.resolve(doc, link)
	extra, err := c.src.Document(ctx, extraURL)
	if err != nil {
		return fmt.Errorf("additional details %s: %w", extraURL, err)
	}
	if fields := ParseAdditional(extra); len(fields) > 0 {
		lic.AdditionalDetails = fields
		c.cfg.Logger.Debug("register: additional details", "fields", len(fields))
	}
	return nil
}

func (c *Collector) resolve(doc *goquery.Document, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	base := doc.Url
	if base == nil {
		if base, err = url.Parse(c.cfg.BaseURL); err != nil {
			return href
		}
	}
	return base.ResolveReference(ref).String()
}

// ParseDetails reads the address, licence number and the known label/value
// fields of a detail page.
func ParseDetails(doc *goquery.Document) map[string]string {
	details := make(map[string]string)

	if h1 := text.Clean(doc.Find(selAddress).First().Text()); h1 != "" {
		details["address"] = h1
	}
	// "Licence number ISL-403549725326"
	if h2 := text.Clean(doc.Find(selLicence).First().Text()); strings.Contains(h2, "ISL-") {
		details["licence_number"] = strings.TrimSpace(strings.Replace(h2, "Licence number", "", 1))
	}

	doc.Find(selFields).Each(func(_ int, p *goquery.Selection) {
		label, value, ok := labelValue(p)
		if !ok {
			return
		}
		if field, known := fieldNames[label]; known {
			details[field] = value
		}
	})
	return details
}

// ParseAdditional reads every label/value field of the additional details
// page, keyed by the snake_case label.
func ParseAdditional(doc *goquery.Document) map[string]string {
	fields := make(map[string]string)
	doc.Find(selFields).Each(func(_ int, p *goquery.Selection) {
		if label, value, ok := labelValue(p); ok {
			fields[text.SnakeCase(label)] = value
		}
	})
	return fields
}

// labelValue splits a field paragraph. The label is the bold span when
// there is one, otherwise the first line of text.
func labelValue(p *goquery.Selection) (string, string, bool) {
	if bold := p.Find("span.bold, strong, b").First(); bold.Length() > 0 {
		label := text.Clean(bold.Text())
		value := strings.TrimSpace(strings.TrimPrefix(text.Clean(p.Text()), label))
		return label, value, label != "" && value != ""
	}
	lines := text.Lines(p.Text())
	if len(lines) < 2 {
		return "", "", false
	}
	return lines[0], lines[1], true
}

func additionalLink(doc *goquery.Document) (string, bool) {
	var href string
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		h, _ := a.Attr("href")
		if strings.Contains(a.Text(), "Additional details") || strings.Contains(h, "additional") {
			href = h
			return false
		}
		return true
	})
	return href, href != ""
}
