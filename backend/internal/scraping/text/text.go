// Package text normalises text pulled out of scraped HTML.
package text

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var (
	spaces = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	// Full UK postcode, or an outward code on its own.
	postcodeRe = regexp.MustCompile(`\b([A-Z]{1,2}[0-9][A-Z0-9]?)(?:\s*([0-9][A-Z]{2}))?\b`)
	strict     = bluemonday.StrictPolicy()
)

// Clean collapses runs of whitespace into one space and trims the ends.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Lines splits s on newlines, trims every line and drops the empty ones.
func Lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(spaces.ReplaceAllString(l, " "))
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

var blockTags = "div, p, li, ul, ol, h1, h2, h3, h4, h5, h6, address, article, section, header, footer, br, tr, dt, dd"

// InnerText approximates the browser innerText of sel: tags are stripped and
// block elements start and end a line. sel is not modified.
func InnerText(sel *goquery.Selection) string {
	c := sel.Clone()
	blocks := c.Find(blockTags)
	blocks.BeforeHtml("\n")
	blocks.AfterHtml("\n")
	c.Find("script, style, noscript").Remove()
	raw, err := goquery.OuterHtml(c)
	if err != nil {
		return Clean(sel.Text())
	}
	plain := html.UnescapeString(strict.Sanitize(raw))
	return strings.Join(Lines(plain), "\n")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// SnakeCase turns a field label like "Licence start date" into
// "licence_start_date".
func SnakeCase(label string) string {
	s := strings.ToLower(Clean(label))
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// Postcode returns the last full UK postcode found in s, normalised to
// "OUT IN" form. An outward code alone ("N19") yields "".
func Postcode(s string) string {
	matches := postcodeRe.FindAllStringSubmatch(strings.ToUpper(s), -1)
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if m[2] != "" {
			return m[1] + " " + m[2]
		}
	}
	return ""
}
