package text

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	require.Equal(t, "Licence number ISL-1", Clean("  Licence number\n\t ISL-1 "))
}

func TestLines(t *testing.T) {
	require.Equal(t, []string{"Licence type", "HMO"}, Lines("\n  Licence type \n\n   HMO\n"))
}

func TestSnakeCase(t *testing.T) {
	require.Equal(t, "licence_start_date", SnakeCase("Licence start date"))
	require.Equal(t, "no_of_self_contained_units", SnakeCase("No. of self-contained units"))
}

func TestPostcode(t *testing.T) {
	require.Equal(t, "N19 4JN", Postcode("Flat 2, 10 Example Road, London, n19 4jn"))
	require.Equal(t, "EC1A 1AA", Postcode("Barbican, EC1A1AA"))
	require.Equal(t, "", Postcode("Holloway Road, N19"))
	require.Equal(t, "", Postcode("no postcode here"))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "£1,5", Truncate("£1,500 pcm", 4))
	require.Equal(t, "short", Truncate("short", 10))
}

func TestInnerText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
<div class="propertyCard"><h2>2 bedroom flat</h2><address>Holloway Road, N19</address>
<div class="price">£2,100 pcm<span> | </span>£485 pw</div><script>var x = 1;</script>
<p>Fish &amp; chips nearby</p></div>`))
	require.NoError(t, err)

	card := doc.Find("div.propertyCard")
	got := InnerText(card)
	require.Equal(t, "2 bedroom flat\nHolloway Road, N19\n£2,100 pcm | £485 pw\nFish & chips nearby", got)
	// The document is left untouched.
	require.Equal(t, 1, doc.Find("script").Length())
}

func TestInnerTextSplitsInlineBeforeBlock(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<article><a href="/properties/1">House</a><p>£3,000 pcm</p>Garden<br>Parking</article>`))
	require.NoError(t, err)

	require.Equal(t, "House\n£3,000 pcm\nGarden\nParking", InnerText(doc.Find("article")))
}
