package harvest

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors of the flash-sale markup.
const (
	cardSelector      = `a[data-spm="dproduct"]`
	titleSelector     = ".lte_product_card_title"
	priceIntSelector  = ".lte_product_card_price_main_integer"
	priceDecSelector  = ".lte_product_card_price_main_decimal"
	crossOutSelector  = ".lte_product_card_price_cross_out"
	detailsSelector   = "#module_product-details"
	mainPhotoSelector = "img.main-photo"
)

var (
	nonDigits     = regexp.MustCompile(`\D+`)
	whitespace    = regexp.MustCompile(`\s+`)
	crossOutPrice = regexp.MustCompile(`(\d{1,4})(?:[.,](\d{1,2}))?`)
)

// Card is one listing as it appears on the flash-sale page.
type Card struct {
	URL      string
	Title    string
	PriceNow *float64
	PriceWas *float64
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func joinPrice(integer, decimal string) *float64 {
	v, err := strconv.ParseFloat(integer+"."+decimal, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseMainPrice combines the integer and decimal parts of a card price.
// Non-digits are dropped and the decimal part is padded or truncated to two
// digits. It returns nil when the integer part has no digits.
func ParseMainPrice(integer string, decimal *string) *float64 {
	i := nonDigits.ReplaceAllString(integer, "")
	if i == "" {
		return nil
	}
	d := "00"
	if decimal != nil {
		d = nonDigits.ReplaceAllString(*decimal, "")
		switch {
		case len(d) == 0:
			d = "00"
		case len(d) == 1:
			d += "0"
		case len(d) > 2:
			d = d[:2]
		}
	}
	return joinPrice(i, d)
}

// ParseCrossedOutPrice extracts the first price-looking number from text,
// for example "19,9 €" or "PVP 1.299". Only up to four integer digits are
// considered, so thousands separators cut the value short.
func ParseCrossedOutPrice(text string) *float64 {
	m := crossOutPrice.FindStringSubmatch(collapse(text))
	if m == nil {
		return nil
	}
	d := m[2]
	switch len(d) {
	case 0:
		d = "00"
	case 1:
		d += "0"
	}
	return joinPrice(m[1], d)
}

// ParseCards extracts listing cards from the flash-sale page HTML. Cards
// without a link or title are dropped. Relative links are resolved against
// base. At most limit cards are returned when limit is positive.
func ParseCards(html string, base *url.URL, limit int) ([]Card, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing listing page: %w", err)
	}

	var cards []Card
	doc.Find(cardSelector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		title := collapse(a.Find(titleSelector).First().Text())
		if href == "" || title == "" {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}

		card := Card{URL: base.ResolveReference(ref).String(), Title: title}

		if pi := a.Find(priceIntSelector).First(); pi.Length() > 0 {
			var dec *string
			if pd := a.Find(priceDecSelector).First(); pd.Length() > 0 {
				text := pd.Text()
				dec = &text
			}
			card.PriceNow = ParseMainPrice(pi.Text(), dec)
		}
		if pw := a.Find(crossOutSelector).First(); pw.Length() > 0 {
			card.PriceWas = ParseCrossedOutPrice(pw.Text())
		}

		cards = append(cards, card)
		return limit <= 0 || len(cards) < limit
	})
	return cards, nil
}

// Detail is what a product page contributes to an Item.
type Detail struct {
	Description string
	Image       string
}

// ParseDetail reads the product description and main photo from a detail
// page. Missing parts are left empty.
func ParseDetail(html string) (Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Detail{}, fmt.Errorf("parsing detail page: %w", err)
	}

	details := doc.Find(detailsSelector).First()
	details.Find("script, style, noscript").Remove()

	var d Detail
	d.Description = collapse(details.Text())

	img := doc.Find(mainPhotoSelector).First()
	if src, _ := img.Attr("src"); src != "" {
		d.Image = src
	} else if src, _ := img.Attr("data-src"); src != "" {
		d.Image = src
	}
	return d, nil
}

// Summarize returns the first maxWords words of text, followed by an
// ellipsis when text was longer.
func Summarize(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "…"
}
