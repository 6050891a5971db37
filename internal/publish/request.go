package publish

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Query keys of a publish request.
const (
	ParamTitle     = "t"
	ParamURL       = "u"
	ParamImage     = "img"
	ParamPrice     = "p"
	ParamRRP       = "r"
	ParamTimestamp = "ts"
)

// Request is a validated publish payload.
type Request struct {
	Title     string
	URL       string
	Image     string
	Price     *decimal.Decimal
	RRP       *decimal.Decimal
	Timestamp string
}

// ParseRequest reads a payload from query values. Title and URL are
// mandatory. A price that cannot be parsed is treated as absent.
func ParseRequest(q url.Values) (Request, error) {
	req := Request{
		Title:     strings.TrimSpace(q.Get(ParamTitle)),
		URL:       strings.TrimSpace(q.Get(ParamURL)),
		Image:     strings.TrimSpace(q.Get(ParamImage)),
		Price:     ParsePrice(q.Get(ParamPrice)),
		RRP:       ParsePrice(q.Get(ParamRRP)),
		Timestamp: q.Get(ParamTimestamp),
	}
	if req.Title == "" || req.URL == "" {
		return Request{}, ErrMissingTitleOrURL
	}
	return req, nil
}

// ParsePrice accepts "9.99", "9,99", "9,99 €" and "1.299,00". The last
// separator is taken as the decimal point. It returns nil for anything
// without digits or with a negative sign.
func ParsePrice(s string) *decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") {
		return nil
	}

	var intPart, fracPart strings.Builder
	sep := strings.LastIndexAny(s, ".,")
	for i, r := range s {
		if r < '0' || r > '9' {
			continue
		}
		if sep >= 0 && i > sep {
			fracPart.WriteRune(r)
		} else {
			intPart.WriteRune(r)
		}
	}
	if intPart.Len() == 0 && fracPart.Len() == 0 {
		return nil
	}

	num := intPart.String()
	if num == "" {
		num = "0"
	}
	if fracPart.Len() > 0 {
		num += "." + fracPart.String()
	}
	v, err := decimal.NewFromString(num)
	if err != nil {
		return nil
	}
	return &v
}

// FormatPrice renders v rounded to cents with a decimal comma.
func FormatPrice(v decimal.Decimal) string {
	return strings.Replace(v.StringFixed(2), ".", ",", 1)
}
