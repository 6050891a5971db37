// Package browser wraps a headless Chrome tab behind the small set of page
// operations the publish and harvest flows need, and provides the heuristic
// element locator used to drive forms without stable identifiers.
package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrFieldNotFound is returned by a Locator when nothing matched within
	// its wait window.
	ErrFieldNotFound = errors.New("field_not_found")
	// ErrChallenge is returned when the page location matches an anti-bot or
	// CAPTCHA pattern.
	ErrChallenge = errors.New("captcha_or_antibot")
)

// Handle is a CSS selector that uniquely identifies an element the locator
// has stamped.
type Handle string

// Page is the capability set a flow needs from one browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	// Evaluate runs a JavaScript expression and decodes its JSON result into out.
	Evaluate(ctx context.Context, expression string, out interface{}) error
	Fill(ctx context.Context, h Handle, value string) error
	// Type sends text one character at a time, pausing delay between characters.
	Type(ctx context.Context, h Handle, text string, delay time.Duration) error
	Click(ctx context.Context, h Handle) error
	PressEnter(ctx context.Context, h Handle) error
	WaitVisible(ctx context.Context, selector string) error
	// Settle pauses for d and then waits for the document to finish loading.
	Settle(ctx context.Context, d time.Duration) error
	HTML(ctx context.Context) (string, error)
}

// Session owns one browser process and its single tab.
type Session interface {
	Page() Page
	// Close releases the browser. It is safe to call more than once.
	Close() error
}

// Launcher starts isolated browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Pattern is a case-insensitive regular expression that is evaluated both in
// Go and inside the page.
type Pattern struct {
	source string
	re     *regexp.Regexp
}

// NewPattern compiles src case-insensitively.
func NewPattern(src string) (Pattern, error) {
	re, err := regexp.Compile("(?i)" + src)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid pattern %q: %w", src, err)
	}
	return Pattern{source: src, re: re}, nil
}

// MustPattern is like NewPattern but panics on error.
func MustPattern(src string) Pattern {
	p, err := NewPattern(src)
	if err != nil {
		panic(err)
	}
	return p
}

// Source returns the pattern without the case-insensitivity flag, in a
// form the page's RegExp constructor accepts.
func (p Pattern) Source() string { return p.source }

func (p Pattern) String() string { return "/" + p.source + "/i" }

// MatchString reports whether s matches. The zero Pattern matches nothing.
func (p Pattern) MatchString(s string) bool {
	return p.re != nil && p.re.MatchString(s)
}

// CheckChallenge reads the page location and returns it together with
// ErrChallenge when it matches pattern.
func CheckChallenge(ctx context.Context, page Page, pattern Pattern) (string, error) {
	loc, err := page.Location(ctx)
	if err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	if pattern.MatchString(loc) {
		return loc, fmt.Errorf("%w: redirected to %s", ErrChallenge, loc)
	}
	return loc, nil
}
