package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

//go:embed js/locate.js
var locateScript string

//go:embed js/fill.js
var fillScript string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	modeField   = "field"
	modeControl = "control"
	modeText    = "text"
)

// Locator resolves elements on an unknown page. Implementations never
// interact with what they find.
type Locator interface {
	// Field finds the first usable input whose label, aria-label or
	// placeholder matches p, trying labels first.
	Field(ctx context.Context, page Page, p Pattern) (Handle, error)
	// Control finds the first visible button or link whose text matches p.
	Control(ctx context.Context, page Page, p Pattern) (Handle, error)
	// TextEntry finds the first visible free-text entry.
	TextEntry(ctx context.Context, page Page) (Handle, error)
}

// HeuristicLocator polls an in-page script until an element matches or the
// wait window elapses.
type HeuristicLocator struct {
	Wait     time.Duration
	Interval time.Duration
	logger   *zap.Logger
}

var _ Locator = (*HeuristicLocator)(nil)

// NewHeuristicLocator returns a locator that waits up to wait, retrying every
// interval.
func NewHeuristicLocator(wait, interval time.Duration, logger *zap.Logger) *HeuristicLocator {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &HeuristicLocator{Wait: wait, Interval: interval, logger: logger.Named("locator")}
}

func (l *HeuristicLocator) Field(ctx context.Context, page Page, p Pattern) (Handle, error) {
	return l.poll(ctx, page, modeField, p)
}

func (l *HeuristicLocator) Control(ctx context.Context, page Page, p Pattern) (Handle, error) {
	return l.poll(ctx, page, modeControl, p)
}

func (l *HeuristicLocator) TextEntry(ctx context.Context, page Page) (Handle, error) {
	return l.poll(ctx, page, modeText, Pattern{})
}

// locateExpression builds the call expression for one lookup.
func locateExpression(mode string, p Pattern) (string, error) {
	args, err := json.Marshal([]string{mode, p.Source()})
	if err != nil {
		return "", err
	}
	// args is a JSON array; strip the brackets to use it as an argument list.
	return locateScript + "(" + string(args[1:len(args)-1]) + ")", nil
}

func (l *HeuristicLocator) poll(ctx context.Context, page Page, mode string, p Pattern) (Handle, error) {
	expr, err := locateExpression(mode, p)
	if err != nil {
		return "", fmt.Errorf("building locator script: %w", err)
	}

	deadline := time.NewTimer(l.Wait)
	defer deadline.Stop()
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var selector string
		err := page.Evaluate(ctx, expr, &selector)
		switch {
		case err == nil && selector != "":
			return Handle(selector), nil
		case err != nil:
			// Evaluation fails while a navigation is in flight; keep polling.
			lastErr = err
			l.logger.Debug("Locator evaluation failed, retrying.", zap.String("mode", mode), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", notFound(mode, p, l.Wait, lastErr)
		case <-ticker.C:
		}
	}
}

func notFound(mode string, p Pattern, wait time.Duration, lastErr error) error {
	what := mode
	if p.re != nil {
		what = fmt.Sprintf("%s %s", mode, p)
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %s within %s: %w", ErrFieldNotFound, what, wait, lastErr)
	}
	return fmt.Errorf("%w: %s within %s", ErrFieldNotFound, what, wait)
}

// IsNotFound reports whether err came from a locator timing out.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFieldNotFound)
}
