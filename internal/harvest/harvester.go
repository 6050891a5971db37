// Package harvest scrapes the Miravia flash-sale listing and enriches each
// card with data from its product page.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/xkilldash9x/dealwire/internal/browser"
	"github.com/xkilldash9x/dealwire/internal/cache"
	"github.com/xkilldash9x/dealwire/internal/config"
	"github.com/xkilldash9x/dealwire/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrAntiBot is returned when the listing page redirects to a challenge.
var ErrAntiBot = errors.New("captcha_or_antibot")

// Item is one enriched listing record.
type Item struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	PriceNow *float64 `json:"priceNow"`
	PriceWas *float64 `json:"priceWas"`
	Image    string   `json:"image"`
	Summary  string   `json:"summary"`
}

// Harvester produces flash-sale items, caching results per requested size.
type Harvester struct {
	cfg       config.HarvestConfig
	base      *url.URL
	challenge browser.Pattern
	launcher  browser.Launcher
	cache     *cache.TTL[int, []Item]
	group     singleflight.Group
	slots     *semaphore.Weighted
	limiter   *rate.Limiter
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// New builds a Harvester. browserSlots bounds how many browsers it runs at
// once. metrics may be nil.
func New(cfg config.HarvestConfig, launcher browser.Launcher, browserSlots int, results *cache.TTL[int, []Item], metrics *observability.Metrics, logger *zap.Logger) (*Harvester, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid harvest base URL: %w", err)
	}
	challenge, err := browser.NewPattern(cfg.ChallengeURLPattern)
	if err != nil {
		return nil, err
	}
	if browserSlots <= 0 {
		browserSlots = 1
	}
	return &Harvester{
		cfg:       cfg,
		base:      base,
		challenge: challenge,
		launcher:  launcher,
		cache:     results,
		slots:     semaphore.NewWeighted(int64(browserSlots)),
		limiter:   rate.NewLimiter(rate.Limit(cfg.DetailRate), 1),
		metrics:   metrics,
		logger:    logger.Named("harvest"),
	}, nil
}

// Limit normalises a requested item count: non-positive values select the
// default and large values are capped.
func (h *Harvester) Limit(requested int) int {
	if requested <= 0 {
		return h.cfg.DefaultMax
	}
	if requested > h.cfg.MaxLimit {
		return h.cfg.MaxLimit
	}
	return requested
}

// FlashSale returns up to max items. Cached results are served unless fresh
// is set; concurrent misses for the same max share a single scrape.
func (h *Harvester) FlashSale(ctx context.Context, max int, fresh bool) ([]Item, error) {
	max = h.Limit(max)
	key := strconv.Itoa(max)

	if fresh {
		h.cache.Invalidate(max)
		h.group.Forget(key)
	} else if items, ok := h.cache.Get(max); ok {
		h.countCache("hit")
		return items, nil
	}
	h.countCache("miss")

	// The scrape outlives any single waiting caller.
	work := context.WithoutCancel(ctx)
	ch := h.group.DoChan(key, func() (interface{}, error) {
		items, err := h.scrape(work, max)
		if err != nil {
			return nil, err
		}
		h.cache.Put(max, items, h.cfg.CacheTTL)
		return items, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Item), nil
	}
}

func (h *Harvester) countCache(result string) {
	if h.metrics != nil {
		h.metrics.HarvestCache.WithLabelValues(result).Inc()
	}
}

// budget bounds a whole scrape of max items.
func (h *Harvester) budget(max int) time.Duration {
	perItem := h.cfg.ListTimeout + h.cfg.DetailWait
	return h.cfg.ListTimeout + h.cfg.CardWait + time.Duration(max)*perItem
}

func (h *Harvester) scrape(ctx context.Context, max int) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, h.budget(max))
	defer cancel()

	if err := h.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a browser slot: %w", err)
	}
	defer h.slots.Release(1)

	sess, err := h.launcher.Launch(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			h.logger.Warn("Failed to close browser session.", zap.Error(err))
		}
	}()
	page := sess.Page()

	cards, err := h.listCards(ctx, page, max)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(cards))
	for _, card := range cards {
		item, err := h.enrich(ctx, page, card)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			h.logger.Warn("Skipping listing after detail failure.", zap.String("url", card.URL), zap.Error(err))
			continue
		}
		items = append(items, item)
	}

	if h.metrics != nil {
		h.metrics.HarvestItems.Add(float64(len(items)))
	}
	h.logger.Info("Flash sale harvested.", zap.Int("cards", len(cards)), zap.Int("items", len(items)))
	return items, nil
}

func (h *Harvester) listCards(ctx context.Context, page browser.Page, max int) ([]Card, error) {
	navCtx, cancel := context.WithTimeout(ctx, h.cfg.ListTimeout)
	defer cancel()
	if err := page.Navigate(navCtx, h.cfg.ListURL); err != nil {
		return nil, err
	}
	if _, err := browser.CheckChallenge(ctx, page, h.challenge); err != nil {
		if errors.Is(err, browser.ErrChallenge) {
			return nil, fmt.Errorf("%w: %w", ErrAntiBot, err)
		}
		return nil, err
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, h.cfg.CardWait)
	defer cancelWait()
	if err := page.WaitVisible(waitCtx, cardSelector); err != nil {
		return nil, fmt.Errorf("waiting for listing cards: %w", err)
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading listing page: %w", err)
	}
	return ParseCards(html, h.base, max)
}

var errDetailChallenged = errors.New("detail page challenged")

func (h *Harvester) enrich(ctx context.Context, page browser.Page, card Card) (Item, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return Item{}, err
	}

	navCtx, cancel := context.WithTimeout(ctx, h.cfg.ListTimeout)
	defer cancel()
	if err := page.Navigate(navCtx, card.URL); err != nil {
		return Item{}, err
	}
	if _, err := browser.CheckChallenge(ctx, page, h.challenge); err != nil {
		if errors.Is(err, browser.ErrChallenge) {
			return Item{}, errDetailChallenged
		}
		return Item{}, err
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, h.cfg.DetailWait)
	defer cancelWait()
	if err := page.WaitVisible(waitCtx, detailsSelector); err != nil {
		h.logger.Debug("Product details did not appear.", zap.String("url", card.URL), zap.Error(err))
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return Item{}, fmt.Errorf("reading detail page: %w", err)
	}
	detail, err := ParseDetail(html)
	if err != nil {
		return Item{}, err
	}

	return Item{
		URL:      card.URL,
		Title:    card.Title,
		PriceNow: card.PriceNow,
		PriceWas: card.PriceWas,
		Image:    detail.Image,
		Summary:  Summarize(detail.Description, h.cfg.SummaryWords),
	}, nil
}
