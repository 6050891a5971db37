package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/xkilldash9x/dealwire/internal/config"
	"github.com/xkilldash9x/dealwire/internal/observability"
	"go.uber.org/zap"
)

// ChromeLauncher starts one Chrome process per session.
type ChromeLauncher struct {
	cfg     config.BrowserConfig
	logger  *zap.Logger
	metrics *observability.Metrics
}

var _ Launcher = (*ChromeLauncher)(nil)

// NewChromeLauncher returns a launcher for cfg. metrics may be nil.
func NewChromeLauncher(cfg config.BrowserConfig, logger *zap.Logger, metrics *observability.Metrics) *ChromeLauncher {
	return &ChromeLauncher{cfg: cfg, logger: logger.Named("chrome"), metrics: metrics}
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if !l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if w, h := l.cfg.Viewport["width"], l.cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	if l.cfg.Lang != "" {
		opts = append(opts, chromedp.Flag("lang", l.cfg.Lang))
	}
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}
	for _, arg := range l.cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// Launch starts Chrome and opens its first tab. The browser is rooted in a
// background context: ctx only bounds the startup, and the process lives
// until Session.Close.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(l.logger.Sugar().Debugf),
		chromedp.WithErrorf(l.logger.Sugar().Debugf),
	)

	s := &chromeSession{
		ctx:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		navTimeout:  l.cfg.NavigationTimeout,
		logger:      l.logger,
		metrics:     l.metrics,
	}

	startup := []chromedp.Action{network.Enable()}
	if l.cfg.Lang != "" {
		startup = append(startup, network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": l.cfg.Lang}))
	}

	// The first Run allocates the browser and must use the tab context
	// itself, otherwise the process would die with the startup deadline.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx, startup...) }()

	select {
	case err := <-started:
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("starting browser: %w", err)
		}
	case <-ctx.Done():
		_ = s.Close()
		return nil, fmt.Errorf("starting browser: %w", ctx.Err())
	}

	s.launched = true
	if l.metrics != nil {
		l.metrics.BrowserLaunches.Inc()
		l.metrics.BrowserSessions.Inc()
	}
	l.logger.Debug("Browser session started.")
	return s, nil
}

// chromeSession is both the Session and its Page.
type chromeSession struct {
	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	navTimeout  time.Duration
	logger      *zap.Logger
	metrics     *observability.Metrics

	closeOnce sync.Once
	closeErr  error
	launched  bool
}

var (
	_ Session = (*chromeSession)(nil)
	_ Page    = (*chromeSession)(nil)
)

func (s *chromeSession) Page() Page { return s }

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		// Cancel closes the tab and, being the first tab, the browser.
		err := chromedp.Cancel(s.ctx)
		s.tabCancel()
		s.allocCancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = fmt.Errorf("closing browser: %w", err)
		}
		if s.metrics != nil && s.launched {
			s.metrics.BrowserSessions.Dec()
		}
		s.logger.Debug("Browser session closed.")
	})
	return s.closeErr
}

func (s *chromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := WithTimeout(s.ctx, ctx, timeout)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.navTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, 0, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (s *chromeSession) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return s.run(ctx, 0, chromedp.Evaluate(expression, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

func (s *chromeSession) Fill(ctx context.Context, h Handle, value string) error {
	args, err := json.Marshal([]string{string(h), value})
	if err != nil {
		return err
	}
	var ok bool
	expr := fillScript + "(" + string(args[1:len(args)-1]) + ")"
	if err := s.run(ctx, 0,
		chromedp.ScrollIntoView(string(h), chromedp.ByQuery),
		chromedp.Evaluate(expr, &ok),
	); err != nil {
		return fmt.Errorf("filling %s: %w", h, err)
	}
	if !ok {
		return fmt.Errorf("filling %s: element detached", h)
	}
	return nil
}

func (s *chromeSession) Type(ctx context.Context, h Handle, text string, delay time.Duration) error {
	if err := s.run(ctx, 0,
		chromedp.ScrollIntoView(string(h), chromedp.ByQuery),
		chromedp.Focus(string(h), chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("focusing %s: %w", h, err)
	}
	for _, r := range text {
		actions := []chromedp.Action{chromedp.KeyEvent(string(r))}
		if delay > 0 {
			actions = append(actions, chromedp.Sleep(delay))
		}
		if err := s.run(ctx, 0, actions...); err != nil {
			return fmt.Errorf("typing into %s: %w", h, err)
		}
	}
	return nil
}

func (s *chromeSession) Click(ctx context.Context, h Handle) error {
	if err := s.run(ctx, 0,
		chromedp.ScrollIntoView(string(h), chromedp.ByQuery),
		chromedp.WaitVisible(string(h), chromedp.ByQuery),
		chromedp.Click(string(h), chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("clicking %s: %w", h, err)
	}
	return nil
}

func (s *chromeSession) PressEnter(ctx context.Context, h Handle) error {
	if err := s.run(ctx, 0,
		chromedp.Focus(string(h), chromedp.ByQuery),
		chromedp.KeyEvent(kb.Enter),
	); err != nil {
		return fmt.Errorf("submitting %s: %w", h, err)
	}
	return nil
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, 0, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *chromeSession) Settle(ctx context.Context, d time.Duration) error {
	var complete bool
	return s.run(ctx, 0,
		chromedp.Sleep(d),
		chromedp.Poll(`document.readyState === "complete"`, &complete, chromedp.WithPollingInterval(100*time.Millisecond)),
	)
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}
