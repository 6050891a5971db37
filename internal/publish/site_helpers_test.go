package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xkilldash9x/dealwire/internal/browser"
)

const (
	siteSubmitURL = "https://deals.example/compartir"
	siteDoneURL   = "https://deals.example/ofertas/usb-c-cable-123"
	testEmail     = "bot@example.com"
	testPassword  = "hunter2"
)

type siteControl struct {
	label string
	to    string
}

type sitePage struct {
	url       string
	fields    []string
	controls  []siteControl
	textEntry bool
}

// wizardSite is a synthetic deals site. It implements browser.Page,
// browser.Locator and browser.Session so the wizard can run without Chrome.
type wizardSite struct {
	mu            sync.Mutex
	pages         map[string]*sitePage
	current       string
	requireLogin  bool
	loggedIn      bool
	loginAttempts int
	values        map[string]string
	typed         string
	events        []string
	closed        atomic.Int32
}

func newWizardSite(requireLogin bool) *wizardSite {
	return &wizardSite{
		requireLogin: requireLogin,
		values:       map[string]string{},
		pages: map[string]*sitePage{
			"login": {
				url:      "https://deals.example/login?redirect=%2Fcompartir",
				fields:   []string{"Correo electrónico", "Contraseña"},
				controls: []siteControl{{"Iniciar sesión", "@login"}},
			},
			"home": {url: "https://deals.example/"},
			"link": {
				url:      siteSubmitURL,
				fields:   []string{"Enlace de la oferta"},
				controls: []siteControl{{"Siguiente", "price"}},
			},
			"price": {
				url:      siteSubmitURL + "/precio",
				fields:   []string{"Precio de la oferta", "Precio habitual (PVP)"},
				controls: []siteControl{{"Siguiente", "title"}},
			},
			"title": {
				url:      siteSubmitURL + "/titulo",
				fields:   []string{"Título"},
				controls: []siteControl{{"Siguiente", "desc"}},
			},
			"desc": {
				url:       siteSubmitURL + "/descripcion",
				textEntry: true,
				controls:  []siteControl{{"Siguiente", "image"}},
			},
			"image": {
				url:      siteSubmitURL + "/imagen",
				controls: []siteControl{{"Siguiente", "review"}},
			},
			"review": {
				url:      siteSubmitURL + "/revisar",
				controls: []siteControl{{"Publicar", "done"}},
			},
			"done":      {url: siteDoneURL},
			"challenge": {url: "https://deals.example/_tmd_/punish?captcha=1"},
		},
	}
}

func (s *wizardSite) record(format string, args ...interface{}) {
	s.events = append(s.events, fmt.Sprintf(format, args...))
}

func (s *wizardSite) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// --- browser.Session ---

func (s *wizardSite) Page() browser.Page { return s }

func (s *wizardSite) Close() error {
	s.closed.Add(1)
	return nil
}

// --- browser.Page ---

func (s *wizardSite) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if url != siteSubmitURL {
		return fmt.Errorf("unexpected navigation to %s", url)
	}
	if s.requireLogin && !s.loggedIn {
		s.current = "login"
	} else {
		s.current = "link"
	}
	return nil
}

func (s *wizardSite) Location(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[s.current].url, nil
}

func (s *wizardSite) split(h browser.Handle) (page, label string, err error) {
	page, label, ok := strings.Cut(string(h), "|")
	if !ok {
		return "", "", fmt.Errorf("malformed handle %q", h)
	}
	if page != s.current {
		return "", "", fmt.Errorf("stale handle %q on page %s", h, s.current)
	}
	return page, label, nil
}

func (s *wizardSite) Fill(_ context.Context, h browser.Handle, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, label, err := s.split(h)
	if err != nil {
		return err
	}
	s.values[label] = value
	s.record("fill:%s", label)
	return nil
}

func (s *wizardSite) Type(_ context.Context, h browser.Handle, text string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, _, err := s.split(h)
	if err != nil {
		return err
	}
	s.typed = text
	s.record("type:%s", page)
	return nil
}

func (s *wizardSite) Click(_ context.Context, h browser.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, label, err := s.split(h)
	if err != nil {
		return err
	}
	s.record("click:%s/%s", page, label)
	for _, c := range s.pages[page].controls {
		if c.label != label {
			continue
		}
		if c.to == "@login" {
			s.submitLogin()
		} else {
			s.current = c.to
		}
		return nil
	}
	return fmt.Errorf("no control %q", label)
}

func (s *wizardSite) PressEnter(_ context.Context, h browser.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, _, err := s.split(h)
	if err != nil {
		return err
	}
	s.record("enter:%s", page)
	if page == "login" {
		s.submitLogin()
	}
	return nil
}

func (s *wizardSite) submitLogin() {
	s.loginAttempts++
	if s.values["Correo electrónico"] == testEmail && s.values["Contraseña"] == testPassword {
		s.loggedIn = true
		s.current = "home"
	}
}

func (s *wizardSite) Settle(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (s *wizardSite) Evaluate(context.Context, string, interface{}) error {
	return errors.New("scripts are not supported by the synthetic site")
}

func (s *wizardSite) WaitVisible(context.Context, string) error { return nil }

func (s *wizardSite) HTML(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return "<html><body>" + s.current + "</body></html>", nil
}

// --- browser.Locator ---

func (s *wizardSite) Field(ctx context.Context, _ browser.Page, p browser.Pattern) (browser.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, label := range s.pages[s.current].fields {
		if p.MatchString(label) {
			return browser.Handle(s.current + "|" + label), nil
		}
	}
	return "", fmt.Errorf("%w: field %s on %s", browser.ErrFieldNotFound, p, s.current)
}

func (s *wizardSite) Control(ctx context.Context, _ browser.Page, p browser.Pattern) (browser.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.pages[s.current].controls {
		if p.MatchString(c.label) {
			return browser.Handle(s.current + "|" + c.label), nil
		}
	}
	return "", fmt.Errorf("%w: control %s on %s", browser.ErrFieldNotFound, p, s.current)
}

func (s *wizardSite) TextEntry(ctx context.Context, _ browser.Page) (browser.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pages[s.current].textEntry {
		return browser.Handle(s.current + "|text"), nil
	}
	return "", fmt.Errorf("%w: text entry on %s", browser.ErrFieldNotFound, s.current)
}

// siteLauncher hands out one wizardSite per launch.
type siteLauncher struct {
	newSite  func() *wizardSite
	gate     chan struct{}
	err      error
	launches atomic.Int32

	mu    sync.Mutex
	sites []*wizardSite
}

func (l *siteLauncher) Launch(ctx context.Context) (browser.Session, error) {
	l.launches.Add(1)
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.err != nil {
		return nil, l.err
	}
	site := l.newSite()
	l.mu.Lock()
	l.sites = append(l.sites, site)
	l.mu.Unlock()
	return site, nil
}

func (l *siteLauncher) last() *wizardSite {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sites) == 0 {
		return nil
	}
	return l.sites[len(l.sites)-1]
}

var errLaunch = errors.New("chrome failed to start")

// pageLocator resolves against whichever wizardSite the page is.
type pageLocator struct{}

func (pageLocator) Field(ctx context.Context, page browser.Page, p browser.Pattern) (browser.Handle, error) {
	return page.(*wizardSite).Field(ctx, page, p)
}

func (pageLocator) Control(ctx context.Context, page browser.Page, p browser.Pattern) (browser.Handle, error) {
	return page.(*wizardSite).Control(ctx, page, p)
}

func (pageLocator) TextEntry(ctx context.Context, page browser.Page) (browser.Handle, error) {
	return page.(*wizardSite).TextEntry(ctx, page)
}
