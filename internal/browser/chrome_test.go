package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/dealwire/internal/config"
	"github.com/xkilldash9x/dealwire/internal/observability"
	"go.uber.org/zap/zaptest"
)

const formPage = `<!doctype html>
<html><body>
<form id="f" action="/done" method="get">
  <label for="link">Enlace de la oferta</label>
  <input id="link" name="link" type="url">
  <label>Precio <input name="price" type="text"></label>
  <input name="hidden-title" type="text" style="display:none" placeholder="Título">
  <input name="title" type="text" placeholder="Título del chollo">
  <textarea name="desc"></textarea>
  <button type="button" disabled>Siguiente</button>
  <button type="submit">Publicar</button>
</form>
</body></html>`

// chromePath returns a usable Chrome binary or skips the test.
func chromePath(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if p := os.Getenv("DEALWIRE_CHROME"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome binary available")
	return ""
}

func TestChromeSessionAgainstForm(t *testing.T) {
	execPath := chromePath(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/done" {
			fmt.Fprintf(w, "<html><body><p id=ok>%s|%s</p></body></html>", r.URL.Query().Get("link"), r.URL.Query().Get("desc"))
			return
		}
		fmt.Fprint(w, formPage)
	}))
	defer srv.Close()

	cfg := config.NewDefaultConfig().BrowserCfg
	cfg.ExecPath = execPath
	cfg.NavigationTimeout = 20 * time.Second
	metrics := observability.NewMetrics()
	logger := zaptest.NewLogger(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sess, err := NewChromeLauncher(cfg, logger, metrics).Launch(ctx)
	require.NoError(t, err)
	defer func() { assert.NoError(t, sess.Close()) }()

	page := sess.Page()
	require.NoError(t, page.Navigate(ctx, srv.URL+"/"))

	loc := NewHeuristicLocator(3*time.Second, 50*time.Millisecond, logger)

	link, err := loc.Field(ctx, page, MustPattern("link|url|enlace"))
	require.NoError(t, err)
	require.NoError(t, page.Fill(ctx, link, "https://shop.example/x"))

	price, err := loc.Field(ctx, page, MustPattern("precio|price"))
	require.NoError(t, err)
	assert.NotEqual(t, link, price)

	title, err := loc.Field(ctx, page, MustPattern("t[ií]tulo|title"))
	require.NoError(t, err)
	var titleName string
	require.NoError(t, page.Evaluate(ctx, fmt.Sprintf(`document.querySelector(%q).name`, string(title)), &titleName))
	assert.Equal(t, "title", titleName, "hidden inputs must be skipped")

	desc, err := loc.TextEntry(ctx, page)
	require.NoError(t, err)
	require.NoError(t, page.Type(ctx, desc, "hola", time.Millisecond))

	_, err = NewHeuristicLocator(200*time.Millisecond, 50*time.Millisecond, logger).Control(ctx, page, MustPattern("siguiente|next"))
	assert.ErrorIs(t, err, ErrFieldNotFound, "disabled controls are not returned")

	publish, err := loc.Control(ctx, page, MustPattern("publicar|publish"))
	require.NoError(t, err)
	require.NoError(t, page.Click(ctx, publish))
	require.NoError(t, page.Settle(ctx, 100*time.Millisecond))
	require.NoError(t, page.WaitVisible(ctx, "#ok"))

	final, err := page.Location(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(final, srv.URL+"/done"))

	html, err := page.HTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "https://shop.example/x|hola")

	require.NoError(t, sess.Close())
	assert.NoError(t, sess.Close(), "second close is a no-op")
}
