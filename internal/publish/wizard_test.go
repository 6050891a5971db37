package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/dealwire/internal/browser"
	"github.com/xkilldash9x/dealwire/internal/config"
	"github.com/xkilldash9x/dealwire/internal/observability"
	"go.uber.org/zap/zaptest"
)

var testChallenge = browser.MustPattern(`punish|captcha|challenge`)

func testTimings() config.WizardConfig {
	return config.WizardConfig{
		FieldWait:    50 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		StepTimeout:  time.Second,
	}
}

func testRequest() Request {
	return Request{
		Title: "USB-C cable",
		URL:   "https://shop.example/x",
		Price: ParsePrice("9.99"),
		RRP:   ParsePrice("14.99"),
	}
}

// openWizard puts site on the first wizard page as if already logged in.
func openWizard(t *testing.T, site *wizardSite) {
	t.Helper()
	require.NoError(t, site.Navigate(context.Background(), siteSubmitURL))
}

func newTestDriver(t *testing.T, site *wizardSite, timings config.WizardConfig, metrics *observability.Metrics) *Driver {
	return NewDriver(DefaultSteps("Fuente: test"), site, timings, testChallenge, metrics, zaptest.NewLogger(t))
}

func statuses(trace []StepOutcome) map[string]StepStatus {
	out := map[string]StepStatus{}
	for _, o := range trace {
		out[o.Name] = o.Status
	}
	return out
}

func TestDriverCompletesAllSteps(t *testing.T) {
	site := newWizardSite(false)
	openWizard(t, site)

	res, err := newTestDriver(t, site, testTimings(), nil).Run(context.Background(), site, testRequest())
	require.NoError(t, err)
	assert.Equal(t, siteDoneURL, res.FinalLocation)

	want := []string{
		"fill:Enlace de la oferta",
		"click:link/Siguiente",
		"fill:Precio de la oferta",
		"fill:Precio habitual (PVP)",
		"click:price/Siguiente",
		"fill:Título",
		"click:title/Siguiente",
		"type:desc",
		"click:desc/Siguiente",
		"click:image/Siguiente",
		"click:review/Publicar",
	}
	if diff := cmp.Diff(want, site.Events()); diff != "" {
		t.Errorf("wizard interactions mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "https://shop.example/x", site.values["Enlace de la oferta"])
	assert.Equal(t, "9,99", site.values["Precio de la oferta"])
	assert.Equal(t, "14,99", site.values["Precio habitual (PVP)"])
	assert.Equal(t, "USB-C cable", site.values["Título"])
	assert.Contains(t, site.typed, "Enlace: https://shop.example/x")
	assert.Contains(t, site.typed, "Precio: 9,99 € (PVP 14,99 €)")
	assert.Contains(t, site.typed, "Fuente: test")

	require.Len(t, res.Trace, len(DefaultSteps("")))
	for _, o := range res.Trace {
		assert.Equal(t, StepDone, o.Status, o.Name)
		assert.Equal(t, 1, o.Attempts, o.Name)
	}
}

func TestDriverSkipsPriceStepsWithoutPrices(t *testing.T) {
	site := newWizardSite(false)
	openWizard(t, site)

	req := testRequest()
	req.Price, req.RRP = nil, nil

	res, err := newTestDriver(t, site, testTimings(), nil).Run(context.Background(), site, req)
	require.NoError(t, err)

	st := statuses(res.Trace)
	assert.Equal(t, StepSkipped, st["price"])
	assert.Equal(t, StepSkipped, st["rrp"])
	assert.Equal(t, StepDone, st["title"], "flow still reaches the title step")
	assert.NotContains(t, site.Events(), "fill:Precio de la oferta")
	assert.NotContains(t, site.values, "Precio habitual (PVP)")
	assert.NotContains(t, site.typed, "Precio")
}

func TestDriverOnlyRRP(t *testing.T) {
	site := newWizardSite(false)
	openWizard(t, site)

	req := testRequest()
	req.Price = nil

	res, err := newTestDriver(t, site, testTimings(), nil).Run(context.Background(), site, req)
	require.NoError(t, err)
	assert.Equal(t, StepSkipped, statuses(res.Trace)["price"])
	assert.Equal(t, "14,99", site.values["Precio habitual (PVP)"])
}

func TestDriverMissingPublishControl(t *testing.T) {
	site := newWizardSite(false)
	site.pages["review"].controls = nil
	openWizard(t, site)

	metrics := observability.NewMetrics()
	res, err := newTestDriver(t, site, testTimings(), metrics).Run(context.Background(), site, testRequest())
	require.NoError(t, err, "publish is best effort")
	assert.Equal(t, siteSubmitURL+"/revisar", res.FinalLocation)
	assert.Equal(t, StepFailed, statuses(res.Trace)["publish"])
}

func TestDriverOptionalPriceFieldsMissing(t *testing.T) {
	site := newWizardSite(false)
	site.pages["price"].fields = nil
	openWizard(t, site)

	res, err := newTestDriver(t, site, testTimings(), nil).Run(context.Background(), site, testRequest())
	require.NoError(t, err)

	st := statuses(res.Trace)
	assert.Equal(t, StepFailed, st["price"])
	assert.Equal(t, StepFailed, st["rrp"])
	assert.Equal(t, StepDone, st["advance_price"])
	assert.Equal(t, siteDoneURL, res.FinalLocation)
}

func TestDriverRequiredStepFailure(t *testing.T) {
	site := newWizardSite(false)
	site.pages["link"].fields = nil
	openWizard(t, site)

	timings := testTimings()
	timings.StepRetries = 2

	res, err := newTestDriver(t, site, timings, nil).Run(context.Background(), site, testRequest())
	require.Error(t, err)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "link", stepErr.Step)
	assert.Equal(t, Required, stepErr.Policy)
	assert.Equal(t, 3, stepErr.Attempts)
	assert.ErrorIs(t, err, browser.ErrFieldNotFound)

	require.Len(t, res.Trace, 1)
	assert.Equal(t, StepFailed, res.Trace[0].Status)
	assert.Empty(t, site.Events(), "nothing is touched after a required failure")
}

func TestDriverChallengeIsFatal(t *testing.T) {
	site := newWizardSite(false)
	site.pages["title"].controls = []siteControl{{"Siguiente", "challenge"}}
	openWizard(t, site)

	res, err := newTestDriver(t, site, testTimings(), nil).Run(context.Background(), site, testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrChallenge)
	assert.Equal(t, "advance_title", res.Trace[len(res.Trace)-1].Name)
	assert.NotContains(t, site.Events(), "type:desc")
}

func TestDriverChallengeAfterOptionalStep(t *testing.T) {
	site := newWizardSite(false)
	site.pages["image"].controls = []siteControl{{"Siguiente", "challenge"}}
	openWizard(t, site)

	_, err := newTestDriver(t, site, testTimings(), nil).Run(context.Background(), site, testRequest())
	assert.ErrorIs(t, err, browser.ErrChallenge, "optional policy does not excuse a challenge")
}

func TestDriverCancelledContext(t *testing.T) {
	site := newWizardSite(false)
	openWizard(t, site)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	timings := testTimings()
	timings.StepRetries = 5
	_, err := newTestDriver(t, site, timings, nil).Run(ctx, site, testRequest())
	require.Error(t, err)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, 1, stepErr.Attempts, "no retries once the context is done")
}

func TestDefaultStepsPolicies(t *testing.T) {
	want := map[string]Policy{
		"link":                Required,
		"advance_link":        Required,
		"price":               Optional,
		"rrp":                 Optional,
		"advance_price":       Optional,
		"title":               Required,
		"advance_title":       Required,
		"description":         Required,
		"advance_description": Required,
		"image":               Optional,
		"publish":             Optional,
	}
	got := map[string]Policy{}
	for _, s := range DefaultSteps("") {
		got[s.Name] = s.Policy
	}
	assert.Equal(t, want, got)
}

func TestPatternsMatchBilingualLabels(t *testing.T) {
	cases := []struct {
		pattern browser.Pattern
		match   []string
		reject  []string
	}{
		{PatternLink, []string{"Enlace de la oferta", "Deal link", "URL"}, []string{"Título"}},
		{PatternPrice, []string{"Precio de la oferta", "Precio actual", "Offer price", "Precio"}, []string{"Precio habitual (PVP)"}},
		{PatternRRP, []string{"Precio habitual (PVP)", "PVP", "Regular price"}, []string{"Precio de la oferta"}},
		{PatternTitle, []string{"Título", "titulo", "Title"}, []string{"Descripción"}},
		{PatternNext, []string{"Siguiente", "Continuar", "Next"}, []string{"Publicar"}},
		{PatternPublish, []string{"Publicar", "Publish deal"}, []string{"Siguiente"}},
		{PatternEmail, []string{"Correo electrónico", "Email", "E-mail"}, []string{"Contraseña"}},
		{PatternPassword, []string{"Contraseña", "Password"}, []string{"Email"}},
		{PatternSignIn, []string{"Iniciar sesión", "Entrar", "Log in", "Sign in"}, []string{"Registrarse"}},
	}
	for _, c := range cases {
		for _, s := range c.match {
			assert.Truef(t, c.pattern.MatchString(s), "%s should match %q", c.pattern, s)
		}
		for _, s := range c.reject {
			assert.Falsef(t, c.pattern.MatchString(s), "%s should not match %q", c.pattern, s)
		}
	}
}
