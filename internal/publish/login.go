package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/dealwire/internal/browser"
	"github.com/xkilldash9x/dealwire/internal/observability"
	"go.uber.org/zap"
)

// SessionManager brings a page to the submission form, logging in once if
// the site asks for it.
type SessionManager struct {
	submitURL string
	login     browser.Pattern
	challenge browser.Pattern
	locator   browser.Locator
	settle    time.Duration
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewSessionManager returns a SessionManager. metrics may be nil.
func NewSessionManager(submitURL string, login, challenge browser.Pattern, locator browser.Locator, settle time.Duration, metrics *observability.Metrics, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		submitURL: submitURL,
		login:     login,
		challenge: challenge,
		locator:   locator,
		settle:    settle,
		metrics:   metrics,
		logger:    logger.Named("session"),
	}
}

// Ensure leaves page on the submission form and reports whether a login was
// performed. Missing credentials fail before any navigation.
func (m *SessionManager) Ensure(ctx context.Context, page browser.Page, creds Credentials) (bool, error) {
	if !creds.Valid() {
		return false, ErrCredentialsMissing
	}

	loc, err := m.open(ctx, page)
	if err != nil {
		return false, err
	}
	if !m.login.MatchString(loc) {
		m.logger.Debug("Already authenticated.", zap.String("location", loc))
		return false, nil
	}

	m.logger.Info("Login required.", zap.String("location", loc), zap.Object("account", creds))
	if err := m.signIn(ctx, page, creds); err != nil {
		m.countLogin("error")
		return true, fmt.Errorf("signing in: %w", err)
	}

	loc, err = m.open(ctx, page)
	if err != nil {
		m.countLogin("error")
		return true, err
	}
	if m.login.MatchString(loc) {
		m.countLogin("rejected")
		return true, fmt.Errorf("%w: still at %s", ErrLoginFailed, loc)
	}
	m.countLogin("ok")
	return true, nil
}

func (m *SessionManager) countLogin(result string) {
	if m.metrics != nil {
		m.metrics.LoginAttempts.WithLabelValues(result).Inc()
	}
}

// open navigates to the submission page and returns where it landed.
func (m *SessionManager) open(ctx context.Context, page browser.Page) (string, error) {
	if err := page.Navigate(ctx, m.submitURL); err != nil {
		return "", err
	}
	return browser.CheckChallenge(ctx, page, m.challenge)
}

func (m *SessionManager) signIn(ctx context.Context, page browser.Page, creds Credentials) error {
	email, err := m.locator.Field(ctx, page, PatternEmail)
	if err != nil {
		return fmt.Errorf("email field: %w", err)
	}
	password, err := m.locator.Field(ctx, page, PatternPassword)
	if err != nil {
		return fmt.Errorf("password field: %w", err)
	}
	if err := page.Fill(ctx, email, creds.Email); err != nil {
		return err
	}
	if err := page.Fill(ctx, password, creds.Password); err != nil {
		return err
	}

	submit, err := m.locator.Control(ctx, page, PatternSignIn)
	switch {
	case err == nil:
		err = page.Click(ctx, submit)
	case errors.Is(err, browser.ErrFieldNotFound):
		m.logger.Debug("No sign-in control found, submitting with Enter.")
		err = page.PressEnter(ctx, password)
	}
	if err != nil {
		return fmt.Errorf("submitting login form: %w", err)
	}

	if err := page.Settle(ctx, m.settle); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}
