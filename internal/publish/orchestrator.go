package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/dealwire/internal/browser"
	"github.com/xkilldash9x/dealwire/internal/config"
	"github.com/xkilldash9x/dealwire/internal/observability"
	"github.com/xkilldash9x/dealwire/internal/signing"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Orchestrator handles one signed publish request end to end: it checks
// the request, admits it, owns the browser session and classifies failures.
type Orchestrator struct {
	verifier         *signing.Verifier
	creds            Credentials
	launcher         browser.Launcher
	sessions         *SessionManager
	driver           *Driver
	admission        *semaphore.Weighted
	admissionTimeout time.Duration
	loginBudget      time.Duration
	metrics          *observability.Metrics
	logger           *zap.Logger
}

// NewOrchestrator wires the publish flow from configuration. locator and
// launcher are injected so tests can drive a synthetic site. metrics may be
// nil.
func NewOrchestrator(pcfg config.PublishConfig, wcfg config.WizardConfig, bcfg config.BrowserConfig, launcher browser.Launcher, locator browser.Locator, metrics *observability.Metrics, logger *zap.Logger) (*Orchestrator, error) {
	login, err := browser.NewPattern(pcfg.LoginURLPattern)
	if err != nil {
		return nil, err
	}
	challenge, err := browser.NewPattern(pcfg.ChallengeURLPattern)
	if err != nil {
		return nil, err
	}
	slots := pcfg.MaxConcurrent
	if slots <= 0 {
		slots = 1
	}

	logger = logger.Named("publish")
	return &Orchestrator{
		verifier:         signing.NewVerifier(pcfg.Secret),
		creds:            Credentials{Email: pcfg.Email, Password: pcfg.Password},
		launcher:         launcher,
		sessions:         NewSessionManager(pcfg.SubmitURL, login, challenge, locator, wcfg.LoginSettle, metrics, logger),
		driver:           NewDriver(DefaultSteps(pcfg.SourceLabel), locator, wcfg, challenge, metrics, logger),
		admission:        semaphore.NewWeighted(int64(slots)),
		admissionTimeout: pcfg.AdmissionTimeout,
		// Two navigations plus locating three login elements.
		loginBudget: 2*bcfg.NavigationTimeout + 3*wcfg.FieldWait + wcfg.LoginSettle,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// Publish validates query and, when it is acceptable, runs the wizard in a
// fresh browser. Failures are *Error values carrying a Code.
func (o *Orchestrator) Publish(ctx context.Context, query url.Values) (res Result, err error) {
	defer func() { o.countOutcome(err) }()

	ok, err := o.verifier.Verify(query)
	if errors.Is(err, signing.ErrSecretMissing) {
		return Result{}, newError(CodeSecretMissing, err)
	}
	if err != nil || !ok {
		return Result{}, newError(CodeBadSignature, err)
	}

	req, err := ParseRequest(query)
	if err != nil {
		return Result{}, newError(CodeMissingTitleOrURL, err)
	}
	if !o.creds.Valid() {
		return Result{}, newError(CodeCredentialsMissing, ErrCredentialsMissing)
	}

	if err := o.admit(ctx); err != nil {
		return Result{}, err
	}
	defer o.admission.Release(1)

	runID := uuid.NewString()
	log := o.logger.With(zap.String("run_id", runID), zap.String("url", req.URL))
	log.Info("Publish flow starting.", zap.String("title", req.Title))

	start := time.Now()
	res, err = o.run(ctx, log, req)
	res.RunID = runID
	if o.metrics != nil {
		o.metrics.PublishDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		log.Error("Publish flow failed.", zap.Error(err), zap.Int("steps_run", len(res.Trace)))
		return res, err
	}
	log.Info("Publish flow finished.", zap.String("final_location", res.FinalLocation), zap.Bool("logged_in", res.LoggedIn))
	return res, nil
}

func (o *Orchestrator) admit(ctx context.Context) error {
	admitCtx, cancel := context.WithTimeout(ctx, o.admissionTimeout)
	defer cancel()
	if err := o.admission.Acquire(admitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return newError(CodeServerError, ctx.Err())
		}
		return newError(CodeBusy, fmt.Errorf("no publish slot within %s", o.admissionTimeout))
	}
	return nil
}

func (o *Orchestrator) runBudget() time.Duration {
	return o.loginBudget + o.driver.stepDurations()
}

// Budget is the longest a Publish call can take, admission wait included.
func (o *Orchestrator) Budget() time.Duration {
	return o.admissionTimeout + o.runBudget()
}

// run owns the browser session for one request.
func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, req Request) (res Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.runBudget())
	defer cancel()

	sess, err := o.launcher.Launch(ctx)
	if err != nil {
		return Result{}, newError(CodeServerError, err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("Failed to close browser session.", zap.Error(cerr))
		}
	}()
	page := sess.Page()

	loggedIn, err := o.sessions.Ensure(ctx, page, o.creds)
	if err != nil {
		return Result{LoggedIn: loggedIn}, classify(err)
	}

	res, err = o.driver.Run(ctx, page, req)
	res.LoggedIn = loggedIn
	if err != nil {
		return res, classify(err)
	}
	return res, nil
}

func classify(err error) *Error {
	switch {
	case errors.Is(err, browser.ErrChallenge):
		return newError(CodeChallenge, err)
	case errors.Is(err, ErrCredentialsMissing):
		return newError(CodeCredentialsMissing, err)
	default:
		return newError(CodeServerError, err)
	}
}

func (o *Orchestrator) countOutcome(err error) {
	if o.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(CodeOf(err))
	}
	o.metrics.PublishRequests.WithLabelValues(outcome).Inc()
}
