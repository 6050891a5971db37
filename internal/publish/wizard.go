package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/dealwire/internal/browser"
	"github.com/xkilldash9x/dealwire/internal/config"
	"github.com/xkilldash9x/dealwire/internal/observability"
	"go.uber.org/zap"
)

// StepStatus is the outcome of one step in a run.
type StepStatus string

const (
	StepDone    StepStatus = "done"
	StepSkipped StepStatus = "skipped"
	StepFailed  StepStatus = "failed"
)

// StepOutcome records what happened to one step.
type StepOutcome struct {
	Name     string
	Policy   Policy
	Status   StepStatus
	Attempts int
	Err      error
}

// Result is the terminal state of a successful flow.
type Result struct {
	FinalLocation string `json:"finalLocation"`

	RunID    string        `json:"-"`
	LoggedIn bool          `json:"-"`
	Trace    []StepOutcome `json:"-"`
}

// Driver walks the wizard steps in order against a live page.
type Driver struct {
	steps     []Step
	locator   browser.Locator
	timings   config.WizardConfig
	challenge browser.Pattern
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewDriver returns a Driver for steps. metrics may be nil.
func NewDriver(steps []Step, locator browser.Locator, timings config.WizardConfig, challenge browser.Pattern, metrics *observability.Metrics, logger *zap.Logger) *Driver {
	return &Driver{
		steps:     steps,
		locator:   locator,
		timings:   timings,
		challenge: challenge,
		metrics:   metrics,
		logger:    logger.Named("wizard"),
	}
}

// Run executes every applicable step, then waits for the publish to settle
// and reports the page location. A required step failure or a challenge
// page stops the run; the partial trace is returned with the error.
func (d *Driver) Run(ctx context.Context, page browser.Page, req Request) (Result, error) {
	var res Result
	for _, step := range d.steps {
		log := d.logger.With(zap.String("step", step.Name), zap.Stringer("policy", step.Policy))

		if step.When != nil && !step.When(req) {
			res.Trace = append(res.Trace, StepOutcome{Name: step.Name, Policy: step.Policy, Status: StepSkipped})
			log.Debug("Step skipped, no data for it.")
			continue
		}

		attempts, err := d.attempt(ctx, page, step, req)
		outcome := StepOutcome{Name: step.Name, Policy: step.Policy, Status: StepDone, Attempts: attempts, Err: err}

		// A challenge page ends the flow whatever the step policy.
		if _, cerr := browser.CheckChallenge(ctx, page, d.challenge); errors.Is(cerr, browser.ErrChallenge) {
			outcome.Status = StepFailed
			outcome.Err = cerr
			res.Trace = append(res.Trace, outcome)
			log.Warn("Challenge page detected during wizard.", zap.Error(cerr))
			return res, cerr
		}

		if err != nil {
			outcome.Status = StepFailed
			res.Trace = append(res.Trace, outcome)
			d.countFailure(step)
			if step.Policy == Required {
				log.Error("Required step failed.", zap.Int("attempts", attempts), zap.Error(err))
				return res, &StepError{Step: step.Name, Policy: step.Policy, Attempts: attempts, Err: err}
			}
			log.Warn("Optional step failed, continuing.", zap.Int("attempts", attempts), zap.Error(err))
			continue
		}

		res.Trace = append(res.Trace, outcome)
		log.Debug("Step completed.", zap.Int("attempts", attempts))
	}

	if err := page.Settle(ctx, d.timings.PublishSettle); err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		d.logger.Debug("Page did not settle after publish.", zap.Error(err))
	}
	loc, err := browser.CheckChallenge(ctx, page, d.challenge)
	if err != nil {
		return res, err
	}
	res.FinalLocation = loc
	return res, nil
}

func (d *Driver) countFailure(step Step) {
	if d.metrics != nil {
		d.metrics.StepFailures.WithLabelValues(step.Name, step.Policy.String()).Inc()
	}
}

// attempt runs step up to 1+StepRetries times, each bounded by StepTimeout.
func (d *Driver) attempt(ctx context.Context, page browser.Page, step Step, req Request) (int, error) {
	var err error
	tries := 1 + d.timings.StepRetries
	for i := 1; i <= tries; i++ {
		stepCtx, cancel := context.WithTimeout(ctx, d.timings.StepTimeout)
		err = d.execute(stepCtx, page, step, req)
		cancel()
		if err == nil || ctx.Err() != nil {
			return i, err
		}
		if i < tries {
			d.logger.Debug("Retrying step.", zap.String("step", step.Name), zap.Int("attempt", i), zap.Error(err))
		}
	}
	return tries, err
}

func (d *Driver) resolve(ctx context.Context, page browser.Page, t Target) (browser.Handle, error) {
	switch t.Kind {
	case FieldTarget:
		return d.locator.Field(ctx, page, t.Pattern)
	case ControlTarget:
		return d.locator.Control(ctx, page, t.Pattern)
	case TextEntryTarget:
		return d.locator.TextEntry(ctx, page)
	default:
		return "", fmt.Errorf("unknown target kind %d", t.Kind)
	}
}

func (d *Driver) execute(ctx context.Context, page browser.Page, step Step, req Request) error {
	h, err := d.resolve(ctx, page, step.Target)
	if err != nil {
		return err
	}

	switch step.Action {
	case Fill:
		return page.Fill(ctx, h, step.Value(req))
	case Type:
		return page.Type(ctx, h, step.Value(req), d.timings.TypeDelay)
	case Click:
		if err := page.Click(ctx, h); err != nil {
			return err
		}
		if step.Settle {
			return page.Settle(ctx, d.timings.SettleWait)
		}
		return nil
	default:
		return fmt.Errorf("unknown action %s", step.Action)
	}
}

// stepDurations is the longest a run can take, used to size request
// deadlines.
func (d *Driver) stepDurations() time.Duration {
	total := d.timings.PublishSettle
	for range d.steps {
		total += time.Duration(1+d.timings.StepRetries) * d.timings.StepTimeout
	}
	return total
}
