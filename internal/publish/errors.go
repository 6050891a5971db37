// internal/publish/errors.go
package publish

import (
	"errors"
	"fmt"
)

// Code classifies a publish failure. The values are the error strings
// returned to callers.
type Code string

const (
	CodeSecretMissing      Code = "SECRET_missing"
	CodeBadSignature       Code = "bad_signature"
	CodeMissingTitleOrURL  Code = "missing_title_or_url"
	CodeCredentialsMissing Code = "chollometro_creds_missing"
	CodeChallenge          Code = "captcha_or_antibot"
	CodeBusy               Code = "busy"
	CodeServerError        Code = "server_error"
)

var (
	ErrMissingTitleOrURL  = errors.New("title and url are required")
	ErrCredentialsMissing = errors.New("deals site credentials are not configured")
	ErrLoginFailed        = errors.New("login did not leave the login page")
)

// Error carries the classification of a failed publish request.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CodeOf returns the code attached to err, or CodeServerError.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeServerError
}

// StepError reports the wizard step that stopped a flow.
type StepError struct {
	Step     string
	Policy   Policy
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("wizard step %q (%s) failed after %d attempt(s): %v", e.Step, e.Policy, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
