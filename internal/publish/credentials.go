package publish

import (
	"go.uber.org/zap/zapcore"
)

const redacted = "[redacted]"

// Credentials is the deals-site account used for login.
type Credentials struct {
	Email    string
	Password string
}

// Valid reports whether both fields are set.
func (c Credentials) Valid() bool {
	return c.Email != "" && c.Password != ""
}

func (c Credentials) String() string {
	return "Credentials{Email:" + c.Email + " Password:" + redacted + "}"
}

func (c Credentials) GoString() string { return c.String() }

// MarshalLogObject keeps the password out of structured logs.
func (c Credentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("email", c.Email)
	enc.AddString("password", redacted)
	return nil
}
