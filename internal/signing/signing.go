// Package signing implements the HMAC-SHA256 query signature that guards the
// publish endpoint.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"sort"
	"strings"
)

// SignatureParam is the query key carrying the signature.
const SignatureParam = "sig"

// ErrSecretMissing is returned when no shared secret is configured.
// Verification fails closed in that case.
var ErrSecretMissing = errors.New("signing secret is not configured")

// Canonical serializes every parameter except the signature as
// key=escaped(value) pairs, sorted by key and joined by '&'. Repeated keys
// keep the order in which their values were supplied. Values are escaped
// the way encodeURIComponent does it: a space is %20 and the characters
// !'()* stay literal.
func Canonical(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == SignatureParam {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(escape(v))
		}
	}
	return b.String()
}

// componentUnescaper undoes the QueryEscape choices that differ from
// encodeURIComponent. A literal '+' in the input is already %2B.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

func escape(v string) string {
	return componentUnescaper.Replace(url.QueryEscape(v))
}

func mac(secret []byte, canonical string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(canonical))
	return h.Sum(nil)
}

// Signer produces signatures for outbound links.
type Signer struct {
	secret []byte
}

// NewSigner returns a Signer keyed by secret.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrSecretMissing
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the base64url (unpadded) signature of values.
func (s *Signer) Sign(values url.Values) string {
	return base64.RawURLEncoding.EncodeToString(mac(s.secret, Canonical(values)))
}

// SignedQuery returns values plus their signature, encoded as a query string.
func (s *Signer) SignedQuery(values url.Values) string {
	out := url.Values{}
	for k, vs := range values {
		if k == SignatureParam {
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	out.Set(SignatureParam, s.Sign(values))
	return out.Encode()
}

// Verifier checks inbound signatures.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier keyed by secret. An empty secret is
// accepted here and reported by Verify.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Configured reports whether a secret is set.
func (v *Verifier) Configured() bool {
	return len(v.secret) > 0
}

// Verify reports whether the sig parameter matches the canonical form of
// the remaining parameters. It returns ErrSecretMissing when the verifier
// has no secret. A missing or undecodable signature verifies as false.
func (v *Verifier) Verify(values url.Values) (bool, error) {
	if !v.Configured() {
		return false, ErrSecretMissing
	}
	supplied := values.Get(SignatureParam)
	if supplied == "" {
		return false, nil
	}
	got, err := base64.RawURLEncoding.DecodeString(supplied)
	if err != nil {
		return false, nil
	}
	return hmac.Equal(got, mac(v.secret, Canonical(values))), nil
}
