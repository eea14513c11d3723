// Package signature implements the Versia request signing scheme:
// Ed25519 over a canonicalized representation of an HTTP request.
//
// The signable string is
//
//	"<lowercased-method> <url-encoded-path> <unix-seconds> <base64 sha256 body>"
//
// and travels in three headers that form an atomic triple: partial
// presence is treated as absence and verification fails closed.
package signature

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Header names for the signature triple.
const (
	HeaderSignature = "Versia-Signature"
	HeaderSignedAt  = "Versia-Signed-At"
	HeaderSignedBy  = "Versia-Signed-By"
)

// InstanceSentinelPrefix marks instance-level signing in Signed-By:
// "instance <host>" instead of a user URI.
const InstanceSentinelPrefix = "instance "

// DefaultMaxSkew bounds how far Signed-At may drift from the verifier's
// clock in either direction. Outside the window the signature is stale
// (or from the future) and replayable, so verification fails.
const DefaultMaxSkew = 5 * time.Minute

// Request is the transient canonical form of a request being signed or
// verified. It is constructed per outbound request and rebuilt from the
// request actually received on the inbound side, never from
// client-asserted values.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

// Signer signs outbound requests for one local actor.
type Signer struct {
	priv     ed25519.PrivateKey
	signedBy string
	now      func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock injects the timestamp source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// NewSigner creates a Signer for a user actor identified by its URI.
func NewSigner(priv ed25519.PrivateKey, authorURI string, opts ...Option) *Signer {
	s := &Signer{priv: priv, signedBy: authorURI, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInstanceSigner creates a Signer that signs as the instance itself,
// using the "instance <host>" sentinel in Signed-By.
func NewInstanceSigner(priv ed25519.PrivateKey, host string, opts ...Option) *Signer {
	return NewSigner(priv, InstanceSentinelPrefix+host, opts...)
}

// Sign signs the request at the current clock time and returns the three
// signature headers.
func (s *Signer) Sign(req Request) http.Header {
	return s.SignAt(req, s.now())
}

// SignAt signs the request at the given timestamp. Deterministic for
// identical inputs.
func (s *Signer) SignAt(req Request, ts time.Time) http.Header {
	signable := signableString(req, ts.Unix())
	sig := ed25519.Sign(s.priv, []byte(signable))

	h := http.Header{}
	h.Set(HeaderSignature, base64.StdEncoding.EncodeToString(sig))
	h.Set(HeaderSignedAt, strconv.FormatInt(ts.Unix(), 10))
	h.Set(HeaderSignedBy, s.signedBy)
	return h
}

// SignedBy returns the Signed-By identity this signer asserts.
func (s *Signer) SignedBy() string { return s.signedBy }

// Verify checks the signature triple against the request actually
// received, with Signed-At held to DefaultMaxSkew of the current clock.
// It fails closed: missing or malformed headers, a bad key, a stale
// timestamp, or a mismatched signature all return false. It never panics
// or errors on crafted input.
func Verify(pub ed25519.PublicKey, req Request, headers http.Header) bool {
	return VerifyAt(pub, req, headers, time.Now(), DefaultMaxSkew)
}

// VerifyAt is Verify with an explicit clock and skew window. A maxSkew
// of zero or less disables the timestamp check.
func VerifyAt(pub ed25519.PublicKey, req Request, headers http.Header, now time.Time, maxSkew time.Duration) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}

	sigB64 := headers.Get(HeaderSignature)
	signedAt := headers.Get(HeaderSignedAt)
	signedBy := headers.Get(HeaderSignedBy)

	// The triple is atomic: partial presence is absence.
	if sigB64 == "" || signedAt == "" || signedBy == "" {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	ts, err := strconv.ParseInt(signedAt, 10, 64)
	if err != nil {
		return false
	}
	if maxSkew > 0 {
		drift := now.Unix() - ts
		if drift < 0 {
			drift = -drift
		}
		if drift > int64(maxSkew/time.Second) {
			return false
		}
	}

	signable := signableString(req, ts)
	return ed25519.Verify(pub, []byte(signable), sig)
}

// SignedBy extracts the Signed-By header, reporting whether it names the
// instance sentinel and, if so, the host.
func SignedBy(headers http.Header) (value string, instanceHost string, isInstance bool) {
	value = headers.Get(HeaderSignedBy)
	if strings.HasPrefix(value, InstanceSentinelPrefix) {
		return value, strings.TrimPrefix(value, InstanceSentinelPrefix), true
	}
	return value, "", false
}

// signableString canonicalizes the request into the signed form.
func signableString(req Request, unixSeconds int64) string {
	digest := sha256.Sum256(req.Body)
	return fmt.Sprintf("%s %s %d %s",
		strings.ToLower(req.Method),
		escapePath(req.Path),
		unixSeconds,
		base64.StdEncoding.EncodeToString(digest[:]),
	)
}

// escapePath URL-encodes the path while preserving segment separators.
func escapePath(path string) string {
	u := url.URL{Path: path}
	return u.EscapedPath()
}
