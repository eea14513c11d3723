// Package trust decides whether an inbound federation request is
// authenticated and whether its sender is defederated. Failures are
// communicated as data carrying their own HTTP status, because the caller
// must translate them into precise wire responses.
package trust

import (
	"crypto/subtle"
	"net/netip"
	"net/url"
	"path"
	"strings"

	"github.com/versia-works/federation/config"
	"github.com/versia-works/federation/errors"
)

// Decision is the resolver's verdict on one inbound request. It is
// derived per request and never stored.
type Decision struct {
	// SignatureRequired is true unless an authorized bridge vouches for
	// the request.
	SignatureRequired bool

	// BridgeAuthorized is true when the bridge token and source IP both
	// checked out.
	BridgeAuthorized bool

	// Err is non-nil when the request must be rejected; its status is
	// the exact wire response.
	Err *errors.APIError
}

// Resolver evaluates trust for inbound requests. Configuration is passed
// explicitly so the resolver is unit-testable without process-wide state.
type Resolver struct {
	bridge  config.BridgeConfig
	blocked []string
}

// NewResolver creates a Resolver from the bridge settings and the
// defederation blocklist.
func NewResolver(bridge config.BridgeConfig, blocked []string) *Resolver {
	return &Resolver{bridge: bridge, blocked: blocked}
}

// IsDefederated reports whether the host matches the blocklist. Patterns
// use glob semantics ("spam.example", "*.badnet.example"). Matching is
// case-insensitive; a malformed pattern never matches.
func (r *Resolver) IsDefederated(host string) bool {
	host = strings.ToLower(host)
	for _, pattern := range r.blocked {
		if ok, err := path.Match(strings.ToLower(pattern), host); err == nil && ok {
			return true
		}
	}
	return false
}

// Resolve produces the trust decision for a request. authorization is the
// raw Authorization header value; sourceIP is the request's remote
// address as recorded by the gateway.
//
// With the bridge disabled, or without a bearer token, the request is in
// direct mode: the signature must verify. With the bridge enabled and a
// bearer token present, the token and source IP are checked and any
// mismatch is a typed rejection; only a full match skips signature
// verification.
func (r *Resolver) Resolve(authorization, sourceIP string) Decision {
	token, ok := bearerToken(authorization)
	if !ok || !r.bridge.Enabled {
		return Decision{SignatureRequired: true}
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(r.bridge.Token)) != 1 {
		return Decision{
			SignatureRequired: true,
			Err:               errors.Unauthorized("invalid_bridge_token"),
		}
	}

	if sourceIP == "" {
		return Decision{
			SignatureRequired: true,
			Err:               errors.Internal("missing_request_ip"),
		}
	}

	if !r.ipAllowed(sourceIP) {
		return Decision{
			SignatureRequired: true,
			Err:               errors.Forbidden("bridge_ip_not_allowed"),
		}
	}

	return Decision{SignatureRequired: false, BridgeAuthorized: true}
}

// ipAllowed matches the source IP against the allowlist. Entries may be
// exact addresses, CIDR prefixes, or glob patterns. An empty allowlist
// rejects everything: the bridge must be explicitly scoped.
func (r *Resolver) ipAllowed(sourceIP string) bool {
	addr, addrErr := netip.ParseAddr(sourceIP)

	for _, entry := range r.bridge.AllowedIPs {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err == nil && addrErr == nil && prefix.Contains(addr) {
				return true
			}
			continue
		}
		if strings.ContainsAny(entry, "*?") {
			if ok, err := path.Match(entry, sourceIP); err == nil && ok {
				return true
			}
			continue
		}
		if entry == sourceIP {
			return true
		}
	}
	return false
}

// bearerToken extracts the token from "Bearer <token>".
func bearerToken(authorization string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authorization, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(authorization, prefix)
	return token, token != ""
}

// Host extracts the lowercased hostname from an entity or actor URI.
func Host(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.WrapInvalid(err, "Resolver", "Host", "parse URI")
	}
	if u.Hostname() == "" {
		return "", errors.WrapInvalid(errors.ErrInvalidData, "Resolver", "Host", "URI has no host")
	}
	return strings.ToLower(u.Hostname()), nil
}
