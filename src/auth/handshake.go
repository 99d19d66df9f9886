package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials carries the raw token candidates found at upgrade time,
// one per transport location.
type Credentials struct {
	Header string // Authorization header value, with or without "Bearer "
	Query  string // dedicated query parameter value
	Cookie string // access-token cookie value
}

// Authenticator validates connection-upgrade tokens. It keeps no mutable
// state and is safe for concurrent handshakes.
type Authenticator struct {
	key []byte
}

// NewAuthenticator creates an Authenticator verifying with key.
func NewAuthenticator(key []byte) *Authenticator {
	return &Authenticator{key: key}
}

// Authenticate locates exactly one credential among the transport locations
// and verifies it. Precedence is fixed: header, then query parameter, then
// cookie. The first location holding a syntactically well-formed token wins;
// if that token fails verification the handshake fails. There is no
// fallthrough to a later location, so a stale cookie can never mask a
// tampered header token.
//
// Returns ErrUnauthenticated when no location yields a token and
// ErrInvalidCredential when the selected token fails verification.
func (a *Authenticator) Authenticate(creds Credentials) (Identity, error) {
	for _, candidate := range []string{
		stripBearer(creds.Header),
		creds.Query,
		creds.Cookie,
	} {
		if wellFormed(candidate) {
			return a.Verify(candidate)
		}
	}
	return Identity{}, ErrUnauthenticated
}

// Verify checks the signature and expiry of a single token and returns
// the identity it is bound to.
func (a *Authenticator) Verify(token string) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return a.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}
	return Identity{Subject: claims.Subject, Role: claims.Role}, nil
}

// Groups returns the broadcast groups the identity is entitled to join.
// Staff share one group; customers get their own order-status group.
func Groups(id Identity) []string {
	if id.Role == RoleCustomer {
		return []string{CustomerGroup(id.Subject)}
	}
	return []string{StaffGroup}
}

// StaffGroup receives every order event.
const StaffGroup = "orders.staff"

// CustomerGroup returns the per-customer group name.
func CustomerGroup(subject string) string {
	return "orders.customer." + subject
}

// stripBearer removes an optional "Bearer " scheme prefix.
func stripBearer(header string) string {
	if token, found := strings.CutPrefix(header, "Bearer "); found {
		return token
	}
	return header
}

// wellFormed reports whether s is syntactically a compact JWS
// (three dot-separated segments). Presence, not validity.
func wellFormed(s string) bool {
	return s != "" && strings.Count(s, ".") == 2
}
