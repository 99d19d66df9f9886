package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for the credential taxonomy.
var (
	// ErrUnauthenticated means no caller session or no credential was presented.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidCredential means a credential was presented but is malformed,
	// expired, or carries a bad signature.
	ErrInvalidCredential = errors.New("invalid credential")
)

// Roles recognized by the group entitlement mapping.
const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
)

// Identity is an authenticated subject with its role.
type Identity struct {
	Subject string
	Role    string
}

// Claims is the payload of a connection-upgrade token.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Issuer mints short-lived connection-upgrade tokens for sessions that
// have already been authenticated by the HTTP layer. It is stateless:
// tokens are never stored server-side.
type Issuer struct {
	key []byte
	ttl time.Duration
}

// NewIssuer creates an Issuer signing with key, valid for ttl per token.
func NewIssuer(key []byte, ttl time.Duration) *Issuer {
	return &Issuer{key: key, ttl: ttl}
}

// Issue produces a signed token bound to the given identity.
// Returns ErrUnauthenticated when the identity carries no subject.
func (i *Issuer) Issue(id Identity) (string, error) {
	if id.Subject == "" {
		return "", ErrUnauthenticated
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role: id.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
