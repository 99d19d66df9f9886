package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-signing-key")

func testIssuer() *Issuer {
	return NewIssuer(testKey, 5*time.Minute)
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	issuer := testIssuer()
	authn := NewAuthenticator(testKey)

	token, err := issuer.Issue(Identity{Subject: "42", Role: RoleCustomer})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	id, err := authn.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", id.Subject)
	assert.Equal(t, RoleCustomer, id.Role)
}

func TestIssueWithoutSubject(t *testing.T) {
	issuer := testIssuer()

	_, err := issuer.Issue(Identity{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerifyExpiredToken(t *testing.T) {
	expired := NewIssuer(testKey, -time.Minute)
	authn := NewAuthenticator(testKey)

	token, err := expired.Issue(Identity{Subject: "42", Role: RoleCustomer})
	require.NoError(t, err)

	_, err = authn.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyWrongKey(t *testing.T) {
	issuer := testIssuer()
	authn := NewAuthenticator([]byte("a-different-key"))

	token, err := issuer.Issue(Identity{Subject: "42"})
	require.NoError(t, err)

	_, err = authn.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthenticateFromEachLocation(t *testing.T) {
	issuer := testIssuer()
	authn := NewAuthenticator(testKey)

	token, err := issuer.Issue(Identity{Subject: "7", Role: RoleStaff})
	require.NoError(t, err)

	cases := []struct {
		name  string
		creds Credentials
	}{
		{"bearer header", Credentials{Header: "Bearer " + token}},
		{"bare header", Credentials{Header: token}},
		{"query param", Credentials{Query: token}},
		{"cookie", Credentials{Cookie: token}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := authn.Authenticate(tc.creds)
			require.NoError(t, err)
			assert.Equal(t, "7", id.Subject)
		})
	}
}

func TestAuthenticateTamperedTokenAnyLocation(t *testing.T) {
	issuer := testIssuer()
	authn := NewAuthenticator(testKey)

	token, err := issuer.Issue(Identity{Subject: "7"})
	require.NoError(t, err)
	tampered := token + "xx"

	cases := []struct {
		name  string
		creds Credentials
	}{
		{"header", Credentials{Header: "Bearer " + tampered}},
		{"query", Credentials{Query: tampered}},
		{"cookie", Credentials{Cookie: tampered}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := authn.Authenticate(tc.creds)
			assert.ErrorIs(t, err, ErrInvalidCredential)
		})
	}
}

func TestAuthenticateNoCredential(t *testing.T) {
	authn := NewAuthenticator(testKey)

	_, err := authn.Authenticate(Credentials{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestPrecedenceHeaderWinsOverValidCookie(t *testing.T) {
	issuer := testIssuer()
	authn := NewAuthenticator(testKey)

	valid, err := issuer.Issue(Identity{Subject: "7", Role: RoleStaff})
	require.NoError(t, err)
	tampered := valid + "xx"

	// A well-formed but invalid header token must fail the handshake even
	// though the cookie holds a valid one. No fallthrough: a stale cookie
	// must never mask a tampered header credential.
	_, err = authn.Authenticate(Credentials{
		Header: "Bearer " + tampered,
		Cookie: valid,
	})
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestPrecedenceQueryBeatsCookie(t *testing.T) {
	issuer := testIssuer()
	authn := NewAuthenticator(testKey)

	queryToken, err := issuer.Issue(Identity{Subject: "query-subject"})
	require.NoError(t, err)
	cookieToken, err := issuer.Issue(Identity{Subject: "cookie-subject"})
	require.NoError(t, err)

	id, err := authn.Authenticate(Credentials{Query: queryToken, Cookie: cookieToken})
	require.NoError(t, err)
	assert.Equal(t, "query-subject", id.Subject)
}

func TestMalformedHeaderFallsThrough(t *testing.T) {
	issuer := testIssuer()
	authn := NewAuthenticator(testKey)

	valid, err := issuer.Issue(Identity{Subject: "7"})
	require.NoError(t, err)

	// "garbage" is not even token-shaped, so the next location is tried.
	id, err := authn.Authenticate(Credentials{Header: "garbage", Query: valid})
	require.NoError(t, err)
	assert.Equal(t, "7", id.Subject)
}

func TestGroups(t *testing.T) {
	assert.Equal(t,
		[]string{"orders.customer.42"},
		Groups(Identity{Subject: "42", Role: RoleCustomer}))
	assert.Equal(t,
		[]string{"orders.staff"},
		Groups(Identity{Subject: "chef-1", Role: RoleStaff}))
}

func TestWellFormed(t *testing.T) {
	assert.True(t, wellFormed("aaa.bbb.ccc"))
	assert.False(t, wellFormed(""))
	assert.False(t, wellFormed("not-a-token"))
	assert.False(t, wellFormed(strings.Repeat(".", 4)))
}
