package auth_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/campusprint/internal/auth"
	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

func TestNewVerifier_RequiresSecret(t *testing.T) {
	_, err := auth.NewVerifier("  ")
	require.Error(t, err)
}

func TestIssueAndVerify(t *testing.T) {
	verifier, err := auth.NewVerifier("secret")
	require.NoError(t, err)

	token, err := verifier.Issue(auth.Principal{UserID: "owner-1", Role: domain.UserRoleShopOwner, ShopID: "shop-1"}, time.Hour)
	require.NoError(t, err)

	principal, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{UserID: "owner-1", Role: domain.UserRoleShopOwner, ShopID: "shop-1"}, principal)
	assert.False(t, principal.IsAdmin())
}

func TestVerify_Rejects(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	verifier, err := auth.NewVerifier("secret", auth.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	other, err := auth.NewVerifier("other-secret", auth.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	expired, err := verifier.Issue(auth.Principal{UserID: "u"}, -time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue(auth.Principal{UserID: "u"}, time.Hour)
	require.NoError(t, err)
	noSubject, err := verifier.Issue(auth.Principal{}, time.Hour)
	require.NoError(t, err)
	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "u"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":    "not-a-token",
		"expired":    expired,
		"foreign":    foreign,
		"no subject": noSubject,
		"wrong alg":  wrongAlg,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.Verify(token)
			assert.ErrorIs(t, err, auth.ErrUnauthenticated)
		})
	}
}

func TestVerify_DefaultsRoleToStudent(t *testing.T) {
	verifier, err := auth.NewVerifier("secret")
	require.NoError(t, err)
	token, err := verifier.Issue(auth.Principal{UserID: "student-1"}, time.Hour)
	require.NoError(t, err)

	principal, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserRoleStudent, principal.Role)
}

func TestFromRequest(t *testing.T) {
	verifier, err := auth.NewVerifier("secret")
	require.NoError(t, err)
	token, err := verifier.Issue(auth.Principal{UserID: "admin-1", Role: domain.UserRoleAdmin}, time.Hour)
	require.NoError(t, err)

	header := httptest.NewRequest("GET", "/api/v1/orders", nil)
	header.Header.Set("Authorization", "Bearer "+token)
	principal, err := verifier.FromRequest(header)
	require.NoError(t, err)
	assert.True(t, principal.IsAdmin())

	query := httptest.NewRequest("GET", "/ws?token="+token, nil)
	principal, err = verifier.FromRequest(query)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", principal.UserID)

	basic := httptest.NewRequest("GET", "/", nil)
	basic.Header.Set("Authorization", "Basic abc")
	_, err = verifier.FromRequest(basic)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = verifier.FromRequest(httptest.NewRequest("GET", "/", nil))
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := auth.PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := auth.WithPrincipal(context.Background(), auth.Principal{UserID: "u"})
	principal, ok := auth.PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u", principal.UserID)
}
