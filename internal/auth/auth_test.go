package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func validClaims(sub string) Claims {
	return Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    "identity",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
}

func TestVerify(t *testing.T) {
	v, err := NewVerifier("s3cret", "identity")
	require.NoError(t, err)

	expired := validClaims("alice")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongIssuer := validClaims("alice")
	wrongIssuer.Issuer = "someone-else"
	noExpiry := validClaims("alice")
	noExpiry.ExpiresAt = nil

	cases := []struct {
		name    string
		token   string
		want    string
		wantErr bool
	}{
		{name: "valid", token: sign(t, "s3cret", validClaims("alice")), want: "alice"},
		{name: "wrong secret", token: sign(t, "other", validClaims("alice")), wantErr: true},
		{name: "expired", token: sign(t, "s3cret", expired), wantErr: true},
		{name: "no expiry", token: sign(t, "s3cret", noExpiry), wantErr: true},
		{name: "wrong issuer", token: sign(t, "s3cret", wrongIssuer), wantErr: true},
		{name: "no subject", token: sign(t, "s3cret", validClaims("")), wantErr: true},
		{name: "garbage", token: "not-a-token", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := v.Verify(tc.token)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnauthenticated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	_, err := NewVerifier("  ", "")
	assert.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=fromquery", nil)
	assert.Equal(t, "fromquery", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer fromheader")
	assert.Equal(t, "fromheader", TokenFromRequest(r))
}

func TestMiddleware(t *testing.T) {
	v, err := NewVerifier("s3cret", "")
	require.NoError(t, err)

	var seen string
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ViewerFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, "s3cret", validClaims("bob")))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", seen)
}
