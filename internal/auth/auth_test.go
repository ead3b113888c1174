package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
)

func TestTokenAuthenticator(t *testing.T) {
	a := NewFromConfig(config.AuthConfig{Tokens: []string{"alpha", " "}}, "dev")
	assert.False(t, a.Open())

	cases := []struct {
		name    string
		header  string
		subject string
		err     error
	}{
		{"missing", "", "", ErrMissingBearer},
		{"wrong scheme", "Basic alpha", "", ErrInvalidToken},
		{"empty bearer", "Bearer  ", "", ErrInvalidToken},
		{"unknown", "Bearer beta", "", ErrInvalidToken},
		{"config token", "Bearer alpha", "token:0", nil},
		{"dev token", "Bearer dev", "token:1", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/pending/x", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			claims, err := a.Authenticate(r)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.subject, claims.Subject)
		})
	}
}

func TestOpenAuthenticator(t *testing.T) {
	a := NewFromConfig(config.AuthConfig{}, "")
	require.True(t, a.Open())
	claims, err := a.Authenticate(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "local", claims.Subject)
}
