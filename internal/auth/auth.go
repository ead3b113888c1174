// Package auth authenticates API callers by bearer token.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

type Claims struct {
	Subject string
	Token   string
}

type Authenticator interface {
	Authenticate(r *http.Request) (Claims, error)
}

// TokenAuthenticator accepts any of a fixed set of tokens. With no tokens it admits every
// request as "local"; that mode is meant for a loopback-only listener.
type TokenAuthenticator struct {
	tokens []string
}

func NewTokenAuthenticator(tokens ...string) *TokenAuthenticator {
	a := &TokenAuthenticator{}
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			a.tokens = append(a.tokens, t)
		}
	}
	return a
}

// NewFromConfig uses the configured tokens plus devToken when set.
func NewFromConfig(cfg config.AuthConfig, devToken string) *TokenAuthenticator {
	return NewTokenAuthenticator(append(append([]string{}, cfg.Tokens...), devToken)...)
}

func (a *TokenAuthenticator) Open() bool { return len(a.tokens) == 0 }

func (a *TokenAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	if a.Open() {
		return Claims{Subject: "local"}, nil
	}
	bearer, err := extractBearer(r)
	if err != nil {
		return Claims{}, err
	}
	for i, t := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(bearer), []byte(t)) == 1 {
			return Claims{Subject: fmt.Sprintf("token:%d", i), Token: bearer}, nil
		}
	}
	return Claims{}, ErrInvalidToken
}

func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
