package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/auth"
)

// APIKeyPrefix marks credentials that are API keys rather than Firebase ID tokens.
const APIKeyPrefix = "exp_"

var ErrUnauthorized = errors.New("invalid credentials")

// TokenVerifier verifies Firebase ID tokens. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// KeyLookup resolves an API key to its owner.
type KeyLookup interface {
	LookupUser(ctx context.Context, rawKey string) (string, error)
}

type Method string

const (
	MethodFirebase Method = "firebase"
	MethodAPIKey   Method = "api_key"
)

// Authenticator maps a bearer credential to a user id. Either source may be nil.
type Authenticator struct {
	tokens TokenVerifier
	keys   KeyLookup
}

func NewAuthenticator(tokens TokenVerifier, keys KeyLookup) *Authenticator {
	return &Authenticator{tokens: tokens, keys: keys}
}

// Authenticate returns the user id for credential, or ErrUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (string, Method, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", "", ErrUnauthorized
	}

	if strings.HasPrefix(credential, APIKeyPrefix) {
		if a.keys == nil {
			return "", "", ErrUnauthorized
		}
		userID, err := a.keys.LookupUser(ctx, credential)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return userID, MethodAPIKey, nil
	}

	if a.tokens == nil {
		return "", "", ErrUnauthorized
	}
	token, err := a.tokens.VerifyIDToken(ctx, credential)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return token.UID, MethodFirebase, nil
}
