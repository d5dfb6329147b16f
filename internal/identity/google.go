// Package identity verifies tokens issued by external identity providers.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/idtoken"
)

// Profile is the verified identity extracted from a provider token.
type Profile struct {
	Subject    string
	Email      string
	Name       string
	GivenName  string
	FamilyName string
	Picture    string
}

// Verifier validates a provider-issued ID token and returns the identity
// it asserts.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Profile, error)
}

// GoogleVerifier validates Google ID tokens against a client ID audience.
type GoogleVerifier struct {
	clientID string
	timeout  time.Duration
}

// NewGoogleVerifier creates a verifier for the given OAuth client ID.
func NewGoogleVerifier(clientID string, timeout time.Duration) *GoogleVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GoogleVerifier{clientID: clientID, timeout: timeout}
}

// Verify checks the token signature, audience and issuer and extracts the
// profile claims.
func (v *GoogleVerifier) Verify(ctx context.Context, token string) (*Profile, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("missing id token")
	}
	if strings.TrimSpace(v.clientID) == "" {
		return nil, errors.New("missing google client id")
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	payload, err := idtoken.Validate(ctx, token, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("validating google id token: %w", err)
	}
	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return nil, fmt.Errorf("unexpected issuer: %s", payload.Issuer)
	}

	email := stringClaim(payload.Claims, "email")
	if email == "" {
		return nil, errors.New("google token carries no email claim")
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return nil, errors.New("google account email is not verified")
	}

	return &Profile{
		Subject:    payload.Subject,
		Email:      strings.ToLower(strings.TrimSpace(email)),
		Name:       stringClaim(payload.Claims, "name"),
		GivenName:  stringClaim(payload.Claims, "given_name"),
		FamilyName: stringClaim(payload.Claims, "family_name"),
		Picture:    stringClaim(payload.Claims, "picture"),
	}, nil
}

func stringClaim(claims map[string]any, key string) string {
	if raw, ok := claims[key]; ok {
		if v, ok := raw.(string); ok {
			return v
		}
	}
	return ""
}
