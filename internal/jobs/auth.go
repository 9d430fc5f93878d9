package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthKind selects how job requests authenticate.
type AuthKind string

const (
	AuthNone            AuthKind = "none"
	AuthAPIKey          AuthKind = "api_key"
	AuthServiceToken    AuthKind = "service_token"
	AuthForwardedBearer AuthKind = "forwarded_bearer"
)

var (
	// ErrNoForwardedToken indicates the caller's bearer token was not
	// available to forward.
	ErrNoForwardedToken = errors.New("no bearer token to forward")
	// ErrUnknownAuthKind indicates a misconfigured auth kind.
	ErrUnknownAuthKind = errors.New("unknown job auth kind")
)

// Authorizer attaches credentials to an outgoing job request.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// AuthConfig carries the settings for every strategy; each reads only its
// own fields.
type AuthConfig struct {
	Kind          AuthKind
	APIKey        string
	APIKeyHeader  string
	SigningSecret string
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
}

// NewAuthorizer builds the strategy named by cfg.Kind.
func NewAuthorizer(cfg AuthConfig) (Authorizer, error) {
	switch cfg.Kind {
	case "", AuthNone:
		return NoAuth{}, nil
	case AuthAPIKey:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("api_key auth: key is required")
		}
		return APIKey{Header: cfg.APIKeyHeader, Key: cfg.APIKey}, nil
	case AuthServiceToken:
		if cfg.SigningSecret == "" {
			return nil, fmt.Errorf("service_token auth: signing secret is required")
		}
		return &ServiceToken{
			Secret:   []byte(cfg.SigningSecret),
			Issuer:   cfg.Issuer,
			Audience: cfg.Audience,
			TTL:      cfg.TokenTTL,
		}, nil
	case AuthForwardedBearer:
		return ForwardedBearer{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAuthKind, cfg.Kind)
	}
}

// NoAuth sends no credentials.
type NoAuth struct{}

func (NoAuth) Authorize(context.Context, *http.Request) error { return nil }

// APIKey sends a static key in a header, X-API-Key unless Header is set.
type APIKey struct {
	Header string
	Key    string
}

func (a APIKey) Authorize(_ context.Context, req *http.Request) error {
	header := a.Header
	if header == "" {
		header = "X-API-Key"
	}
	req.Header.Set(header, a.Key)
	return nil
}

// ServiceToken mints a short-lived HS256 JWT per request.
type ServiceToken struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Now      func() time.Time
}

func (s *ServiceToken) Authorize(_ context.Context, req *http.Request) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	issued := now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.Issuer,
		Subject:   s.Issuer,
		IssuedAt:  jwt.NewNumericDate(issued),
		NotBefore: jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		ID:        uuid.NewString(),
	}
	if s.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return fmt.Errorf("signing service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+signed)
	return nil
}

// ForwardedBearer relays the bearer token the triggering caller presented.
// The token must have been stored with WithBearerToken.
type ForwardedBearer struct{}

func (ForwardedBearer) Authorize(ctx context.Context, req *http.Request) error {
	token, ok := BearerTokenFromContext(ctx)
	if !ok || token == "" {
		return ErrNoForwardedToken
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

type bearerKey struct{}

// WithBearerToken stores the caller's raw bearer token for forwarding.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

// BearerTokenFromContext returns the token stored by WithBearerToken.
func BearerTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(bearerKey{}).(string)
	return token, ok
}
