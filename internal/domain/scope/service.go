package scope

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rpggio/galley/internal/repository"
)

// Service checks scopes and manages grants and API keys.
type Service struct {
	grants GrantRepository
	keys   KeyRepository
	logger *slog.Logger
}

// NewService creates a new scope service.
func NewService(grants GrantRepository, keys KeyRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{grants: grants, keys: keys, logger: logger}
}

// HasScopes reports whether principal holds every scope in scopes for
// tenantID. An empty list is always satisfied. A principal never holds
// scopes in a tenant other than its own.
func (s *Service) HasScopes(ctx context.Context, principal Principal, tenantID string, scopes []string) (bool, error) {
	if len(scopes) == 0 {
		return true, nil
	}
	if principal.TenantID != tenantID || principal.ActorID == "" {
		return false, nil
	}

	granted, err := s.grants.ListGrants(ctx, tenantID, principal.ActorID)
	if err != nil {
		return false, fmt.Errorf("listing grants: %w", err)
	}
	held := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		if g == Wildcard {
			return true, nil
		}
		held[g] = struct{}{}
	}
	for _, want := range scopes {
		if _, ok := held[want]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// Grant gives actorID a scope in tenantID. Granting twice is a no-op.
func (s *Service) Grant(ctx context.Context, tenantID, actorID, scope string) error {
	if tenantID == "" || actorID == "" || strings.TrimSpace(scope) == "" {
		return ErrInvalidInput
	}
	if err := s.grants.Grant(ctx, tenantID, actorID, scope); err != nil {
		return fmt.Errorf("granting scope: %w", err)
	}
	s.logger.Info("scope granted", "tenant_id", tenantID, "actor_id", actorID, "scope", scope)
	return nil
}

// Revoke removes a scope grant.
func (s *Service) Revoke(ctx context.Context, tenantID, actorID, scope string) error {
	if err := s.grants.Revoke(ctx, tenantID, actorID, scope); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("revoking scope: %w", err)
	}
	return nil
}

// Grants lists the scopes held by actorID.
func (s *Service) Grants(ctx context.Context, tenantID, actorID string) ([]string, error) {
	return s.grants.ListGrants(ctx, tenantID, actorID)
}

// AddAPIKey creates a new key for principal and returns the raw token. Only
// its hash is stored.
func (s *Service) AddAPIKey(ctx context.Context, principal Principal, description string) (string, error) {
	if principal.TenantID == "" || principal.ActorID == "" {
		return "", ErrInvalidInput
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	token := "gk_" + hex.EncodeToString(raw)
	key := &APIKey{
		KeyHash:     HashToken(token),
		TenantID:    principal.TenantID,
		ActorID:     principal.ActorID,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.keys.Add(ctx, key); err != nil {
		return "", fmt.Errorf("storing api key: %w", err)
	}
	return token, nil
}

// ResolvePrincipal maps a raw API key to the principal it was issued for.
func (s *Service) ResolvePrincipal(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnauthorized
	}
	key, err := s.keys.Resolve(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Principal{}, ErrUnauthorized
		}
		return Principal{}, fmt.Errorf("resolving api key: %w", err)
	}
	return Principal{TenantID: key.TenantID, ActorID: key.ActorID}, nil
}

// HashToken returns the hex sha256 of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
