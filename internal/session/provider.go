package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"rockguard/internal/logger"
	"rockguard/internal/models"
	"rockguard/internal/state"
)

// DefaultKey is where the active user is persisted.
const DefaultKey = "rockguard_user"

var ErrInvalidCredentials = errors.New("session: email and password are required")

// Provider is a mock identity provider. Any non-empty email/password pair
// signs in; the role is derived from the email.
type Provider struct {
	store state.StateStore
	key   string
}

// NewProvider creates a provider persisting to store under key. An empty
// key selects DefaultKey.
func NewProvider(store state.StateStore, key string) *Provider {
	if key == "" {
		key = DefaultKey
	}
	return &Provider{store: store, key: key}
}

// Login signs a user in and persists the session.
func (p *Provider) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user := &models.User{
		ID:    "1",
		Email: email,
		Name:  strings.SplitN(email, "@", 2)[0],
		Role:  models.RoleOperator,
	}
	if strings.Contains(email, "admin") {
		user.Role = models.RoleAdmin
	}

	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if err := p.store.Set(ctx, p.key, data); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	log := logger.WithComponent("session")
	log.Info().
		Str("user", user.Name).
		Str("role", string(user.Role)).
		Msg("user signed in")

	return user, nil
}

// Logout clears the persisted session.
func (p *Provider) Logout(ctx context.Context) error {
	if err := p.store.Delete(ctx, p.key); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	log := logger.WithComponent("session")
	log.Info().Msg("user signed out")
	return nil
}

// CurrentUser returns the signed-in user, or nil when nobody is signed in.
// A corrupt record is discarded and treated as signed out.
func (p *Provider) CurrentUser(ctx context.Context) (*models.User, error) {
	data, err := p.store.Get(ctx, p.key)
	if errors.Is(err, state.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		log := logger.WithComponent("session")
		log.Warn().Err(err).Str("key", p.key).Msg("discarding corrupt session record")
		if derr := p.store.Delete(ctx, p.key); derr != nil {
			log.Error().Err(derr).Msg("failed to discard session record")
		}
		return nil, nil
	}
	return &user, nil
}
