package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"connectifyr/internal/models"

	"github.com/c-pro/geche"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const (
	DefaultTokenExpiry    = 12 * time.Hour
	DefaultRememberExpiry = 30 * 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid or expired token")

// TokenStore persists the single remember-me token across restarts.
type TokenStore interface {
	SaveToken(hash string, expiresAt time.Time) error
	LoadToken() (string, time.Time, error)
	DeleteToken() error
}

type Config struct {
	TokenExpiry    time.Duration
	RememberExpiry time.Duration
}

type liveToken struct {
	expiresAt  int64
	generation uint64
}

// AuthService issues cookie tokens for the local user. Plain tokens never
// leave the cookie; only their hashes are kept.
type AuthService struct {
	Config
	store      TokenStore
	tokens     geche.Geche[string, liveToken]
	remembered geche.Geche[string, liveToken]
	generation atomic.Uint64
	logger     *zap.Logger
	now        func() time.Time
}

func NewAuthService(ctx context.Context, config Config, store TokenStore, logger *zap.Logger) *AuthService {
	if config.TokenExpiry == 0 {
		config.TokenExpiry = DefaultTokenExpiry
	}
	if config.RememberExpiry == 0 {
		config.RememberExpiry = DefaultRememberExpiry
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		Config:     config,
		store:      store,
		tokens:     geche.NewMapTTLCache[string, liveToken](ctx, config.TokenExpiry, time.Minute),
		remembered: geche.NewMapTTLCache[string, liveToken](ctx, config.RememberExpiry, time.Minute),
		logger:     logger.Named("auth"),
		now:        time.Now,
	}
}

func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue creates a new token. Remembered tokens live longer and survive a
// restart.
func (as *AuthService) Issue(remember bool) (string, time.Time, error) {
	token, err := generateToken()
	if err != nil {
		return "", time.Time{}, err
	}

	hash := HashToken(token)
	now := as.now()

	if !remember {
		expiresAt := now.Add(as.TokenExpiry)
		as.tokens.Set(hash, liveToken{expiresAt: expiresAt.Unix(), generation: as.generation.Load()})
		return token, expiresAt, nil
	}

	expiresAt := now.Add(as.RememberExpiry)
	as.remembered.Set(hash, liveToken{expiresAt: expiresAt.Unix(), generation: as.generation.Load()})
	if as.store != nil {
		if err := as.store.SaveToken(hash, expiresAt); err != nil {
			return "", time.Time{}, fmt.Errorf("failed to persist token: %w", err)
		}
	}
	return token, expiresAt, nil
}

// Validate checks a token taken from the cookie.
func (as *AuthService) Validate(token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	hash := HashToken(token)

	live, err := as.tokens.Get(hash)
	if err != nil {
		live, err = as.remembered.Get(hash)
		if err != nil {
			return ErrInvalidToken
		}
	}
	if live.generation != as.generation.Load() || as.now().Unix() >= live.expiresAt {
		return ErrInvalidToken
	}
	return nil
}

// RevokeAll invalidates every token issued so far, including the persisted one.
func (as *AuthService) RevokeAll() error {
	as.generation.Add(1)
	if as.store == nil {
		return nil
	}
	return as.store.DeleteToken()
}

// Restore reloads the persisted remember-me token, if it has not expired.
func (as *AuthService) Restore() error {
	if as.store == nil {
		return nil
	}
	hash, expiresAt, err := as.store.LoadToken()
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !as.now().Before(expiresAt) {
		as.logger.Debug("persisted token expired", zap.Time("expires_at", expiresAt))
		return as.store.DeleteToken()
	}
	as.remembered.Set(hash, liveToken{expiresAt: expiresAt.Unix(), generation: as.generation.Load()})
	return nil
}

func generateToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
