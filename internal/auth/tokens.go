package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/quizclient/internal/store"
)

// Storage keys for the token pair.
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

// TokenStore persists the access/refresh pair.
type TokenStore struct {
	kv store.KV
}

func NewTokenStore(kv store.KV) *TokenStore {
	return &TokenStore{kv: kv}
}

// Access returns the access token, or "" when none is stored.
func (t *TokenStore) Access(ctx context.Context) (string, error) {
	return t.get(ctx, AccessTokenKey)
}

// Refresh returns the refresh token, or "" when none is stored.
func (t *TokenStore) Refresh(ctx context.Context) (string, error) {
	return t.get(ctx, RefreshTokenKey)
}

// SetTokens stores both tokens.
func (t *TokenStore) SetTokens(ctx context.Context, access, refresh string) error {
	if err := t.kv.Set(ctx, AccessTokenKey, access); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	if err := t.kv.Set(ctx, RefreshTokenKey, refresh); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// SetAccess replaces only the access token.
func (t *TokenStore) SetAccess(ctx context.Context, access string) error {
	return t.kv.Set(ctx, AccessTokenKey, access)
}

// Clear removes both tokens.
func (t *TokenStore) Clear(ctx context.Context) error {
	return t.kv.Delete(ctx, AccessTokenKey, RefreshTokenKey)
}

// IsAuthenticated reports whether an access token is stored.
func (t *TokenStore) IsAuthenticated(ctx context.Context) bool {
	access, err := t.Access(ctx)
	return err == nil && access != ""
}

func (t *TokenStore) get(ctx context.Context, key string) (string, error) {
	v, err := t.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	return v, err
}

// AccessExpiry reads the exp claim of a JWT access token without verifying
// its signature. The client never holds the signing key.
func AccessExpiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}
