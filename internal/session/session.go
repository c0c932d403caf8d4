// Package session keeps the anonymous per-client session identity used to
// tag quiz submissions. The identity is not a credential.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/pavelanni/quizclient/internal/store"
)

// StorageKey is the fixed key the identity is persisted under.
const StorageKey = "quiz_session_id"

const (
	idLength   = 9
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Identity generates and persists the session token.
type Identity struct {
	kv     store.KV
	random func(n int) int
}

func New(kv store.KV) *Identity {
	return &Identity{kv: kv, random: rand.IntN}
}

// ID returns the persisted token, generating one on first use.
func (i *Identity) ID(ctx context.Context) (string, error) {
	id, err := i.kv.Get(ctx, StorageKey)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("read session id: %w", err)
	}
	return i.Regenerate(ctx)
}

// Regenerate replaces the persisted token with a fresh one.
func (i *Identity) Regenerate(ctx context.Context) (string, error) {
	id := i.generate()
	if err := i.kv.Set(ctx, StorageKey, id); err != nil {
		return "", fmt.Errorf("store session id: %w", err)
	}
	return id, nil
}

// Clear removes the persisted token.
func (i *Identity) Clear(ctx context.Context) error {
	return i.kv.Delete(ctx, StorageKey)
}

func (i *Identity) generate() string {
	b := make([]byte, idLength)
	for n := range b {
		b[n] = idAlphabet[i.random(len(idAlphabet))]
	}
	return string(b)
}
