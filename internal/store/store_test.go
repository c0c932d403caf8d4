package store

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	r := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	t.Cleanup(func() { r.Close() })
	return r, mr
}

func TestKVBackends(t *testing.T) {
	r, _ := newTestRedis(t)
	backends := []struct {
		name string
		kv   KV
	}{
		{"sqlite", newTestStore(t)},
		{"memory", NewMemory()},
		{"redis", r},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := b.kv.Get(ctx, "accessToken"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get on empty store: got %v, want ErrNotFound", err)
			}

			if err := b.kv.Set(ctx, "accessToken", "a1"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := b.kv.Set(ctx, "refreshToken", "r1"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := b.kv.Get(ctx, "accessToken")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != "a1" {
				t.Errorf("Get = %q, want 'a1'", got)
			}

			// Overwrite.
			if err := b.kv.Set(ctx, "accessToken", "a2"); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			got, _ = b.kv.Get(ctx, "accessToken")
			if got != "a2" {
				t.Errorf("Get after overwrite = %q, want 'a2'", got)
			}

			if err := b.kv.Delete(ctx, "accessToken", "refreshToken", "missing"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := b.kv.Get(ctx, "refreshToken"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after Delete: got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestRedisKeyPrefix(t *testing.T) {
	r, mr := newTestRedis(t)
	if err := r.Set(context.Background(), "quiz_session_id", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("quizclient:quiz_session_id") {
		t.Fatal("expected prefixed key in redis")
	}
}

func TestKeys(t *testing.T) {
	r, _ := newTestRedis(t)
	listers := []struct {
		name string
		kv   interface {
			KV
			Lister
		}
	}{
		{"sqlite", newTestStore(t)},
		{"memory", NewMemory()},
		{"redis", r},
	}

	for _, l := range listers {
		t.Run(l.name, func(t *testing.T) {
			ctx := context.Background()
			_ = l.kv.Set(ctx, "b", "2")
			_ = l.kv.Set(ctx, "a", "1")

			keys, err := l.kv.Keys(ctx)
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
				t.Errorf("Keys = %v, want [a b]", keys)
			}
		})
	}
}
