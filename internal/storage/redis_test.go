package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedis("redis://"+s.Addr(), "test:")
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func TestRedisSetGet(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.Set(ctx, "voiceProjects", []byte(`[]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get(ctx, "voiceProjects")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "[]" {
		t.Errorf("got %q", got)
	}
	if !s.Exists("test:voiceProjects") {
		t.Error("expected prefixed key in redis")
	}
}

func TestRedisGetMissing(t *testing.T) {
	store, _ := setupTestRedis(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRedisDelete(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()
	_ = store.Set(ctx, "k", []byte("v"))
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Exists("test:k") {
		t.Error("key should be gone")
	}
}

func TestNewRedisBadURL(t *testing.T) {
	if _, err := NewRedis("not-a-url://", ""); err == nil {
		t.Error("expected parse error")
	}
}

func TestRedisDefaultPrefix(t *testing.T) {
	s := miniredis.RunT(t)
	store, err := NewRedis("redis://"+s.Addr(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	_ = store.Set(context.Background(), "voiceNotes", []byte("[]"))
	if !s.Exists(DefaultRedisPrefix + "voiceNotes") {
		t.Error("expected default prefix")
	}
}
