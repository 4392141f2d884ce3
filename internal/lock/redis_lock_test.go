package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	locker, err := NewRedisLocker("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis locker: %v", err)
	}
	t.Cleanup(func() { _ = locker.Close() })
	return locker, s
}

func TestNewRedisLocker(t *testing.T) {
	locker, _ := setupTestRedis(t)

	if err := locker.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisLockerBadURL(t *testing.T) {
	if _, err := NewRedisLocker("not a url"); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	locker, _ := setupTestRedis(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "sheet-sync", time.Minute)
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	_, err = locker.Acquire(ctx, "sheet-sync", time.Minute)
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	held, err := locker.held(ctx, "sheet-sync")
	if err != nil || !held {
		t.Fatalf("expected lock to be held, got held=%v err=%v", held, err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	release, err = locker.Acquire(ctx, "sheet-sync", time.Minute)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	_ = release(ctx)
}

func TestLockExpires(t *testing.T) {
	locker, s := setupTestRedis(t)
	ctx := context.Background()

	if _, err := locker.Acquire(ctx, "sheet-sync", 50*time.Millisecond); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	s.FastForward(100 * time.Millisecond)

	release, err := locker.Acquire(ctx, "sheet-sync", time.Minute)
	if err != nil {
		t.Fatalf("expected expired lock to be free, got %v", err)
	}
	_ = release(ctx)
}

func TestStaleReleaseKeepsNewHolder(t *testing.T) {
	locker, s := setupTestRedis(t)
	ctx := context.Background()

	staleRelease, err := locker.Acquire(ctx, "sheet-sync", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	s.FastForward(100 * time.Millisecond)

	if _, err := locker.Acquire(ctx, "sheet-sync", time.Minute); err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}

	if err := staleRelease(ctx); err != nil {
		t.Fatalf("stale release errored: %v", err)
	}

	held, err := locker.held(ctx, "sheet-sync")
	if err != nil {
		t.Fatalf("held failed: %v", err)
	}
	if !held {
		t.Error("stale release must not delete the new holder's lock")
	}
}

func TestLockIsolation(t *testing.T) {
	locker, _ := setupTestRedis(t)
	ctx := context.Background()

	if _, err := locker.Acquire(ctx, "sheet-sync", time.Minute); err != nil {
		t.Fatalf("Acquire sheet-sync failed: %v", err)
	}
	if _, err := locker.Acquire(ctx, "reindex", time.Minute); err != nil {
		t.Errorf("locks with different names must not conflict: %v", err)
	}
}
