package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeOnceClient struct {
	keys    map[string]time.Duration
	setErr  error
	deleted []string
}

func newFakeOnceClient() *fakeOnceClient {
	return &fakeOnceClient{keys: make(map[string]time.Duration)}
}

func (f *fakeOnceClient) SetNX(_ context.Context, key string, _ any, ttl time.Duration) *redis.BoolCmd {
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeOnceClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.keys, k)
		f.deleted = append(f.deleted, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisOnceRunsOnce(t *testing.T) {
	client := newFakeOnceClient()
	store := &RedisOnce{client: client, prefix: "insights:"}
	calls := 0
	fn := func() error { calls++; return nil }

	for i := 0; i < 3; i++ {
		if err := store.Once(context.Background(), "alert:c1-2026-03-09", time.Hour, fn); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("ожидали один вызов, получили %d", calls)
	}
	if ttl := client.keys["insights:alert:c1-2026-03-09"]; ttl != time.Hour {
		t.Fatalf("ключ должен ставиться с префиксом и TTL, получили %v", client.keys)
	}
}

func TestRedisOnceReleasesOnFailure(t *testing.T) {
	client := newFakeOnceClient()
	store := &RedisOnce{client: client}
	sendErr := errors.New("telegram недоступен")

	if err := store.Once(context.Background(), "k", time.Hour, func() error { return sendErr }); !errors.Is(err, sendErr) {
		t.Fatalf("ожидали ошибку fn, получили %v", err)
	}
	if len(client.deleted) != 1 {
		t.Fatalf("отметка должна сниматься после ошибки")
	}
	calls := 0
	if err := store.Once(context.Background(), "k", time.Hour, func() error { calls++; return nil }); err != nil || calls != 1 {
		t.Fatalf("повторная попытка должна выполниться: calls=%d err=%v", calls, err)
	}
}

func TestRedisOnceSetError(t *testing.T) {
	client := newFakeOnceClient()
	client.setErr = errors.New("connection refused")
	store := &RedisOnce{client: client}
	called := false
	err := store.Once(context.Background(), "k", time.Hour, func() error { called = true; return nil })
	if err == nil || called {
		t.Fatalf("при ошибке Redis fn не вызывается, err=%v", err)
	}
}
