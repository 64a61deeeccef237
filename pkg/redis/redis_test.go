package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (IRedis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client), mr
}

func TestSetGetDelete(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	if err := r.Set(ctx, "advice:wheat:yellow_rust", []byte(`{"text":"spray"}`), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ttl := mr.TTL("advice:wheat:yellow_rust"); ttl != time.Hour {
		t.Errorf("ttl = %v", ttl)
	}

	got, err := r.Get(ctx, "advice:wheat:yellow_rust")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"text":"spray"}` {
		t.Errorf("unexpected value %s", got)
	}

	if err := r.Delete(ctx, "advice:wheat:yellow_rust"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.Get(ctx, "advice:wheat:yellow_rust"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPingFailsWhenServerGone(t *testing.T) {
	r, mr := newTestRedis(t)

	if err := r.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	mr.Close()
	if err := r.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error after server shutdown")
	}
}
