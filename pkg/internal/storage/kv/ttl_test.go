package kv

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestMemoryTTL 过期后读取不到，且键被清理.
func TestMemoryTTL(t *testing.T) {
	now := time.Unix(1700000000, 0)
	m := &MemoryKV{now: func() time.Time { return now }}
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}

	if v, err := m.Get(ctx, "k"); err != nil || string(v) != "v" {
		t.Fatalf("Get before expiry = %q, %v", v, err)
	}

	now = now.Add(time.Minute)

	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after expiry = %v, want ErrNotFound", err)
	}

	if _, ok := m.data.Load("k"); ok {
		t.Error("expired key not removed")
	}
}

func TestDecodeWithTTLPassthrough(t *testing.T) {
	v, expired, wrapped, err := decodeWithTTL([]byte("plain"), time.Now())
	if err != nil || expired || wrapped || string(v) != "plain" {
		t.Errorf("decodeWithTTL = %q, %v, %v, %v", v, expired, wrapped, err)
	}
}
