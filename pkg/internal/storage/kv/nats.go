//go:build !no_nats

package kv

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yeisme/fsindex/pkg/configs"
)

// NATSKV 基于 JetStream KV bucket 的实现. 单键 TTL 用 ttl.go 的包装值实现，
// bucket 的 MaxAge 兜底清理.
type NATSKV struct {
	conn *nats.Conn
	kv   nats.KeyValue
}

// NewNATSKV 连接 NATS 并打开 bucket，不存在时创建.
func NewNATSKV(_ context.Context, config configs.KVConfig) (KVStore, error) {
	cfg := config.NATS

	opts := []nats.Option{nats.Name(configs.AppName + "-kv")}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	bucket, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		bucket, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      cfg.Bucket,
			Description: configs.AppName + " search cache",
			TTL:         cfg.MaxAge,
		})
	}

	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open kv bucket %s: %w", cfg.Bucket, err)
	}

	return &NATSKV{conn: nc, kv: bucket}, nil
}

func (n *NATSKV) Get(_ context.Context, key string) ([]byte, error) {
	entry, err := n.kv.Get(escapeKey(key))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	val, expired, _, err := decodeWithTTL(entry.Value(), time.Now())
	if err != nil {
		return nil, err
	}

	if expired {
		_ = n.kv.Delete(escapeKey(key))
		return nil, ErrNotFound
	}

	return val, nil
}

func (n *NATSKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, _, err := encodeWithTTL(value, ttl, time.Now())
	if err != nil {
		return err
	}

	if _, err := n.kv.Put(escapeKey(key), encoded); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	return nil
}

func (n *NATSKV) Delete(_ context.Context, key string) error {
	if err := n.kv.Delete(escapeKey(key)); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}

	return nil
}

func (n *NATSKV) Exists(ctx context.Context, key string) (bool, error) {
	_, err := n.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}

	return err == nil, err
}

// Keys 列出 bucket 中的键，在客户端按 glob 过滤. 已过期的值不返回.
func (n *NATSKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	raw, err := n.kv.Keys(nats.Context(ctx))
	if errors.Is(err, nats.ErrNoKeysFound) {
		return []string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	keys := make([]string, 0, len(raw))

	for _, k := range raw {
		key, err := unescapeKey(k)
		if err != nil {
			continue
		}

		if pattern != "" {
			if ok, _ := path.Match(pattern, key); !ok {
				continue
			}
		}

		if live, _ := n.Exists(ctx, key); live {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

func (n *NATSKV) Close() error {
	return n.conn.Drain()
}

// JetStream 键只允许 [-/_=.a-zA-Z0-9]. 其余字节与 '=' 本身写成 =XX.
func escapeKey(key string) string {
	var b strings.Builder

	for i := range len(key) {
		c := key[i]
		if isKeyByte(c) && c != '=' {
			b.WriteByte(c)
			continue
		}

		fmt.Fprintf(&b, "=%02X", c)
	}

	return b.String()
}

func unescapeKey(s string) (string, error) {
	var b strings.Builder

	for i := 0; i < len(s); i++ {
		if s[i] != '=' {
			b.WriteByte(s[i])
			continue
		}

		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated escape in %q", s)
		}

		var c byte
		if _, err := fmt.Sscanf(s[i+1:i+3], "%02X", &c); err != nil {
			return "", fmt.Errorf("bad escape in %q: %w", s, err)
		}

		b.WriteByte(c)

		i += 2
	}

	return b.String(), nil
}

func isKeyByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '-' || c == '/' || c == '_' || c == '=' || c == '.'
}

func init() {
	RegisterKVFactory(configs.KVTypeNATS, NewNATSKV)
}
