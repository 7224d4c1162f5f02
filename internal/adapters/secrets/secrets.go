// Package secrets resolves credential material for transport strategies.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
	"github.com/tjfontaine/bundle-gateway/internal/pkg/config"
)

// EnvStore reads secrets from environment variables. A secret name such as
// "scoring/client-cert" maps to PREFIX_SCORING_CLIENT_CERT.
type EnvStore struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvStore creates an environment-backed store.
func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{prefix: prefix, lookup: os.LookupEnv}
}

// VarName returns the environment variable consulted for name.
func (s *EnvStore) VarName(name string) string {
	upper := strings.ToUpper(name)
	upper = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
	return s.prefix + upper
}

func (s *EnvStore) Get(ctx context.Context, name string) (string, error) {
	v, ok := s.lookup(s.VarName(name))
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ports.ErrSecretNotFound)
	}
	return v, nil
}

// FileStore reads each secret from a file named after it under a root
// directory, the layout used by mounted Kubernetes and Docker secrets.
type FileStore struct {
	dir string
}

// NewFileStore creates a directory-backed store.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Get(ctx context.Context, name string) (string, error) {
	clean := filepath.Clean("/" + name)
	path := filepath.Join(s.dir, clean)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", name, ports.ErrSecretNotFound)
		}
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}
	return string(b), nil
}

// redisGetter is the part of the redis client the store uses.
type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore reads secrets from Redis string keys.
type RedisStore struct {
	client    redisGetter
	keyPrefix string
	closer    func() error
}

// NewRedisStore connects to Redis with cfg.
func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: client, keyPrefix: cfg.KeyPrefix, closer: client.Close}
}

func (s *RedisStore) Get(ctx context.Context, name string) (string, error) {
	v, err := s.client.Get(ctx, s.keyPrefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%s: %w", name, ports.ErrSecretNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("redis get secret %s: %w", name, err)
	}
	return v, nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// New builds the store named by cfg.Type.
func New(cfg config.SecretsConfig) (ports.SecretStore, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "env":
		return NewEnvStore(cfg.EnvPrefix), nil
	case "file":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("secrets.dir is required for the file secret store")
		}
		return NewFileStore(cfg.Dir), nil
	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("secrets.redis.addr is required for the redis secret store")
		}
		return NewRedisStore(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unknown secret store type: %s (supported: env, file, redis)", cfg.Type)
	}
}

var (
	_ ports.SecretStore = (*EnvStore)(nil)
	_ ports.SecretStore = (*FileStore)(nil)
	_ ports.SecretStore = (*RedisStore)(nil)
)
