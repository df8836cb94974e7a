package transport

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
)

// TokenSource yields the bearer token persisted by the auth collaborator.
// An empty token with a nil error means "not signed in": the request is
// sent without an Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken always returns itself.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// EnvToken reads the named environment variable on every call.
type EnvToken string

func (t EnvToken) Token(context.Context) (string, error) {
	return strings.TrimSpace(os.Getenv(string(t))), nil
}

// FileToken reads a token file on every call so a re-login is picked up
// without restarting. A missing file is treated as signed out.
type FileToken struct {
	Path string
}

func (t FileToken) Token(context.Context) (string, error) {
	b, err := os.ReadFile(t.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// RedisToken reads the token from a Redis key written by the auth service.
type RedisToken struct {
	Client redis.UniversalClient
	Key    string
}

func (t RedisToken) Token(ctx context.Context) (string, error) {
	v, err := t.Client.Get(ctx, t.Key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}
