// Package storage provides the durable key/value layer the draw record lives in.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("storage: key not found")

// Store is a text-valued key/value store. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver        string // memory, sqlite, redis or mongo
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MongoURI      string
	MongoDatabase string
}

// Open constructs the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		s, err = asStore(OpenSQLite(ctx, opts.SQLitePath))
	case "redis":
		s, err = asStore(OpenRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB))
	case "mongo", "mongodb":
		s, err = asStore(OpenMongo(ctx, opts.MongoURI, opts.MongoDatabase))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// asStore keeps a failed constructor's nil pointer out of the interface.
func asStore[T Store](s T, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*MongoStore)(nil)
)
