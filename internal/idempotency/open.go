package idempotency

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	KindMemory   = "memory"
	KindFile     = "file"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
)

type Options struct {
	Kind        string
	Path        string
	PostgresDSN string
}

// Open builds the store selected by opts.Kind. The returned close func is never nil.
func Open(ctx context.Context, opts Options) (Store, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case KindMemory:
		return NewMemoryStore(), noop, nil
	case KindFile, "":
		store, err := NewFileStore(opts.Path)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case KindSQLite:
		path := opts.Path
		if filepath.Ext(path) == ".json" {
			path = strings.TrimSuffix(path, ".json") + ".db"
		}
		store, err := NewSQLiteStore(ctx, path)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	case KindPostgres:
		store, err := NewPostgresStore(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown idempotency store %q", opts.Kind)
	}
}
