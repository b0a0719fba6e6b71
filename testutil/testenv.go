// Package testutil provides shared scaffolding for integration tests:
// a temp-dir-backed BadgerDB store and a default config, grounded on
// rechain/testutil/testenv.go's TestEnvironment shape.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/artha-network/artha-core/internal/storage"
	"github.com/artha-network/artha-core/pkg/config"
)

// TestEnvironment manages a temp-dir-backed storage instance and default
// config for integration tests.
type TestEnvironment struct {
	T       *testing.T
	TempDir string
	Config  *config.Config
	Store   storage.Store
}

// NewTestEnvironment creates a new test environment backed by a fresh
// BadgerDB instance in a temp directory.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "artha-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Node.DataDir = tempDir
	cfg.Storage.Path = filepath.Join(tempDir, "data")

	store, err := storage.NewBadgerStore(cfg.Storage.Path)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create BadgerDB store: %v", err)
	}

	return &TestEnvironment{T: t, TempDir: tempDir, Config: cfg, Store: store}
}

// Close cleans up the test environment.
func (env *TestEnvironment) Close() {
	env.T.Helper()

	if env.Store != nil {
		if err := env.Store.Close(); err != nil {
			env.T.Logf("error closing store: %v", err)
		}
	}
	if env.TempDir != "" {
		if err := os.RemoveAll(env.TempDir); err != nil {
			env.T.Logf("error removing temp dir: %v", err)
		}
	}
}

// MustSet sets a key-value pair in the store, failing the test on error.
func (env *TestEnvironment) MustSet(ctx context.Context, key, value []byte) {
	env.T.Helper()
	if err := env.Store.Set(ctx, key, value); err != nil {
		env.T.Fatalf("failed to set key %q: %v", key, err)
	}
}

// MustGet gets a value from the store, failing the test on error.
func (env *TestEnvironment) MustGet(ctx context.Context, key []byte) []byte {
	env.T.Helper()
	value, err := env.Store.Get(ctx, key)
	if err != nil {
		env.T.Fatalf("failed to get key %q: %v", key, err)
	}
	return value
}

// MustNotExist verifies that a key does not exist in the store.
func (env *TestEnvironment) MustNotExist(ctx context.Context, key []byte) {
	env.T.Helper()
	has, err := env.Store.Has(ctx, key)
	if err != nil {
		env.T.Fatalf("failed to check key %q: %v", key, err)
	}
	if has {
		env.T.Fatalf("key %q exists but should not", key)
	}
}
