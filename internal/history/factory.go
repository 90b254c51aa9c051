package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Config selects and configures the history backend.
type Config struct {
	Backend     string
	BoltPath    string
	PostgresDSN string

	// Migrate applies embedded migrations before opening a postgres store.
	Migrate bool
}

// Open creates the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil

	case BackendBolt:
		path, err := expandPath(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", path, err)
		}
		return NewBoltStore(path)

	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("%w: postgres backend requires a DSN", ErrInvalidConfig)
		}
		if cfg.Migrate {
			if err := RunMigrations(cfg.PostgresDSN); err != nil {
				return nil, err
			}
		}
		return NewPostgresStore(ctx, cfg.PostgresDSN)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: bolt path cannot be empty", ErrInvalidConfig)
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
