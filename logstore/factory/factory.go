// Package factory opens the configured logstore backend.
package factory

import (
	"fmt"
	"strings"
	"time"

	"github.com/chronosim/chronosim/logstore"
	"github.com/chronosim/chronosim/logstore/redis"
	"github.com/chronosim/chronosim/logstore/sqlite"
)

// Config selects and parameterizes a backend. An empty Backend means no
// persistence: Open returns (nil, nil) and callers run in-memory only.
type Config struct {
	Backend string        // "sqlite", "redis" or ""
	Path    string        // sqlite file path
	Addr    string        // redis address
	Prefix  string        // redis key prefix
	TTL     time.Duration // redis expiry
}

func Open(cfg Config) (logstore.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, nil
	case "sqlite":
		return sqlite.New(cfg.Path)
	case "redis":
		opts := []redis.Option{}
		if cfg.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Prefix))
		}
		if cfg.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.TTL))
		}
		return redis.New(cfg.Addr, opts...)
	default:
		return nil, fmt.Errorf("logstore: unknown backend %q", cfg.Backend)
	}
}
