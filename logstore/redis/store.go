// Package redis persists runs and log entries in Redis, for simulations
// whose transcripts must outlive the process or be shared with inspection
// tooling.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/chronosim/chronosim/agent"
	"github.com/chronosim/chronosim/logbook"
	"github.com/chronosim/chronosim/logstore"
)

const (
	defaultTTL    = 72 * time.Hour
	defaultLimit  = 50
	defaultPrefix = "chrsim"
)

type Store struct {
	client *goredis.Client
	ttl    time.Duration
	prefix string
	addr   string
}

type Option func(*Store)

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	s := &Store{
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{Addr: s.addr})
	}

	_, err := agent.Retry(context.Background(), agent.Policy{MaxAttempts: 3}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.client.Ping(ctx).Err()
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

func (s *Store) SaveRun(ctx context.Context, run *logstore.Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.runKey(run.ID), string(raw), s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), goredis.Z{Score: float64(run.UpdatedAt.Unix()), Member: run.ID})
	pipe.Expire(ctx, s.indexKey(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run in redis: %w", err)
	}
	return nil
}

func (s *Store) LoadRun(ctx context.Context, id string) (*logstore.Run, error) {
	if id == "" {
		return nil, fmt.Errorf("run id is required")
	}
	raw, err := s.client.Get(ctx, s.runKey(id)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, logstore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load run from redis: %w", err)
	}
	var run logstore.Run
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]*logstore.Run, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	out := make([]*logstore.Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.LoadRun(ctx, id)
		if err != nil {
			if err == logstore.ErrNotFound {
				// Run key expired but the index entry lingers.
				continue
			}
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *Store) AppendEntries(ctx context.Context, runID string, entries ...logbook.Entry) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(entries) == 0 {
		return nil
	}
	payloads := make([]any, 0, len(entries))
	for _, e := range entries {
		raw, err := logbook.Encode(e)
		if err != nil {
			return err
		}
		payloads = append(payloads, string(raw))
	}
	key := s.entriesKey(runID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payloads...)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append entries in redis: %w", err)
	}
	return nil
}

func (s *Store) LoadEntries(ctx context.Context, runID string) ([]logbook.Entry, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	raws, err := s.client.LRange(ctx, s.entriesKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load entries from redis: %w", err)
	}
	out := make([]logbook.Entry, 0, len(raws))
	for _, raw := range raws {
		entry, err := logbook.Decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) runKey(id string) string        { return s.prefix + ":run:" + id }
func (s *Store) entriesKey(runID string) string { return s.prefix + ":entries:" + runID }
func (s *Store) indexKey() string               { return s.prefix + ":runs" }
