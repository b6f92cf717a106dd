package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hyperifyio/goradar/internal/record"
)

const defaultRedisPrefix = "goradar"

// RedisStore shares jobs between API replicas. Jobs are JSON strings, an
// index sorted set orders them by creation time and results are stored as
// a JSON array of wire-format records.
type RedisStore struct {
	rdb    *goredis.Client
	prefix string
	// TTL expires finished jobs and their results. Zero keeps them.
	TTL time.Duration
}

// NewRedisStore connects to addr and checks the connection.
func NewRedisStore(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) jobKey(id string) string     { return s.prefix + ":job:" + id }
func (s *RedisStore) resultsKey(id string) string { return s.prefix + ":results:" + id }
func (s *RedisStore) indexKey() string            { return s.prefix + ":jobs" }

func (s *RedisStore) Save(ctx context.Context, j Job) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", j.ID, err)
	}
	ttl := time.Duration(0)
	if j.Status.Terminal() {
		ttl = s.TTL
	}
	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, s.jobKey(j.ID), raw, ttl)
		p.ZAdd(ctx, s.indexKey(), goredis.Z{Score: float64(j.CreatedAt.UnixNano()), Member: j.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save job %s: %w", j.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Job, error) {
	raw, err := s.rdb.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("load job %s: %w", id, err)
	}
	var j Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return j, nil
}

// List walks the index newest first. Expired jobs are pruned from the index
// as they are met.
func (s *RedisStore) List(ctx context.Context, f Filter) ([]Job, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var out []Job
	for _, id := range ids {
		j, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.rdb.ZRem(ctx, s.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !f.match(j) {
			continue
		}
		out = append(out, j)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *RedisStore) SaveResults(ctx context.Context, id string, records []record.Record) error {
	n, err := s.rdb.Exists(ctx, s.jobKey(id)).Result()
	if err != nil {
		return fmt.Errorf("save results %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode results %s: %w", id, err)
	}
	if err := s.rdb.Set(ctx, s.resultsKey(id), raw, s.TTL).Err(); err != nil {
		return fmt.Errorf("save results %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Results(ctx context.Context, id string) ([]record.Record, error) {
	j, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	raw, err := s.rdb.Get(ctx, s.resultsKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load results %s: %w", id, err)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", id, err)
	}
	out := make([]record.Record, 0, len(items))
	for _, item := range items {
		r, err := record.Decode(j.Kind, item)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
