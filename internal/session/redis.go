package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/danshapiro/newsroom/internal/graph"
	"github.com/danshapiro/newsroom/internal/llm"
)

const (
	defaultRedisPrefix = "newsroom:thread:"
	defaultLockExpiry  = 2 * time.Minute
	redisDocVersion    = 1
	lockRetryDelay     = 100 * time.Millisecond
	lockMaxTries       = 1200
)

// RedisOptions tunes a RedisStore. Zero values take defaults.
type RedisOptions struct {
	Prefix string
	// TTL expires idle threads; zero keeps them forever.
	TTL        time.Duration
	LockExpiry time.Duration
}

// RedisStore keeps msgpack-encoded thread state in Redis and serializes
// invocations on one thread across processes with a redsync mutex.
type RedisStore struct {
	client redis.UniversalClient
	rs     *redsync.Redsync
	opts   RedisOptions
	logger zerolog.Logger
}

type redisDoc struct {
	Version  int           `json:"version"`
	Messages []llm.Message `json:"messages"`
}

// NewRedisStore connects using a redis:// URL (comma-separated for
// cluster addresses) and pings the server.
func NewRedisStore(ctx context.Context, redisURL string, opts RedisOptions, logger zerolog.Logger) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis URL must be provided")
	}
	uopts, err := buildUniversalOptions(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewUniversalClient(uopts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreFromClient(client, opts, logger), nil
}

func NewRedisStoreFromClient(client redis.UniversalClient, opts RedisOptions, logger zerolog.Logger) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	if opts.LockExpiry <= 0 {
		opts.LockExpiry = defaultLockExpiry
	}
	return &RedisStore{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger,
	}
}

func buildUniversalOptions(raw string) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}
		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("no redis addresses in %q", raw)
	}
	if len(opts.Addrs) > 1 {
		opts.DB = 0
	}
	return opts, nil
}

func (s *RedisStore) key(id string) string { return s.opts.Prefix + id }

func (s *RedisStore) lockKey(id string) string { return s.opts.Prefix + "lock:" + id }

func marshalDoc(msgs []llm.Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetOmitEmpty(true)
	if err := enc.Encode(redisDoc{Version: redisDocVersion, Messages: msgs}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalDoc(b []byte) (redisDoc, error) {
	var doc redisDoc
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	err := dec.Decode(&doc)
	return doc, err
}

func (s *RedisStore) Load(ctx context.Context, threadID string) (graph.State, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	b, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return graph.State{}, nil
		}
		return nil, fmt.Errorf("load thread %s: %w", id, err)
	}
	doc, err := unmarshalDoc(b)
	if err != nil {
		return nil, fmt.Errorf("%w: thread %s: %v", ErrCorrupt, id, err)
	}
	if doc.Messages == nil {
		return graph.State{}, nil
	}
	return graph.State(doc.Messages), nil
}

func (s *RedisStore) Save(ctx context.Context, threadID string, state graph.State) error {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return err
	}
	b, err := marshalDoc([]llm.Message(state))
	if err != nil {
		return fmt.Errorf("encode thread %s: %w", id, err)
	}
	if err := s.client.Set(ctx, s.key(id), b, s.opts.TTL).Err(); err != nil {
		return fmt.Errorf("save thread %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Lock(ctx context.Context, threadID string) (Unlock, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	mutex := s.rs.NewMutex(s.lockKey(id),
		redsync.WithExpiry(s.opts.LockExpiry),
		redsync.WithTries(lockMaxTries),
		redsync.WithRetryDelay(lockRetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("lock thread %s: %w", id, err)
	}
	unlocked := false
	return func() {
		if unlocked {
			return
		}
		unlocked = true
		if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error().Err(err).Str("thread_id", id).Msg("failed to unlock thread")
		}
	}, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
