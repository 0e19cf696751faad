// Package redis implements a cassette shared through a Redis server.
//
// Documents are stored as plain string values under
// "<prefix>recording:<id>"; a sorted set "<prefix>recordings" scored by a
// counter at "<prefix>seq" keeps save order for listing.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/roach88/tapedeck/internal/cassette"
	"github.com/roach88/tapedeck/internal/recording"
)

// DefaultPrefix namespaces all keys written by the cassette.
const DefaultPrefix = "tapedeck:"

// Client is the subset of the go-redis command set the cassette uses.
// *goredis.Client satisfies it.
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
	Incr(ctx context.Context, key string) *goredis.IntCmd
	ZAdd(ctx context.Context, key string, members ...goredis.Z) *goredis.IntCmd
	ZRange(ctx context.Context, key string, start, stop int64) *goredis.StringSliceCmd
}

// Store is a Redis-backed cassette.
type Store struct {
	client Client
	prefix string
	ttl    time.Duration
	gen    cassette.IDGenerator
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key namespace. Defaults to DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL expires saved documents after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithIDGenerator sets the generator used for new recording ids.
func WithIDGenerator(gen cassette.IDGenerator) Option {
	return func(s *Store) {
		s.gen = gen
	}
}

// WithLogger sets the logger for save events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

var (
	_ cassette.Cassette = (*Store)(nil)
	_ cassette.Lister   = (*Store)(nil)
)

// New creates a cassette over an existing client.
func New(client Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		gen:    cassette.UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to the Redis server at addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return New(rdb, opts...), nil
}

// Close releases the client when it owns a connection pool.
func (s *Store) Close() error {
	if c, ok := s.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Store) documentKey(id string) string {
	return s.prefix + "recording:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "recordings"
}

func (s *Store) seqKey() string {
	return s.prefix + "seq"
}

// CreateNewRecording returns a new open in-memory recording.
func (s *Store) CreateNewRecording(category string) recording.Recording {
	return cassette.NewRecording(s.gen, category)
}

// SaveRecording closes rec and writes it. An id that already exists keeps
// its first document.
func (s *Store) SaveRecording(ctx context.Context, rec recording.Recording) error {
	rec.Close()
	doc, err := recording.Encode(rec)
	if err != nil {
		return fmt.Errorf("save recording: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.documentKey(rec.ID()), string(doc), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("save recording %s: %w", rec.ID(), err)
	}

	if created {
		seq, err := s.client.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return fmt.Errorf("save recording %s: %w", rec.ID(), err)
		}
		member := goredis.Z{Score: float64(seq), Member: rec.ID()}
		if err := s.client.ZAdd(ctx, s.indexKey(), member).Err(); err != nil {
			return fmt.Errorf("save recording %s: index: %w", rec.ID(), err)
		}
	}

	s.logger.Debug("recording saved", "id", rec.ID(), "bytes", len(doc), "created", created)
	return nil
}

// AbortRecording closes rec without writing it.
func (s *Store) AbortRecording(rec recording.Recording) {
	rec.Close()
	s.logger.Debug("recording aborted", "id", rec.ID())
}

// GetRecording loads the recording with the given id.
func (s *Store) GetRecording(ctx context.Context, id string) (recording.Recording, error) {
	doc, err := s.client.Get(ctx, s.documentKey(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("get recording %s: %w", id, cassette.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get recording %s: %w", id, err)
	}
	return recording.Decode([]byte(doc))
}

// ListRecordings returns saved ids in save order. Ids whose documents have
// expired may still be listed.
func (s *Store) ListRecordings(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
