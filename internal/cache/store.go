// Package cache provides the shared key/value store used for token
// bundles, sessions, and API read caching. It is backed by Redis and
// degrades to an in-process fallback map when Redis is unreachable:
// callers never see connection errors, reads simply miss and writes land
// in the fallback.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/callezenwaka/authenticate/internal/common/logging"
)

const (
	// Reconnect backoff doubles per attempt from base to cap.
	reconnectBase = 50 * time.Millisecond
	reconnectCap  = 2000 * time.Millisecond

	defaultMaxRetries = 3
	defaultPoolSize   = 10

	pingTimeout = 5 * time.Second
)

// Config holds connection settings for the cache backend
type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
	// MaxRetries bounds the reconnect loop; once exhausted the store stays
	// on the in-memory fallback until process restart or Reconnect.
	MaxRetries int `json:"max_retries"`
}

// Store is the cache used by the vault, session store, and API services.
// All operations are safe for concurrent use and never return connection
// errors: individual failures fail over to the fallback within the same
// call, and only the reconnect loop observes them.
type Store struct {
	rdb        *redis.Client
	fallback   *memoryStore
	logger     logging.Logger
	maxRetries int

	mu       sync.RWMutex
	degraded bool

	closed    chan struct{}
	closeOnce sync.Once
}

// NewStore connects to the configured Redis backend. A failed initial
// connection does not fail construction; it schedules the reconnect loop
// and the store serves from the fallback in the meantime.
func NewStore(config *Config, logger logging.Logger) *Store {
	if config == nil {
		config = &Config{}
	}
	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = defaultPoolSize
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     config.Address,
			Password: config.Password,
			DB:       config.DB,
			PoolSize: config.PoolSize,
		}),
		fallback:   newMemoryStore(),
		logger:     logger,
		maxRetries: config.MaxRetries,
		closed:     make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		s.logger.Warn("Cache connection failed, scheduling reconnect",
			logging.Field{Key: "address", Value: config.Address},
			logging.Field{Key: "error", Value: err.Error()})
		go s.reconnectLoop()
	} else {
		s.logger.Info("Cache connected", logging.Field{Key: "address", Value: config.Address})
	}

	return s
}

// reconnectLoop retries the connection with exponential backoff. After
// maxRetries failures the store switches to the fallback permanently.
func (s *Store) reconnectLoop() {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		select {
		case <-s.closed:
			return
		case <-time.After(backoffDelay(attempt)):
		}

		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		err := s.rdb.Ping(ctx).Err()
		cancel()

		if err == nil {
			s.logger.Info("Cache reconnected", logging.Field{Key: "attempt", Value: attempt})
			return
		}

		s.logger.Warn("Cache reconnect attempt failed",
			logging.Field{Key: "attempt", Value: attempt},
			logging.Field{Key: "error", Value: err.Error()})
	}

	s.mu.Lock()
	s.degraded = true
	s.mu.Unlock()

	s.logger.Warn("Cache unreachable, switching to in-memory fallback",
		logging.Field{Key: "attempts", Value: s.maxRetries})
}

// backoffDelay returns the reconnect delay for the given 1-based attempt
func backoffDelay(attempt int) time.Duration {
	delay := reconnectBase << uint(attempt-1)
	if delay > reconnectCap || delay <= 0 {
		return reconnectCap
	}
	return delay
}

// Client exposes the underlying Redis client for collaborators that need
// primitives beyond get/set/delete, such as the rate limiter
func (s *Store) Client() *redis.Client {
	return s.rdb
}

// Available reports whether the external cache backend is still in use
func (s *Store) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.degraded
}

// Reconnect clears a permanent fallback state and restarts the reconnect
// loop. Existing fallback entries are kept; they become unreachable once
// Redis serves reads again.
func (s *Store) Reconnect() {
	s.mu.Lock()
	s.degraded = false
	s.mu.Unlock()
	go s.reconnectLoop()
}

// Get retrieves a value. The second return is false on miss; connection
// failures are absorbed and answered from the fallback.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	if !s.Available() {
		s.logger.Debug("Cache get served from fallback", logging.Field{Key: "key", Value: key})
		return s.fallback.Get(key)
	}

	value, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		s.logger.Warn("Cache get failed, using fallback",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "error", Value: err.Error()})
		return s.fallback.Get(key)
	}

	return value, true
}

// GetJSON retrieves a value and unmarshals it into dest. Returns false on
// miss or if the stored payload does not decode.
func (s *Store) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	data, ok := s.Get(ctx, key)
	if !ok {
		return false
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		s.logger.Warn("Cache entry failed to decode",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "error", Value: err.Error()})
		return false
	}

	return true
}

// Set stores a value with a TTL. A zero TTL means no expiry. Strings and
// byte slices are stored as-is, everything else is JSON-encoded. Failures
// are absorbed: the write lands in the fallback instead.
func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := encodeValue(value)
	if err != nil {
		s.logger.Warn("Cache set dropped, value not encodable",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}

	if !s.Available() {
		s.logger.Debug("Cache set served from fallback", logging.Field{Key: "key", Value: key})
		s.fallback.Set(key, data, ttl)
		return
	}

	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		s.logger.Warn("Cache set failed, using fallback",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "error", Value: err.Error()})
		s.fallback.Set(key, data, ttl)
	}
}

// Delete removes a key. The fallback copy is removed unconditionally so a
// value written during an earlier failover window cannot resurface.
func (s *Store) Delete(ctx context.Context, key string) {
	s.fallback.Delete(key)

	if !s.Available() {
		s.logger.Debug("Cache delete served from fallback", logging.Field{Key: "key", Value: key})
		return
	}

	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("Cache delete failed",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "error", Value: err.Error()})
	}
}

// Health pings the backend, reporting nil while the external cache is
// reachable
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

// Close stops the reconnect loop and releases the connection pool
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return s.rdb.Close()
}

func encodeValue(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
