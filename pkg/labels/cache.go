package labels

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/menta2k/boxlabel/pkg/types"
)

// RedisConfig holds the cache connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisClient creates a client from cfg
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// CachedStore is a read-through cache in front of another store. Cache
// failures are logged and never fail a read or a save.
type CachedStore struct {
	next   Store
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedStore wraps next with a redis cache
func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedStore{next: next, client: client, ttl: ttl, logger: logger}
}

// Ping checks the cache connection
func (s *CachedStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetLabels serves from the cache, falling back to the wrapped store
func (s *CachedStore) GetLabels(ctx context.Context, datasetID, imagePath string) (*types.LabelSet, error) {
	key := cacheKey(datasetID, imagePath)

	data, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var set types.LabelSet
		if err := json.Unmarshal(data, &set); err == nil {
			return &set, nil
		}
		s.logger.Warn("discarding corrupt cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	set, err := s.next.GetLabels(ctx, datasetID, imagePath)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(set); err == nil {
		if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return set, nil
}

// SaveLabels writes through to the wrapped store and invalidates the entry
func (s *CachedStore) SaveLabels(ctx context.Context, datasetID, imagePath string, boxes []types.Box) error {
	if err := s.next.SaveLabels(ctx, datasetID, imagePath, boxes); err != nil {
		return err
	}

	key := cacheKey(datasetID, imagePath)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// ListImages delegates to the wrapped store when it can list
func (s *CachedStore) ListImages(ctx context.Context, datasetID string) ([]string, error) {
	lister, ok := s.next.(Lister)
	if !ok {
		return nil, errors.New("labels: wrapped store cannot list images")
	}
	return lister.ListImages(ctx, datasetID)
}

// Close closes the redis client
func (s *CachedStore) Close() error {
	return s.client.Close()
}

func cacheKey(datasetID, imagePath string) string {
	return "labels:" + datasetID + ":" + imagePath
}
