package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"quoteengine/pkg/quote/domain/model"
)

const keyPrefix = "quoteengine:supplier-performance:"

// Store is the part of a redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func NewClient(c Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
}

// PerformanceCatalog keeps supplier performance aggregates in redis for ttl.
// Offers are always read from the wrapped catalog. A redis outage degrades to
// uncached reads.
type PerformanceCatalog struct {
	next   model.SupplierCatalog
	store  Store
	ttl    time.Duration
	logger log.FieldLogger
}

func NewPerformanceCatalog(next model.SupplierCatalog, store Store, ttl time.Duration, logger log.FieldLogger) *PerformanceCatalog {
	return &PerformanceCatalog{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *PerformanceCatalog) OffersForUnit(ctx context.Context, catalogUnitID uuid.UUID) ([]model.SupplierOffer, error) {
	return c.next.OffersForUnit(ctx, catalogUnitID)
}

func (c *PerformanceCatalog) SupplierPerformance(ctx context.Context, supplierID uuid.UUID) (model.SupplierPerformance, error) {
	key := keyPrefix + supplierID.String()

	cached, err := c.store.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var perf model.SupplierPerformance
		if err := json.Unmarshal(cached, &perf); err == nil {
			return perf, nil
		}
		c.logger.WithField("key", key).Warn("dropping malformed cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.WithError(err).WithField("key", key).Warn("performance cache read failed")
	}

	perf, err := c.next.SupplierPerformance(ctx, supplierID)
	if err != nil {
		return model.SupplierPerformance{}, err
	}

	encoded, err := json.Marshal(perf)
	if err != nil {
		return perf, nil
	}
	if err := c.store.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("performance cache write failed")
	}
	return perf, nil
}
