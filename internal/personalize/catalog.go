package personalize

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailwave/internal/constants"
	"mailwave/pkg/circuitbreaker"
	"mailwave/pkg/metrics"
	"mailwave/pkg/models"
)

// ProductCatalog selects the products rendered by a product block.
type ProductCatalog interface {
	Select(ctx context.Context, sel models.BlockSettings) ([]models.Product, error)
}

// selectionLimit caps a selection at MaxProductsPerBlock.
func selectionLimit(sel models.BlockSettings) int64 {
	limit := sel.Limit
	if limit <= 0 {
		limit = constants.DefaultProductLimit
	}
	if limit > constants.MaxProductsPerBlock {
		limit = constants.MaxProductsPerBlock
	}
	return int64(limit)
}

// selectionFilter returns nil when the settings cannot select anything.
func selectionFilter(sel models.BlockSettings) bson.M {
	switch sel.Selection {
	case models.SelectByCategory:
		if sel.Category == "" {
			return nil
		}
		return bson.M{"category": sel.Category}
	case models.SelectBestSellers:
		return bson.M{"isBestSeller": true}
	case models.SelectManual:
		if len(sel.ProductIDs) == 0 {
			return nil
		}
		return bson.M{"_id": bson.M{"$in": sel.ProductIDs}}
	}
	return nil
}

type MongoCatalog struct {
	collection *mongo.Collection
}

func NewMongoCatalog(db *mongo.Database) *MongoCatalog {
	return &MongoCatalog{collection: db.Collection(constants.CollectionProducts)}
}

func (c *MongoCatalog) Select(ctx context.Context, sel models.BlockSettings) ([]models.Product, error) {
	filter := selectionFilter(sel)
	if filter == nil {
		return nil, nil
	}

	opts := options.Find().SetLimit(selectionLimit(sel))
	cursor, err := c.collection.Find(ctx, filter, opts)
	if err != nil {
		metrics.IncProductLookup("mongo", "error")
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []models.Product
	if err := cursor.All(ctx, &products); err != nil {
		metrics.IncProductLookup("mongo", "error")
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	metrics.IncProductLookup("mongo", "success")
	return products, nil
}

// CachedCatalog is a read-through Redis cache in front of another catalog.
// Cache failures fall through to the wrapped catalog.
type CachedCatalog struct {
	next   ProductCatalog
	client *redis.Client
	ttl    time.Duration
}

func NewCachedCatalog(next ProductCatalog, client *redis.Client, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = constants.DefaultProductCacheTTL
	}
	return &CachedCatalog{next: next, client: client, ttl: ttl}
}

func (c *CachedCatalog) Select(ctx context.Context, sel models.BlockSettings) ([]models.Product, error) {
	key := cacheKey(sel)

	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var products []models.Product
		if jsonErr := json.Unmarshal([]byte(val), &products); jsonErr == nil {
			metrics.IncProductLookup("cache", "hit")
			return products, nil
		}
	}
	if err != nil && err != redis.Nil {
		metrics.IncProductLookup("cache", "error")
	} else {
		metrics.IncProductLookup("cache", "miss")
	}

	products, err := c.next.Select(ctx, sel)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(products); err == nil {
		c.client.Set(ctx, key, data, c.ttl)
	}
	return products, nil
}

func cacheKey(sel models.BlockSettings) string {
	ids := append([]string(nil), sel.ProductIDs...)
	sort.Strings(ids)
	return fmt.Sprintf("%s%s:%s:%s:%d",
		constants.CacheKeyPrefixProducts, sel.Selection, sel.Category, strings.Join(ids, ","), selectionLimit(sel))
}

// BreakerCatalog stops calling the wrapped catalog while its breaker is open.
type BreakerCatalog struct {
	next ProductCatalog
	cb   *circuitbreaker.Wrapper
}

func NewBreakerCatalog(next ProductCatalog, cfg circuitbreaker.Config) *BreakerCatalog {
	return &BreakerCatalog{next: next, cb: circuitbreaker.NewWrapper(cfg)}
}

func (c *BreakerCatalog) Select(ctx context.Context, sel models.BlockSettings) ([]models.Product, error) {
	products, err := circuitbreaker.Do(ctx, c.cb, func() ([]models.Product, error) {
		return c.next.Select(ctx, sel)
	})
	if err != nil {
		if circuitbreaker.IsOpenError(err) {
			return nil, fmt.Errorf("product catalog circuit breaker is open: %w", err)
		}
		return nil, err
	}
	return products, nil
}

func (c *BreakerCatalog) State() string {
	return c.cb.State().String()
}
