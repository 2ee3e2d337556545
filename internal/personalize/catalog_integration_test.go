//go:build integration

package personalize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"mailwave/internal/constants"
	"mailwave/internal/testinfra"
	"mailwave/pkg/models"
)

func TestCatalogChainAgainstContainers(t *testing.T) {
	db := testinfra.Mongo(t)
	rdb := testinfra.Redis(t)
	ctx := context.Background()

	products := []interface{}{
		models.Product{ID: "p1", Name: "Boots", Price: 120, Category: "shoes", IsBestSeller: true},
		models.Product{ID: "p2", Name: "Sandals", Price: 40, Category: "shoes"},
		models.Product{ID: "p3", Name: "Scarf", Price: 25, Category: "accessories", IsBestSeller: true},
		models.Product{ID: "p4", Name: "Hat", Price: 30, Category: "accessories"},
		models.Product{ID: "p5", Name: "Belt", Price: 35, Category: "accessories"},
		models.Product{ID: "p6", Name: "Gloves", Price: 20, Category: "accessories"},
		models.Product{ID: "p7", Name: "Socks", Price: 10, Category: "accessories"},
	}
	_, err := db.Collection(constants.CollectionProducts).InsertMany(ctx, products)
	require.NoError(t, err)

	catalog := NewCachedCatalog(NewMongoCatalog(db), rdb, 0)

	shoes, err := catalog.Select(ctx, models.BlockSettings{Selection: models.SelectByCategory, Category: "shoes"})
	require.NoError(t, err)
	assert.Len(t, shoes, 2)

	capped, err := catalog.Select(ctx, models.BlockSettings{Selection: models.SelectByCategory, Category: "accessories", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, capped, constants.MaxProductsPerBlock)

	best, err := catalog.Select(ctx, models.BlockSettings{Selection: models.SelectBestSellers})
	require.NoError(t, err)
	assert.Len(t, best, 2)

	manual := models.BlockSettings{Selection: models.SelectManual, ProductIDs: []string{"p4", "p2"}}
	picked, err := catalog.Select(ctx, manual)
	require.NoError(t, err)
	assert.Len(t, picked, 2)

	ttl, err := rdb.TTL(ctx, cacheKey(manual)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl.Seconds(), 0.0)

	_, err = db.Collection(constants.CollectionProducts).DeleteMany(ctx, bson.M{})
	require.NoError(t, err)

	cached, err := catalog.Select(ctx, manual)
	require.NoError(t, err)
	assert.ElementsMatch(t, picked, cached)

	empty, err := catalog.Select(ctx, models.BlockSettings{Selection: models.SelectByCategory})
	require.NoError(t, err)
	assert.Empty(t, empty)
}
