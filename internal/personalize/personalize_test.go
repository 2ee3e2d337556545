package personalize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailwave/internal/logger"
	"mailwave/pkg/circuitbreaker"
	"mailwave/pkg/models"
)

type fakeCatalog struct {
	products []models.Product
	err      error
	calls    int
}

func (f *fakeCatalog) Select(ctx context.Context, sel models.BlockSettings) ([]models.Product, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.products, nil
}

func testContact() *models.Contact {
	c := models.NewContact("c1", "ann@example.com")
	c.Name = "Ann"
	c.CustomAttributes.Set("plan", models.String("Gold"))
	c.CustomAttributes.Set("seats", models.Number(12))
	c.CustomAttributes.Set("favorite color", models.String("teal"))
	c.CustomAttributes.Set("año", models.Number(1990))
	return c
}

func TestPersonalize(t *testing.T) {
	anon := models.NewContact("c2", "bob@example.org")

	tests := []struct {
		name    string
		content string
		contact *models.Contact
		want    string
	}{
		{"name", "Hi {{name}}!", testContact(), "Hi Ann!"},
		{"name fallback", "Hi {{name}}!", anon, "Hi there!"},
		{"email and empty phone", "{{email}}/{{phone}}", anon, "bob@example.org/"},
		{"attributes", "{{plan}} x{{seats}}", testContact(), "Gold x12"},
		{"unknown kept", "{{coupon}} {{ name }}", testContact(), "{{coupon}} Ann"},
		{"repeated", "{{name}} {{name}}", testContact(), "Ann Ann"},
		{"attribute key with space", "Loves {{favorite color}}", testContact(), "Loves teal"},
		{"non-ascii attribute key", "Born {{ año }}", testContact(), "Born 1990"},
		{"empty token kept", "{{}} {{ }}", testContact(), "{{}} {{ }}"},
		{"no tokens", "plain text", testContact(), "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Personalize(tt.content, tt.contact))
		})
	}
}

func TestAddTrackingPixel(t *testing.T) {
	html, ok := AddTrackingPixel("<html><body>Hi</body></html>", "https://t.example.com/", "tid-1")
	require.True(t, ok)
	assert.Equal(t,
		`<html><body>Hi<img src="https://t.example.com/track/open/tid-1" width="1" height="1" style="display:none;" /></body></html>`,
		html)

	twice, ok := AddTrackingPixel("<body>a</body><body>b</body>", "https://t", "x")
	require.True(t, ok)
	assert.Equal(t, 1, strings.Count(twice, "/track/open/x"))
	assert.True(t, strings.HasPrefix(twice, `<body>a<img`))

	unchanged, ok := AddTrackingPixel("<p>no body</p>", "https://t", "x")
	assert.False(t, ok)
	assert.Equal(t, "<p>no body</p>", unchanged)
}

func TestAddClickTracking(t *testing.T) {
	in := `<a href="https://shop.example.com/a?b=1&c=2">x</a><a href="#top">top</a>`
	out := AddClickTracking(in, "https://t.example.com", "tid")

	assert.Contains(t, out, `href="https://t.example.com/track/click/tid?url=https%3A%2F%2Fshop.example.com%2Fa%3Fb%3D1%26c%3D2"`)
	assert.Contains(t, out, `href="#top"`)
}

func TestWidgetInjectProductBlock(t *testing.T) {
	catalog := &fakeCatalog{products: []models.Product{
		{ID: "p1", Name: "Mug", Price: 12.5, Image: "https://img/mug.png"},
		{ID: "p2", Name: "Tee & Co", Price: 20, Image: "https://img/tee.png"},
	}}
	w, err := NewWidget(catalog, "https://store.example.com/", logger.NopLogger())
	require.NoError(t, err)

	block := models.EmailBlock{
		ID:       "b1",
		Type:     models.BlockTypeProduct,
		Settings: models.BlockSettings{Selection: models.SelectBestSellers},
	}

	t.Run("marker", func(t *testing.T) {
		out := w.InjectProductBlock(context.Background(), "<body><!-- PRODUCT_WIDGET_b1 --><footer>f</footer></body>", block)
		assert.NotContains(t, out, "PRODUCT_WIDGET_b1")
		assert.Equal(t, 2, strings.Count(out, "View Product"))
		assert.Contains(t, out, `href="https://store.example.com/product/p1"`)
		assert.Contains(t, out, ">$12.5</p>")
		assert.Contains(t, out, ">$20</p>")
		assert.Contains(t, out, "Tee &amp; Co")
		assert.Less(t, strings.Index(out, "View Product"), strings.Index(out, "<footer>"))
	})

	t.Run("before footer", func(t *testing.T) {
		out := w.InjectProductBlock(context.Background(), "<body><footer>f</footer></body>", block)
		assert.Less(t, strings.Index(out, "View Product"), strings.Index(out, "</footer>"))
		assert.Greater(t, strings.Index(out, "View Product"), strings.Index(out, "<footer>"))
	})

	t.Run("before body", func(t *testing.T) {
		out := w.InjectProductBlock(context.Background(), "<body>x</body>", block)
		assert.True(t, strings.HasSuffix(out, "</div></body>"))
	})

	t.Run("catalog error leaves html", func(t *testing.T) {
		failing, err := NewWidget(&fakeCatalog{err: errors.New("down")}, "https://s", logger.NopLogger())
		require.NoError(t, err)
		assert.Equal(t, "<body>x</body>", failing.InjectProductBlock(context.Background(), "<body>x</body>", block))
	})

	t.Run("no products leaves html", func(t *testing.T) {
		empty, err := NewWidget(&fakeCatalog{}, "https://s", logger.NopLogger())
		require.NoError(t, err)
		assert.Equal(t, "<body>x</body>", empty.InjectProductBlock(context.Background(), "<body>x</body>", block))
	})
}

func TestSelectionFilterAndLimit(t *testing.T) {
	assert.Nil(t, selectionFilter(models.BlockSettings{Selection: models.SelectByCategory}))
	assert.Nil(t, selectionFilter(models.BlockSettings{Selection: models.SelectManual}))
	assert.Nil(t, selectionFilter(models.BlockSettings{Selection: "random"}))
	assert.NotNil(t, selectionFilter(models.BlockSettings{Selection: models.SelectByCategory, Category: "mugs"}))

	assert.EqualValues(t, 4, selectionLimit(models.BlockSettings{}))
	assert.EqualValues(t, 2, selectionLimit(models.BlockSettings{Limit: 2}))
	assert.EqualValues(t, 4, selectionLimit(models.BlockSettings{Limit: 10}))
}

func TestCachedCatalog(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	inner := &fakeCatalog{products: []models.Product{{ID: "p1", Name: "Mug", Price: 3}}}
	cached := NewCachedCatalog(inner, client, time.Minute)
	sel := models.BlockSettings{Selection: models.SelectManual, ProductIDs: []string{"p2", "p1"}}

	first, err := cached.Select(context.Background(), sel)
	require.NoError(t, err)
	second, err := cached.Select(context.Background(), sel)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)

	reordered := models.BlockSettings{Selection: models.SelectManual, ProductIDs: []string{"p1", "p2"}}
	_, err = cached.Select(context.Background(), reordered)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)

	mr.FastForward(2 * time.Minute)
	_, err = cached.Select(context.Background(), sel)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedCatalogFallsThroughWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	inner := &fakeCatalog{products: []models.Product{{ID: "p1"}}}
	products, err := NewCachedCatalog(inner, client, time.Minute).
		Select(context.Background(), models.BlockSettings{Selection: models.SelectBestSellers})
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestBreakerCatalogOpens(t *testing.T) {
	inner := &fakeCatalog{err: errors.New("mongo down")}
	cfg := circuitbreaker.DefaultConfig("catalog-test")
	cfg.Timeout = time.Hour
	c := NewBreakerCatalog(inner, cfg)

	for i := 0; i < 3; i++ {
		_, err := c.Select(context.Background(), models.BlockSettings{Selection: models.SelectBestSellers})
		require.Error(t, err)
	}
	assert.Equal(t, "open", c.State())

	_, err := c.Select(context.Background(), models.BlockSettings{Selection: models.SelectBestSellers})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, 3, inner.calls)
}

func TestRendererPipeline(t *testing.T) {
	catalog := &fakeCatalog{products: []models.Product{{ID: "p1", Name: "Mug", Price: 5}}}
	w, err := NewWidget(catalog, "https://store", logger.NopLogger())
	require.NoError(t, err)

	r := NewRenderer(Config{PixelBaseURL: "https://px", ClickBaseURL: "https://ck"}, w, logger.NopLogger())
	campaign := &models.Campaign{
		Subject:     "Hello {{name}}",
		HTMLContent: `<body><p>{{plan}}</p><a href="https://x.test">x</a></body>`,
		EmailBlocks: []models.EmailBlock{
			{ID: "b1", Type: models.BlockTypeProduct, Settings: models.BlockSettings{Selection: models.SelectBestSellers}},
			{ID: "t1", Type: "text", Content: "ignored"},
		},
	}

	prepared := r.Prepare(context.Background(), campaign)
	content := r.Personalize(prepared, testContact())
	content = r.Instrument(context.Background(), content, "tid")

	assert.Equal(t, "Hello Ann", content.Subject)
	assert.Contains(t, content.HTML, "<p>Gold</p>")
	assert.Contains(t, content.HTML, "https://px/track/open/tid")
	assert.Contains(t, content.HTML, `href="https://ck/track/click/tid?url=https%3A%2F%2Fx.test"`)
	assert.Contains(t, content.HTML, "https%3A%2F%2Fstore%2Fproduct%2Fp1")

	r.Personalize(prepared, testContact())
	assert.Equal(t, 1, catalog.calls)
}

func TestRendererWithoutWidget(t *testing.T) {
	r := NewRenderer(Config{PixelBaseURL: "https://px", ClickBaseURL: "https://ck"}, nil, logger.NopLogger())
	content := r.Instrument(context.Background(), r.Personalize(r.PrepareContent("S", "<p>{{name}}</p>"), testContact()), "tid")
	assert.Equal(t, "<p>Ann</p>", content.HTML)
}
