package personalize

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/osteele/liquid"

	"mailwave/internal/logger"
	"mailwave/pkg/models"
)

const cardTemplate = `{% for p in products %}<div style="display: inline-block; width: 45%; margin: 2%; padding: 10px; border: 1px solid #e5e7eb; border-radius: 8px; vertical-align: top;">` +
	`<img src="{{ p.image | escape }}" alt="{{ p.name | escape }}" style="width: 100%; height: auto; border-radius: 4px;">` +
	`<h3 style="font-size: 16px; margin: 10px 0 5px;">{{ p.name | escape }}</h3>` +
	`<p style="color: #4F46E5; font-weight: bold; font-size: 18px;">${{ p.price | price }}</p>` +
	`<a href="{{ store_url }}/product/{{ p.id | path_escape }}" style="display: block; background: #4F46E5; color: white; text-align: center; padding: 8px; text-decoration: none; border-radius: 4px; font-size: 14px;">View Product</a>` +
	`</div>{% endfor %}`

const (
	footerClose  = "</footer>"
	widgetMarker = "<!-- PRODUCT_WIDGET_%s -->"
)

// Widget renders product blocks as a grid of cards.
type Widget struct {
	catalog  ProductCatalog
	storeURL string
	tpl      *liquid.Template
	logger   logger.Logger
}

func NewWidget(catalog ProductCatalog, storeURL string, log logger.Logger) (*Widget, error) {
	engine := liquid.NewEngine()
	engine.RegisterFilter("price", func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	})
	engine.RegisterFilter("path_escape", url.PathEscape)

	tpl, err := engine.ParseString(cardTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse product card template: %w", err)
	}

	return &Widget{
		catalog:  catalog,
		storeURL: strings.TrimRight(storeURL, "/"),
		tpl:      tpl,
		logger:   log,
	}, nil
}

// Render returns the card markup for the products, or "" for none.
func (w *Widget) Render(products []models.Product) (string, error) {
	if len(products) == 0 {
		return "", nil
	}
	items := make([]map[string]any, 0, len(products))
	for _, p := range products {
		items = append(items, map[string]any{
			"id":    p.ID,
			"name":  p.Name,
			"image": p.Image,
			"price": p.Price,
		})
	}
	out, err := w.tpl.RenderString(map[string]any{
		"products":  items,
		"store_url": w.storeURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render product cards: %w", err)
	}
	return out, nil
}

// InjectProductBlock places the rendered cards for block into html. When the
// catalog fails or selects nothing, html is returned unchanged.
func (w *Widget) InjectProductBlock(ctx context.Context, html string, block models.EmailBlock) string {
	cards := w.cardsFor(ctx, block)
	if cards == "" {
		return html
	}
	return insertCards(html, cards, block.ID)
}

func (w *Widget) cardsFor(ctx context.Context, block models.EmailBlock) string {
	if block.Type != models.BlockTypeProduct || block.Settings.Selection == "" {
		return ""
	}

	products, err := w.catalog.Select(ctx, block.Settings)
	if err != nil {
		w.logger.WarnwCtx(ctx, "Product block skipped",
			"block_id", block.ID,
			"selection", block.Settings.Selection,
			"error", err,
		)
		return ""
	}

	cards, err := w.Render(products)
	if err != nil {
		w.logger.WarnwCtx(ctx, "Product block skipped", "block_id", block.ID, "error", err)
		return ""
	}
	return cards
}

func insertCards(html, cards, blockID string) string {
	marker := fmt.Sprintf(widgetMarker, blockID)
	if strings.Contains(html, marker) {
		return strings.Replace(html, marker, cards, 1)
	}
	if strings.Contains(html, footerClose) {
		return strings.Replace(html, footerClose, cards+footerClose, 1)
	}
	return strings.Replace(html, bodyClose, cards+bodyClose, 1)
}
