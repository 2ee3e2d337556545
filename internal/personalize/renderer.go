package personalize

import (
	"context"

	"mailwave/internal/logger"
	"mailwave/pkg/metrics"
	"mailwave/pkg/models"
)

type Config struct {
	PixelBaseURL string
	ClickBaseURL string
}

// Content is a message body before or after per-recipient rendering.
type Content struct {
	Subject string
	HTML    string
	Text    string
}

// Prepared holds the campaign content with product cards rendered once for
// the whole run.
type Prepared struct {
	Content
	blocks []preparedBlock
}

type preparedBlock struct {
	id    string
	cards string
}

type Renderer struct {
	cfg    Config
	widget *Widget
	logger logger.Logger
}

// NewRenderer returns a renderer. widget may be nil when no product catalog
// is configured.
func NewRenderer(cfg Config, widget *Widget, log logger.Logger) *Renderer {
	return &Renderer{cfg: cfg, widget: widget, logger: log}
}

// Prepare loads the product cards for every product block of the campaign.
func (r *Renderer) Prepare(ctx context.Context, campaign *models.Campaign) *Prepared {
	p := &Prepared{Content: Content{
		Subject: campaign.Subject,
		HTML:    campaign.HTMLContent,
		Text:    campaign.PlainTextContent,
	}}
	return r.prepareBlocks(ctx, p, campaign.ProductBlocks())
}

// PrepareContent wraps ad-hoc content that has no product blocks.
func (r *Renderer) PrepareContent(subject, html string) *Prepared {
	return &Prepared{Content: Content{Subject: subject, HTML: html}}
}

func (r *Renderer) prepareBlocks(ctx context.Context, p *Prepared, blocks []models.EmailBlock) *Prepared {
	if r.widget == nil {
		return p
	}
	for _, b := range blocks {
		if cards := r.widget.cardsFor(ctx, b); cards != "" {
			p.blocks = append(p.blocks, preparedBlock{id: b.ID, cards: cards})
		}
	}
	return p
}

// Personalize applies the recipient's tokens and the prepared product cards.
func (r *Renderer) Personalize(p *Prepared, c *models.Contact) Content {
	out := Content{
		Subject: Personalize(p.Subject, c),
		HTML:    Personalize(p.HTML, c),
		Text:    Personalize(p.Text, c),
	}
	for _, b := range p.blocks {
		out.HTML = insertCards(out.HTML, b.cards, b.id)
	}
	return out
}

// Instrument adds the open pixel and click tracking for trackingID.
func (r *Renderer) Instrument(ctx context.Context, content Content, trackingID string) Content {
	html, ok := AddTrackingPixel(content.HTML, r.cfg.PixelBaseURL, trackingID)
	if !ok {
		metrics.PixelMissingTotal.Inc()
		r.logger.WarnwCtx(ctx, "No closing body tag, open pixel not added", "tracking_id", trackingID)
	}
	content.HTML = AddClickTracking(html, r.cfg.ClickBaseURL, trackingID)
	return content
}
