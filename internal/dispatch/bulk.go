package dispatch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"mailwave/internal/config"
	"mailwave/internal/constants"
	"mailwave/internal/logger"
	"mailwave/internal/personalize"
	"mailwave/internal/transport"
	"mailwave/pkg/errors"
	"mailwave/pkg/metrics"
	"mailwave/pkg/models"
	"mailwave/pkg/tracing"
)

// BulkSender sends ad-hoc content in fixed-size batches. Recipients of a
// batch are prepared concurrently; batches go out one after another.
type BulkSender struct {
	tracker     Tracker
	renderer    *personalize.Renderer
	sender      transport.Sender
	from        string
	batchSize   int
	concurrency int
	logger      logger.Logger
}

type BulkResult struct {
	Result
	Batches int `json:"batches"`
}

func NewBulkSender(tracker Tracker, renderer *personalize.Renderer, sender transport.Sender, cfg config.DispatchConfig, log logger.Logger) *BulkSender {
	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > constants.MaxBatchSize {
		batchSize = constants.MaxBatchSize
	}
	concurrency := cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = constants.DefaultBatchParallel
	}
	return &BulkSender{
		tracker:     tracker,
		renderer:    renderer,
		sender:      sender,
		from:        cfg.FromEmail,
		batchSize:   batchSize,
		concurrency: concurrency,
		logger:      log,
	}
}

func (b *BulkSender) SendBulk(ctx context.Context, recipients []*models.Contact, subject, html string) (*BulkResult, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "dispatch", "dispatch.bulk")
	defer span.End()

	prepared := b.renderer.PrepareContent(subject, html)
	result := &BulkResult{Result: *newResult()}

	for lo := 0; lo < len(recipients); lo += b.batchSize {
		if err := ctx.Err(); err != nil {
			metrics.ObserveDispatch(kindBulk, "interrupted", time.Since(start))
			return result, err
		}
		hi := lo + b.batchSize
		if hi > len(recipients) {
			hi = len(recipients)
		}

		for _, o := range b.sendBatch(ctx, prepared, recipients[lo:hi]) {
			outcome := "sent"
			if o.Err != nil {
				outcome = "failed"
			}
			metrics.IncRecipient(kindBulk, outcome)
			result.Add(o)
		}
		result.Batches++
	}

	b.logger.InfowCtx(ctx, "Bulk send finished",
		"total", result.Total,
		"sent", result.Sent,
		"failed", result.Failed,
		"batches", result.Batches,
	)
	metrics.ObserveDispatch(kindBulk, "sent", time.Since(start))
	return result, nil
}

func (b *BulkSender) sendBatch(ctx context.Context, prepared *personalize.Prepared, batch []*models.Contact) []Outcome {
	outcomes := make([]Outcome, len(batch))
	msgs := make([]transport.Message, len(batch))

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, c := range batch {
		g.Go(func() error {
			outcomes[i] = Outcome{Email: c.Email}
			outcomes[i].Err = errors.Safely(func() error {
				id, err := b.tracker.Create(ctx, "", c.ID, c.Email)
				if err != nil {
					return fmt.Errorf("create tracking record: %w", err)
				}
				outcomes[i].TrackingID = id
				content := b.renderer.Instrument(ctx, b.renderer.Personalize(prepared, c), id)
				msgs[i] = transport.Message{
					From:       b.from,
					To:         c.Email,
					Subject:    content.Subject,
					HTML:       content.HTML,
					Text:       content.Text,
					TrackingID: id,
					Tags:       []transport.Tag{{Name: "tracking_id", Value: id}},
				}
				return nil
			})
			return nil
		})
	}
	_ = g.Wait()

	var (
		ready []transport.Message
		index []int
	)
	for i := range outcomes {
		if outcomes[i].Err == nil {
			ready = append(ready, msgs[i])
			index = append(index, i)
		}
	}
	if len(ready) == 0 {
		return outcomes
	}

	results, err := b.sender.SendBatch(ctx, ready)
	if err != nil {
		b.logger.WarnwCtx(ctx, "Batch send failed",
			"error", err,
			"size", len(ready),
		)
		for _, i := range index {
			outcomes[i].Err = err
		}
		return outcomes
	}

	for j, i := range index {
		if j >= len(results) {
			outcomes[i].Err = fmt.Errorf("transport returned no result for %s", outcomes[i].Email)
			continue
		}
		if results[j].Err != nil {
			outcomes[i].Err = results[j].Err
			continue
		}
		if err := b.tracker.RecordSent(ctx, outcomes[i].TrackingID); err != nil {
			b.logger.WarnwCtx(ctx, "Failed to mark tracking record sent",
				"error", err,
				"tracking_id", outcomes[i].TrackingID,
			)
		}
	}
	return outcomes
}
