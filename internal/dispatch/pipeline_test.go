package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailwave/internal/audience"
	"mailwave/internal/audience/audiencetest"
	"mailwave/internal/config"
	"mailwave/internal/dispatch"
	"mailwave/internal/dispatch/dispatchtest"
	"mailwave/internal/logger"
	"mailwave/internal/personalize"
	"mailwave/internal/segment"
	"mailwave/internal/tracking"
	"mailwave/internal/tracking/trackingtest"
	"mailwave/internal/transport"
	"mailwave/internal/transport/transporttest"
	apperrors "mailwave/pkg/errors"
	"mailwave/pkg/models"
)

const trackingBase = "https://t.example.com"

var (
	everyone = &models.Segment{ID: "all", Name: "Everyone", Logic: models.LogicAnd}
	nobody   = &models.Segment{
		ID:    "nobody",
		Name:  "Nobody",
		Logic: models.LogicAnd,
		Rules: []models.Rule{{Field: "totalSpent", Operator: "gte", Value: models.Number(1e9)}},
	}
)

type fixture struct {
	campaigns *dispatchtest.CampaignRepository
	contacts  *audiencetest.ContactStore
	segments  *audiencetest.SegmentStore
	tracking  *trackingtest.Repository
	sender    *transporttest.Sender
	manager   *tracking.Manager
	renderer  *personalize.Renderer
	pipeline  *dispatch.Pipeline
	service   *dispatch.Service
}

func newFixture(campaigns []*models.Campaign, contacts []*models.Contact, opts ...dispatch.Option) *fixture {
	log := logger.NopLogger()
	f := &fixture{
		campaigns: dispatchtest.NewCampaignRepository(campaigns...),
		contacts:  audiencetest.NewContactStore(contacts...),
		segments:  audiencetest.NewSegmentStore(everyone, nobody),
		tracking:  trackingtest.NewRepository(),
		sender:    transporttest.NewSender(),
	}
	f.manager = tracking.NewManager(f.tracking, f.campaigns, f.contacts, 0, log)
	f.renderer = personalize.NewRenderer(personalize.Config{PixelBaseURL: trackingBase, ClickBaseURL: trackingBase}, nil, log)
	resolver := audience.NewResolver(f.contacts, f.segments, segment.NewCompiler(log), log)
	f.pipeline = dispatch.NewPipeline(f.campaigns, resolver, f.renderer, f.manager, f.sender, "shop@example.com", log, opts...)
	f.service = dispatch.NewService(f.campaigns, f.pipeline, f.manager)
	return f
}

func newCampaign(id string, status models.CampaignStatus) *models.Campaign {
	return &models.Campaign{
		ID:          id,
		Name:        "Spring sale",
		Type:        models.CampaignPromotional,
		Subject:     "Hi {{name}}",
		HTMLContent: `<html><body><p>Hello {{name}}</p><a href="https://shop.example.com/sale">Sale</a></body></html>`,
		SegmentID:   everyone.ID,
		Status:      status,
	}
}

func recipients(n int) []*models.Contact {
	out := make([]*models.Contact, n)
	for i := range out {
		id := fmt.Sprintf("c%03d", i)
		out[i] = models.NewContact(id, id+"@example.com")
	}
	return out
}

func TestDispatchEmptyAudienceCompletes(t *testing.T) {
	c := newCampaign("camp1", models.CampaignScheduled)
	c.SegmentID = nobody.ID
	f := newFixture([]*models.Campaign{c}, recipients(5))

	result, err := f.service.DispatchScheduled(context.Background(), "camp1")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, models.CampaignSent, f.campaigns.Status("camp1"))
	assert.Empty(t, f.sender.Sent)
}

func TestDispatchIsolatesRecipientFailures(t *testing.T) {
	f := newFixture([]*models.Campaign{newCampaign("camp1", models.CampaignDraft)}, recipients(100))
	f.sender.FailFor["c042@example.com"] = true

	result, err := f.service.SendNow(context.Background(), "camp1")
	require.NoError(t, err)

	assert.Equal(t, 100, result.Total)
	assert.Equal(t, 99, result.Sent)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "c042@example.com", result.Errors[0].Email)

	stored, err := f.campaigns.Get(context.Background(), "camp1")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignSent, stored.Status)
	assert.EqualValues(t, 99, stored.Stats.Sent)
	assert.EqualValues(t, 1, stored.Stats.Bounces)
	assert.NotNil(t, stored.SentAt)

	records := f.tracking.All()
	require.Len(t, records, 100)
	sent := 0
	for _, rec := range records {
		require.NotNil(t, rec.CampaignID)
		assert.Equal(t, "camp1", *rec.CampaignID)
		if rec.DeliveryStatus == models.DeliverySent {
			sent++
		}
	}
	assert.Equal(t, 99, sent)
}

func TestDispatchPersonalizesAndInstruments(t *testing.T) {
	ana := models.NewContact("ana", "ana@example.com")
	ana.Name = "Ana"
	f := newFixture([]*models.Campaign{newCampaign("camp1", models.CampaignDraft)}, []*models.Contact{ana})

	_, err := f.service.SendNow(context.Background(), "camp1")
	require.NoError(t, err)

	msg, ok := f.sender.SentTo("ana@example.com")
	require.True(t, ok)
	require.NotEmpty(t, msg.TrackingID)
	assert.Equal(t, "shop@example.com", msg.From)
	assert.Equal(t, "Hi Ana", msg.Subject)
	assert.Contains(t, msg.HTML, "Hello Ana")
	assert.Contains(t, msg.HTML, trackingBase+"/track/open/"+msg.TrackingID)
	assert.Contains(t, msg.HTML, trackingBase+"/track/click/"+msg.TrackingID+"?url=https%3A%2F%2Fshop.example.com%2Fsale")
	assert.Equal(t, 1, strings.Count(msg.HTML, "/track/open/"))
	assert.Contains(t, msg.Tags, transport.Tag{Name: "campaign_type", Value: "promotional"})
	assert.Contains(t, msg.Tags, transport.Tag{Name: "segment_id", Value: "all"})
}

func TestDispatchMissingSegmentFails(t *testing.T) {
	c := newCampaign("camp1", models.CampaignScheduled)
	c.SegmentID = "deleted"
	f := newFixture([]*models.Campaign{c}, recipients(3))

	result, err := f.service.DispatchScheduled(context.Background(), "camp1")
	require.Error(t, err)
	assert.True(t, apperrors.IsSegmentNotFound(err))
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, models.CampaignFailed, f.campaigns.Status("camp1"))
	assert.Empty(t, f.sender.Sent)
}

func TestDispatchStoreErrorRestoresStatus(t *testing.T) {
	f := newFixture([]*models.Campaign{newCampaign("camp1", models.CampaignScheduled)}, recipients(3))
	f.segments.Err = errors.New("mongo down")

	_, err := f.service.DispatchScheduled(context.Background(), "camp1")
	require.Error(t, err)
	assert.Equal(t, models.CampaignScheduled, f.campaigns.Status("camp1"))
	assert.Empty(t, f.sender.Sent)
}

func TestDispatchRejectsInvalidSourceState(t *testing.T) {
	tests := []struct {
		name     string
		status   models.CampaignStatus
		run      func(*dispatch.Service, context.Context, string) (*dispatch.Result, error)
		notFound bool
	}{
		{name: "resume draft", status: models.CampaignDraft, run: (*dispatch.Service).Resume},
		{name: "resume scheduled", status: models.CampaignScheduled, run: (*dispatch.Service).Resume},
		{name: "resume sent", status: models.CampaignSent, run: (*dispatch.Service).Resume},
		{name: "send now processing", status: models.CampaignProcessing, run: (*dispatch.Service).SendNow},
		{name: "send now sent", status: models.CampaignSent, run: (*dispatch.Service).SendNow},
		{name: "unknown campaign", run: (*dispatch.Service).SendNow, notFound: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var campaigns []*models.Campaign
			if !tt.notFound {
				campaigns = append(campaigns, newCampaign("camp1", tt.status))
			}
			f := newFixture(campaigns, recipients(2))

			_, err := tt.run(f.service, context.Background(), "camp1")
			require.Error(t, err)
			if tt.notFound {
				assert.True(t, apperrors.IsCampaignNotFound(err))
				return
			}
			assert.True(t, apperrors.IsInvalidStateTransition(err))
			assert.Equal(t, tt.status, f.campaigns.Status("camp1"))
			assert.Empty(t, f.sender.Sent)
			assert.Empty(t, f.tracking.All())
		})
	}
}

func TestResumePausedCampaign(t *testing.T) {
	f := newFixture([]*models.Campaign{newCampaign("camp1", models.CampaignPaused)}, recipients(3))

	result, err := f.service.Resume(context.Background(), "camp1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Sent)
	assert.Equal(t, models.CampaignSent, f.campaigns.Status("camp1"))
}

func TestDispatchCancelledPersistsPartialStats(t *testing.T) {
	f := newFixture([]*models.Campaign{newCampaign("camp1", models.CampaignDraft)}, recipients(10))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sends := 0
	f.sender.OnSend = func(transport.Message) {
		sends++
		if sends == 2 {
			cancel()
		}
	}

	result, err := f.service.SendNow(ctx, "camp1")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Sent)

	stored, _ := f.campaigns.Get(context.Background(), "camp1")
	assert.Equal(t, models.CampaignProcessing, stored.Status)
	assert.EqualValues(t, 2, stored.Stats.Sent)
}

func TestDispatchRunsToCompletionWhenPaused(t *testing.T) {
	f := newFixture([]*models.Campaign{newCampaign("camp1", models.CampaignDraft)}, recipients(5))
	var once sync.Once
	f.sender.OnSend = func(transport.Message) {
		once.Do(func() { f.campaigns.SetStatus("camp1", models.CampaignPaused) })
	}

	result, err := f.service.SendNow(context.Background(), "camp1")
	require.NoError(t, err)
	assert.Equal(t, 5, result.Sent)
	assert.Equal(t, models.CampaignSent, f.campaigns.Status("camp1"))
}

func TestDispatchGroup(t *testing.T) {
	variant := newCampaign("variant-a", models.CampaignDraft)
	variant.ABTestID = "ab1"
	variant.IsVariant = true
	f := newFixture([]*models.Campaign{variant}, nil)
	group := recipients(3)
	f.sender.FailFor[group[1].Email] = true

	result, err := f.pipeline.DispatchGroup(context.Background(), "variant-a", group)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)

	stored, _ := f.campaigns.Get(context.Background(), "variant-a")
	assert.Equal(t, models.CampaignSent, stored.Status)
	assert.EqualValues(t, 2, stored.Stats.Sent)
	assert.EqualValues(t, 1, stored.Stats.Bounces)

	_, err = f.pipeline.DispatchGroup(context.Background(), "variant-a", group)
	assert.True(t, apperrors.IsInvalidStateTransition(err))
}

type capturingAuditor struct {
	mu      sync.Mutex
	entries []dispatch.AuditEntry
	err     error
}

func (a *capturingAuditor) Log(_ context.Context, e dispatch.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return a.err
}

func (a *capturingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type capturingProducer struct {
	mu       sync.Mutex
	topics   []string
	messages []models.Envelope
	err      error
}

func (p *capturingProducer) Publish(_ context.Context, topic string, msg models.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, msg)
	return p.err
}

func (p *capturingProducer) Close() error { return nil }

func (p *capturingProducer) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.messages {
		out = append(out, m.Type)
	}
	return out
}

func TestDispatchAuditsAndPublishes(t *testing.T) {
	auditor := &capturingAuditor{}
	producer := &capturingProducer{}
	f := newFixture([]*models.Campaign{newCampaign("camp1", models.CampaignDraft)}, recipients(2),
		dispatch.WithAuditor(auditor),
		dispatch.WithEvents(dispatch.NewCampaignEvents(producer, "")),
	)

	_, err := f.service.SendNow(context.Background(), "camp1")
	require.NoError(t, err)

	assert.Equal(t, []string{"dispatch_started", "dispatch_finished"}, auditor.actions())
	assert.Equal(t, []string{models.EventCampaignDispatchStarted, models.EventCampaignSent}, producer.types())
	assert.Equal(t, "campaign_events", producer.topics[0])

	var ev models.CampaignEvent
	require.NoError(t, producer.messages[1].Decode(&ev))
	assert.Equal(t, "camp1", ev.CampaignID)
	assert.Equal(t, models.CampaignSent, ev.To)
	assert.Equal(t, 2, ev.Sent)
}

func TestAuditAndEventFailuresDoNotFailDispatch(t *testing.T) {
	auditor := &capturingAuditor{err: errors.New("postgres down")}
	producer := &capturingProducer{err: errors.New("kafka down")}
	f := newFixture([]*models.Campaign{newCampaign("camp1", models.CampaignDraft)}, recipients(2),
		dispatch.WithAuditor(auditor),
		dispatch.WithEvents(dispatch.NewCampaignEvents(producer, "")),
	)

	result, err := f.service.SendNow(context.Background(), "camp1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, models.CampaignSent, f.campaigns.Status("camp1"))
}

func TestSendBulk(t *testing.T) {
	f := newFixture(nil, nil)
	contacts := recipients(250)
	f.sender.FailFor[contacts[120].Email] = true
	bulk := dispatch.NewBulkSender(f.manager, f.renderer, f.sender, config.DispatchConfig{FromEmail: "shop@example.com"}, logger.NopLogger())

	result, err := bulk.SendBulk(context.Background(), contacts, "Hello {{name}}", "<html><body>Hi</body></html>")
	require.NoError(t, err)

	assert.Equal(t, 3, result.Batches)
	require.Len(t, f.sender.Batches, 3)
	assert.Len(t, f.sender.Batches[0], 100)
	assert.Len(t, f.sender.Batches[1], 100)
	assert.Len(t, f.sender.Batches[2], 50)
	assert.Equal(t, contacts[0].Email, f.sender.Batches[0][0].To)
	assert.Equal(t, contacts[249].Email, f.sender.Batches[2][49].To)

	assert.Equal(t, 250, result.Total)
	assert.Equal(t, 249, result.Sent)
	assert.Equal(t, 1, result.Failed)

	records := f.tracking.All()
	require.Len(t, records, 250)
	sent := 0
	for _, rec := range records {
		assert.Nil(t, rec.CampaignID)
		if rec.DeliveryStatus == models.DeliverySent {
			sent++
		}
	}
	assert.Equal(t, 249, sent)

	msg, ok := f.sender.SentTo(contacts[3].Email)
	require.True(t, ok)
	assert.Equal(t, []transport.Tag{{Name: "tracking_id", Value: msg.TrackingID}}, msg.Tags)
	assert.Contains(t, msg.HTML, "/track/open/"+msg.TrackingID)
}

func TestSendBulkBatchFailure(t *testing.T) {
	f := newFixture(nil, nil)
	f.sender.BatchErr = apperrors.ErrTransportUnavailable
	bulk := dispatch.NewBulkSender(f.manager, f.renderer, f.sender, config.DispatchConfig{BatchSize: 10}, logger.NopLogger())

	result, err := bulk.SendBulk(context.Background(), recipients(15), "s", "<body></body>")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Batches)
	assert.Equal(t, 15, result.Failed)
	assert.Equal(t, 0, result.Sent)
	for _, rec := range f.tracking.All() {
		assert.Equal(t, models.DeliveryPending, rec.DeliveryStatus)
	}
}

func TestSendBulkTrackingFailureSkipsRecipient(t *testing.T) {
	f := newFixture(nil, nil)
	f.tracking.Err = errors.New("mongo down")
	bulk := dispatch.NewBulkSender(f.manager, f.renderer, f.sender, config.DispatchConfig{}, logger.NopLogger())

	result, err := bulk.SendBulk(context.Background(), recipients(3), "s", "<body></body>")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Failed)
	assert.Empty(t, f.sender.Batches)
}

func TestRate(t *testing.T) {
	tests := []struct {
		part, total int64
		want        float64
	}{
		{0, 0, 0},
		{5, 0, 0},
		{50, 200, 25},
		{1, 3, 33.33},
		{2, 3, 66.67},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.part, tt.total), func(t *testing.T) {
			assert.Equal(t, tt.want, dispatch.Rate(tt.part, tt.total))
		})
	}
}

func TestRecipientErrorIsRecorded(t *testing.T) {
	f := newFixture([]*models.Campaign{newCampaign("camp1", models.CampaignDraft)}, recipients(1))
	f.sender.FailFor["c000@example.com"] = true

	result, err := f.service.SendNow(context.Background(), "camp1")
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, "RECIPIENT_DELIVERY_FAILURE")
}

func TestListStuck(t *testing.T) {
	old := newCampaign("old", models.CampaignProcessing)
	old.UpdatedAt = time.Now().Add(-2 * time.Hour)
	fresh := newCampaign("fresh", models.CampaignProcessing)
	fresh.UpdatedAt = time.Now()
	f := newFixture([]*models.Campaign{old, fresh, newCampaign("draft", models.CampaignDraft)}, nil)

	stuck, err := f.service.ListStuck(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "old", stuck[0].ID)
}
