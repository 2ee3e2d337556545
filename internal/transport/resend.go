package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"

	"mailwave/internal/config"
	"mailwave/internal/constants"
	"mailwave/pkg/errors"
	"mailwave/pkg/metrics"
	"mailwave/pkg/retry"
)

// ResendSender delivers through the Resend API. Each message gets exactly
// one attempt.
type ResendSender struct {
	client *resend.Client
}

func NewResendSender(cfg config.ResendConfig) (*ResendSender, error) {
	if cfg.APIKey == "" {
		return nil, errors.ErrValidation.WithDetail("message", "resend api key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: &exchangeTransport{next: http.DefaultTransport},
	}
	client := resend.NewCustomClient(httpClient, cfg.APIKey)
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, errors.ErrValidation.WithCause(err).WithDetail("message", "invalid resend base url")
		}
		client.BaseURL = base
	}
	return &ResendSender{client: client}, nil
}

func (s *ResendSender) Provider() string { return constants.ProviderResend }

func (s *ResendSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	start := time.Now()
	ex := &exchange{idempotencyKey: msg.TrackingID}
	sent, err := s.client.Emails.SendWithContext(withExchange(ctx, ex), toResend(msg))
	err = classifyResend(ex, err)
	if err == nil && (sent == nil || sent.Id == "") {
		err = recipientFailure(fmt.Errorf("resend returned no message id"))
	}
	metrics.ObserveTransportSend(s.Provider(), "single", status(err), time.Since(start))
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{ID: sent.Id}, nil
}

func (s *ResendSender) SendBatch(ctx context.Context, msgs []Message) ([]BatchResult, error) {
	if err := checkBatch(msgs); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	payload := make([]*resend.SendEmailRequest, len(msgs))
	for i, m := range msgs {
		payload[i] = toResend(m)
	}

	start := time.Now()
	ex := &exchange{}
	resp, err := s.client.Batch.SendWithContext(withExchange(ctx, ex), payload)
	err = classifyResend(ex, err)
	metrics.ObserveTransportSend(s.Provider(), "batch", status(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	results := make([]BatchResult, len(msgs))
	for i := range results {
		if resp != nil && i < len(resp.Data) && resp.Data[i].Id != "" {
			results[i].ID = resp.Data[i].Id
			continue
		}
		results[i].Err = recipientFailure(fmt.Errorf("resend returned no message id for index %d", i))
	}
	return results, nil
}

func toResend(m Message) *resend.SendEmailRequest {
	req := &resend.SendEmailRequest{
		From:    m.From,
		To:      []string{m.To},
		Subject: m.Subject,
		Html:    m.HTML,
		Text:    m.Text,
	}
	for _, t := range m.Tags {
		req.Tags = append(req.Tags, resend.Tag{Name: t.Name, Value: TagValue(t.Value)})
	}
	if m.TrackingID != "" {
		req.Headers = map[string]string{"X-Entity-Ref-ID": m.TrackingID}
	}
	return req
}

// classifyResend maps the outcome of one API call onto the transport error
// taxonomy: no response, 429 and 5xx make the provider unavailable, any other
// failure rejects the recipient.
func classifyResend(ex *exchange, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case ex.status == 0:
		return unavailable(err)
	case ex.status == http.StatusTooManyRequests:
		return retry.After(
			unavailable(fmt.Errorf("resend returned status %d: %w", ex.status, err)),
			retryAfter(ex.retryAfter),
		)
	case ex.status >= 500:
		return unavailable(fmt.Errorf("resend returned status %d: %w", ex.status, err))
	default:
		return recipientFailure(fmt.Errorf("resend returned status %d: %w", ex.status, err))
	}
}

// exchange captures the HTTP status the SDK saw, which its error values do
// not expose.
type exchange struct {
	idempotencyKey string
	status         int
	retryAfter     string
}

type exchangeKey struct{}

func withExchange(ctx context.Context, ex *exchange) context.Context {
	return context.WithValue(ctx, exchangeKey{}, ex)
}

type exchangeTransport struct {
	next http.RoundTripper
}

func (t *exchangeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ex, _ := req.Context().Value(exchangeKey{}).(*exchange)
	if ex == nil {
		return t.next.RoundTrip(req)
	}
	if ex.idempotencyKey != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Idempotency-Key", ex.idempotencyKey)
	}
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	ex.status = resp.StatusCode
	ex.retryAfter = resp.Header.Get("Retry-After")
	return resp, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
