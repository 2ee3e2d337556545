package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"mailwave/internal/config"
	"mailwave/internal/constants"
	"mailwave/pkg/errors"
	"mailwave/pkg/metrics"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESSender struct {
	client           sesAPI
	configurationSet string
}

func NewSESSender(ctx context.Context, cfg config.SESConfig) (*SESSender, error) {
	if cfg.Region == "" {
		return nil, errors.ErrValidation.WithDetail("message", "ses region is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return newSESSender(sesv2.NewFromConfig(awsCfg), cfg.ConfigurationSet), nil
}

func newSESSender(client sesAPI, configurationSet string) *SESSender {
	return &SESSender{client: client, configurationSet: configurationSet}
}

func (s *SESSender) Provider() string { return constants.ProviderSES }

func (s *SESSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	start := time.Now()
	id, err := s.send(ctx, msg)
	metrics.ObserveTransportSend(s.Provider(), "single", status(err), time.Since(start))
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{ID: id}, nil
}

// SendBatch sends sequentially. A transport outage aborts the batch.
func (s *SESSender) SendBatch(ctx context.Context, msgs []Message) ([]BatchResult, error) {
	if err := checkBatch(msgs); err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]BatchResult, len(msgs))
	for i, m := range msgs {
		id, err := s.send(ctx, m)
		if err != nil && errors.IsTransportUnavailable(err) {
			metrics.ObserveTransportSend(s.Provider(), "batch", "error", time.Since(start))
			return nil, err
		}
		results[i] = BatchResult{ID: id, Err: err}
	}
	metrics.ObserveTransportSend(s.Provider(), "batch", "success", time.Since(start))
	return results, nil
}

func (s *SESSender) send(ctx context.Context, msg Message) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    &types.Body{},
			},
		},
	}
	if msg.HTML != "" {
		input.Content.Simple.Body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	tags := msg.Tags
	if msg.TrackingID != "" {
		tags = append(append([]Tag(nil), tags...), Tag{Name: "tracking_id", Value: msg.TrackingID})
	}
	for _, t := range tags {
		input.EmailTags = append(input.EmailTags, types.MessageTag{
			Name:  aws.String(t.Name),
			Value: aws.String(TagValue(t.Value)),
		})
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return "", classifySESError(err)
	}
	if out.MessageId == nil || *out.MessageId == "" {
		return "", recipientFailure(fmt.Errorf("ses returned no message id"))
	}
	return *out.MessageId, nil
}

func classifySESError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "LimitExceededException":
			return unavailable(err)
		}
		return recipientFailure(err)
	}
	return unavailable(err)
}
