// Package mailer sends outbound reply emails via SES.
package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"
)

// Config holds SES client configuration.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	EndpointURL     string
	FromAddress     string
	FromName        string
}

// SES sends email through the SES v2 API.
type SES struct {
	client *sesv2.Client
	cfg    Config
	logger *zap.Logger
}

// NewSES creates an SES mailer.
func NewSES(ctx context.Context, cfg Config, logger *zap.Logger) (*SES, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})
	return &SES{client: client, cfg: cfg, logger: logger}, nil
}

// Send sends a plain-text email to one recipient. inReplyTo, when set,
// threads the reply under the original message.
func (s *SES) Send(ctx context.Context, to, subject, body, inReplyTo string) error {
	from := s.cfg.FromAddress
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromAddress)
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
				Headers: messageHeaders(inReplyTo),
			},
		},
	}
	if _, err := s.client.SendEmail(ctx, input); err != nil {
		s.logger.Error("send email failed", zap.Error(err), zap.String("to", to))
		return fmt.Errorf("send email: %w", err)
	}
	s.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

func messageHeaders(inReplyTo string) []types.MessageHeader {
	if inReplyTo == "" {
		return nil
	}
	return []types.MessageHeader{
		{Name: aws.String("In-Reply-To"), Value: aws.String(inReplyTo)},
		{Name: aws.String("References"), Value: aws.String(inReplyTo)},
	}
}
