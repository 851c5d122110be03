package mailer

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	goRecover "github.com/MrEthical07/goRecover"
)

const charset = "UTF-8"

// SESAPI is the subset of the SES client used by SES.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESConfig holds the Amazon SES settings.
type SESConfig struct {
	Region           string
	From             string
	FromName         string
	ConfigurationSet string
}

// SES sends mail with the Amazon SES SendEmail API.
type SES struct {
	client SESAPI
	source string
	cfg    SESConfig
}

// NewSES wraps an existing client.
func NewSES(client SESAPI, cfg SESConfig) (*SES, error) {
	if client == nil {
		return nil, fmt.Errorf("SES client is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SES from address is required")
	}
	source := cfg.From
	if cfg.FromName != "" {
		source = (&mail.Address{Name: cfg.FromName, Address: cfg.From}).String()
	}
	return &SES{client: client, source: source, cfg: cfg}, nil
}

// NewSESFromEnvironment loads AWS credentials from the default chain.
func NewSESFromEnvironment(ctx context.Context, cfg SESConfig) (*SES, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return NewSES(ses.NewFromConfig(awsCfg), cfg)
}

// Send delivers msg.
func (s *SES) Send(ctx context.Context, msg goRecover.Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}

	body := &types.Body{
		Text: &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String(charset)},
	}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String(charset)}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.source),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
			CcAddresses: append([]string(nil), msg.Cc...),
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(charset)},
			Body:    body,
		},
	}
	if s.cfg.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(s.cfg.ConfigurationSet)
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("sending email via ses: %w", err)
	}
	return nil
}
