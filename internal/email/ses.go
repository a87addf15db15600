package email

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/newsletter"
)

// SESMailer delivers messages through AWS SES v2.
type SESMailer struct {
	client *sesv2.Client
	from   string
}

// NewSESMailer creates the SES transport with static credentials.
func NewSESMailer(ctx context.Context, cfg appconfig.EmailConfig) (*SESMailer, error) {
	creds := credentials.NewStaticCredentialsProvider(cfg.SESAccessKey, cfg.SESSecretKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.SESRegion),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SESMailer{
		client: sesv2.NewFromConfig(awsCfg),
		from:   cfg.From,
	}, nil
}

// Send delivers through the SES SendEmail API. Failures come back as
// *newsletter.DeliveryError.
func (m *SESMailer) Send(ctx context.Context, to, subject, text, html string) error {
	body := &types.Body{
		Text: &types.Content{Data: aws.String(text)},
	}
	if html != "" {
		body.Html = &types.Content{Data: aws.String(html)}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body:    body,
			},
		},
	}

	if _, err := m.client.SendEmail(ctx, input); err != nil {
		return &newsletter.DeliveryError{Recipient: to, Err: err}
	}
	return nil
}
