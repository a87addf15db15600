package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/newsletter/internal/newsletter"
	"github.com/ignite/newsletter/internal/pkg/httpretry"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// APIMailer delivers messages by POSTing JSON to an email API endpoint.
type APIMailer struct {
	apiURL string
	apiKey string
	from   string
	client httpretry.Doer
}

// NewAPIMailer creates the API transport. A nil client gets the default
// retrying HTTP client.
func NewAPIMailer(apiURL, apiKey, from string, client httpretry.Doer) *APIMailer {
	if client == nil {
		client = httpretry.New(nil, 3)
	}
	return &APIMailer{apiURL: apiURL, apiKey: apiKey, from: from, client: client}
}

// Send posts the message. Transport errors and non-2xx responses come back
// as *newsletter.DeliveryError.
func (m *APIMailer) Send(ctx context.Context, to, subject, text, html string) error {
	payload := map[string]string{
		"subject": subject,
		"from":    m.from,
		"to":      to,
		"text":    text,
	}
	if html != "" {
		payload["html"] = html
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &newsletter.DeliveryError{Recipient: to, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return &newsletter.DeliveryError{Recipient: to, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	logger.Info("sending email", "email", to, "subject", subject)
	resp, err := m.client.Do(req)
	if err != nil {
		return &newsletter.DeliveryError{Recipient: to, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &newsletter.DeliveryError{
			Recipient: to,
			Err:       fmt.Errorf("email API returned %d: %s", resp.StatusCode, snippet),
		}
	}
	return nil
}
