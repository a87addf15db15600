package email

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ignite/newsletter/internal/newsletter"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	m.Run()
}

func TestAPIMailerSend(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mailer := NewAPIMailer(srv.URL, "secret-key", "Newsletter <news@example.com>", nil)
	err := mailer.Send(context.Background(),
		`"Alexa" <alexa@example.com>`, "Please confirm", "text body", "<p>html body</p>")
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if auth != "Bearer secret-key" {
		t.Errorf("Authorization = %q", auth)
	}
	want := map[string]string{
		"subject": "Please confirm",
		"from":    "Newsletter <news@example.com>",
		"to":      `"Alexa" <alexa@example.com>`,
		"text":    "text body",
		"html":    "<p>html body</p>",
	}
	for key, val := range want {
		if got[key] != val {
			t.Errorf("payload[%q] = %q, want %q", key, got[key], val)
		}
	}
}

func TestAPIMailerOmitsEmptyHTML(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	mailer := NewAPIMailer(srv.URL, "", "news@example.com", nil)
	if err := mailer.Send(context.Background(), "alexa@example.com", "s", "t", ""); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if _, ok := got["html"]; ok {
		t.Error("payload carries an html key for a text-only message")
	}
}

func TestAPIMailerReportsDeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "recipient rejected", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	mailer := NewAPIMailer(srv.URL, "", "news@example.com", nil)
	err := mailer.Send(context.Background(), "alexa@example.com", "s", "t", "")

	var delivery *newsletter.DeliveryError
	if !errors.As(err, &delivery) {
		t.Fatalf("Send() error = %T %v, want *newsletter.DeliveryError", err, err)
	}
	if delivery.Recipient != "alexa@example.com" {
		t.Errorf("Recipient = %q", delivery.Recipient)
	}
}

func TestAPIMailerRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mailer := NewAPIMailer(srv.URL, "", "news@example.com", nil)
	if err := mailer.Send(context.Background(), "alexa@example.com", "s", "t", ""); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if calls != 2 {
		t.Errorf("server saw %d requests, want 2 (one retry)", calls)
	}
}
