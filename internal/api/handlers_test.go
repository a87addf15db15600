package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ignite/newsletter/internal/newsletter"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	m.Run()
}

type stubWorkflow struct {
	subscribeErr   error
	confirmErr     error
	unsubscribeErr error

	broadcastResult newsletter.BroadcastResult
	broadcastErr    error

	gotName       string
	gotEmail      string
	gotThumbprint string
	gotBroadcast  newsletter.BroadcastRequest
}

func (s *stubWorkflow) Subscribe(_ context.Context, name, email string) error {
	s.gotName, s.gotEmail = name, email
	return s.subscribeErr
}

func (s *stubWorkflow) Confirm(_ context.Context, thumbprint string) error {
	s.gotThumbprint = thumbprint
	return s.confirmErr
}

func (s *stubWorkflow) Unsubscribe(_ context.Context, thumbprint string) error {
	s.gotThumbprint = thumbprint
	return s.unsubscribeErr
}

func (s *stubWorkflow) Broadcast(_ context.Context, req newsletter.BroadcastRequest) (newsletter.BroadcastResult, error) {
	s.gotBroadcast = req
	return s.broadcastResult, s.broadcastErr
}

func TestSubscribeHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
	}{
		{
			name:       "valid request",
			body:       `{"name":"Alexa","email":"alexa@example.com"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "name too short",
			body:       `{"name":"Al","email":"alexa@example.com"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "name too long",
			body:       `{"name":"` + strings.Repeat("a", 145) + `","email":"alexa@example.com"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "email missing at sign",
			body:       `{"name":"Alexa","email":"alexa.example.com"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "email too short",
			body:       `{"name":"Alexa","email":"a@b"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{"name":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "already subscribed",
			body:       `{"name":"Alexa","email":"alexa@example.com"}`,
			svcErr:     newsletter.ErrAlreadySubscribed,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "delivery failure",
			body:       `{"name":"Alexa","email":"alexa@example.com"}`,
			svcErr:     &newsletter.DeliveryError{Recipient: "alexa@example.com", Err: errors.New("refused")},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "storage failure",
			body:       `{"name":"Alexa","email":"alexa@example.com"}`,
			svcErr:     errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandlers(&stubWorkflow{subscribeErr: tt.svcErr})
			req := httptest.NewRequest(http.MethodPost, "/api/newsletter/subscribe", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.Subscribe(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestRedeemHandlers(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		svcErr     error
		wantStatus int
	}{
		{"confirm ok", "/confirm?thumbprint=tok", nil, http.StatusOK},
		{"missing thumbprint", "/confirm", nil, http.StatusBadRequest},
		{"unknown token", "/confirm?thumbprint=bad", newsletter.ErrUnknownToken, http.StatusNotFound},
		{"storage failure", "/confirm?thumbprint=tok", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubWorkflow{confirmErr: tt.svcErr, unsubscribeErr: tt.svcErr}
			h := NewHandlers(stub)

			for _, handler := range []http.HandlerFunc{h.Confirm, h.Unsubscribe} {
				rec := httptest.NewRecorder()
				handler(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
				if rec.Code != tt.wantStatus {
					t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
				}
			}
		})
	}
}

func TestBroadcastHandler(t *testing.T) {
	t.Run("passes the request through and reports the result", func(t *testing.T) {
		stub := &stubWorkflow{broadcastResult: newsletter.BroadcastResult{Sent: 3}}
		h := NewHandlers(stub)
		body := `{"subject":"News","text":"hi %name%","utm_source":"news"}`
		rec := httptest.NewRecorder()

		h.Broadcast(rec, httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader(body)))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if stub.gotBroadcast.UTMSource != "news" || stub.gotBroadcast.Subject != "News" {
			t.Errorf("workflow got %+v", stub.gotBroadcast)
		}
		var result newsletter.BroadcastResult
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil || result.Sent != 3 {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("missing text", func(t *testing.T) {
		h := NewHandlers(&stubWorkflow{})
		rec := httptest.NewRecorder()
		h.Broadcast(rec, httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader(`{"subject":"News"}`)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("missing subject", func(t *testing.T) {
		h := NewHandlers(&stubWorkflow{broadcastErr: newsletter.ErrInvalidArgument})
		rec := httptest.NewRecorder()
		h.Broadcast(rec, httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader(`{"text":"hi"}`)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("partial delivery failure", func(t *testing.T) {
		stub := &stubWorkflow{
			broadcastResult: newsletter.BroadcastResult{Sent: 2, Failed: 1},
			broadcastErr:    &newsletter.DeliveryError{Recipient: "b@example.com", Err: errors.New("bounced")},
		}
		h := NewHandlers(stub)
		rec := httptest.NewRecorder()
		h.Broadcast(rec, httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader(`{"subject":"s","text":"t"}`)))
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"sent":2`) {
			t.Errorf("body = %s, want counts", rec.Body.String())
		}
	})

	t.Run("listing failure", func(t *testing.T) {
		h := NewHandlers(&stubWorkflow{broadcastErr: errors.New("connection reset")})
		rec := httptest.NewRecorder()
		h.Broadcast(rec, httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader(`{"subject":"s","text":"t"}`)))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestBroadcastAuth(t *testing.T) {
	newRouter := func(token string) http.Handler {
		return SetupRoutes(NewHandlers(&stubWorkflow{}), nil, token)
	}
	body := func() io.Reader { return strings.NewReader(`{"subject":"s","text":"t"}`) }

	t.Run("valid token passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/newsletter/broadcast", body())
		req.Header.Set("Authorization", "Bearer operator-token")
		rec := httptest.NewRecorder()
		newRouter("operator-token").ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("wrong token is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/newsletter/broadcast", body())
		req.Header.Set("Authorization", "Bearer wrong")
		rec := httptest.NewRecorder()
		newRouter("operator-token").ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("missing token is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/newsletter/broadcast", body())
		rec := httptest.NewRecorder()
		newRouter("operator-token").ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("endpoint disabled without a configured token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/newsletter/broadcast", body())
		req.Header.Set("Authorization", "Bearer anything")
		rec := httptest.NewRecorder()
		newRouter("").ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestHealthRoute(t *testing.T) {
	router := SetupRoutes(NewHandlers(&stubWorkflow{}), nil, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
