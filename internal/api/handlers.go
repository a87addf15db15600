package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/newsletter/internal/newsletter"
	"github.com/ignite/newsletter/internal/pkg/httputil"
)

// Workflow is the slice of the subscription service the handlers drive.
type Workflow interface {
	Subscribe(ctx context.Context, name, email string) error
	Confirm(ctx context.Context, thumbprint string) error
	Unsubscribe(ctx context.Context, thumbprint string) error
	Broadcast(ctx context.Context, req newsletter.BroadcastRequest) (newsletter.BroadcastResult, error)
}

// Handlers holds the HTTP handlers for the newsletter API.
type Handlers struct {
	svc Workflow
}

// NewHandlers creates the handler set.
func NewHandlers(svc Workflow) *Handlers {
	return &Handlers{svc: svc}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

type subscribeRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Subscribe handles POST /api/newsletter/subscribe.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if msg := validateSubscribe(req); msg != "" {
		httputil.BadRequest(w, msg)
		return
	}

	err := h.svc.Subscribe(r.Context(), req.Name, req.Email)
	switch {
	case err == nil:
		httputil.OK(w, map[string]bool{"success": true})
	case errors.Is(err, newsletter.ErrAlreadySubscribed):
		httputil.BadRequest(w, "a subscription already exists for this address")
	default:
		h.deliveryOrInternal(w, err)
	}
}

func validateSubscribe(req subscribeRequest) string {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if len(name) < 3 || len(name) > 144 {
		return "name must be between 3 and 144 characters"
	}
	if len(email) < 6 || len(email) > 255 || !strings.Contains(email, "@") {
		return "a valid email address is required"
	}
	return ""
}

// Confirm handles GET /api/newsletter/confirm?thumbprint=.
func (h *Handlers) Confirm(w http.ResponseWriter, r *http.Request) {
	h.redeem(w, r, h.svc.Confirm)
}

// Unsubscribe handles GET /api/newsletter/unsubscribe?thumbprint=.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.redeem(w, r, h.svc.Unsubscribe)
}

// redeem runs a thumbprint-redeeming operation. An unknown token reports
// 404 whether it never existed or was already used; the two cases are
// indistinguishable on purpose.
func (h *Handlers) redeem(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	thumbprint := r.URL.Query().Get("thumbprint")
	if thumbprint == "" {
		httputil.BadRequest(w, "thumbprint is required")
		return
	}

	err := op(r.Context(), thumbprint)
	switch {
	case err == nil:
		httputil.OK(w, map[string]bool{"success": true})
	case errors.Is(err, newsletter.ErrUnknownToken):
		httputil.NotFound(w, "no pending action found for this link; it may have been used already")
	default:
		h.deliveryOrInternal(w, err)
	}
}

// Broadcast handles POST /api/newsletter/broadcast.
func (h *Handlers) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req newsletter.BroadcastRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		httputil.BadRequest(w, "text is required")
		return
	}

	result, err := h.svc.Broadcast(r.Context(), req)
	switch {
	case errors.Is(err, newsletter.ErrInvalidArgument):
		httputil.BadRequest(w, "subject is required")
	case err != nil && result.Sent+result.Failed > 0:
		// The run completed but some deliveries bounced.
		httputil.JSON(w, http.StatusBadGateway, map[string]any{
			"sent":   result.Sent,
			"failed": result.Failed,
			"error":  "some deliveries failed",
		})
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, result)
	}
}

func (h *Handlers) deliveryOrInternal(w http.ResponseWriter, err error) {
	var deliveryErr *newsletter.DeliveryError
	if errors.As(err, &deliveryErr) {
		httputil.Error(w, http.StatusBadGateway, "could not send email, try again later")
		return
	}
	httputil.InternalError(w, err)
}
