package newsletter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/urlutil"
)

// ThumbprintPlaceholder is the literal token substituted into configured
// redemption URL templates.
const ThumbprintPlaceholder = "[THUMBPRINT]"

// Mailer hands a composed message to the outbound email transport.
// to is the full `"name" <email>` address. html may be empty.
type Mailer interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// Renderer produces the bodies of the lifecycle emails.
type Renderer interface {
	ConfirmationEmail(name, confirmLink, unsubscribeLink string) (text, html string, err error)
	FeedbackEmail(name, surveyLink, homepageLink string) (text, html string, err error)
}

// Config carries the URL templates and subjects the workflow composes
// emails from. Threaded in at construction; nothing is read from the
// environment inside the workflow.
type Config struct {
	ConfirmURLTemplate     string
	UnsubscribeURLTemplate string
	SurveyURL              string
	HomepageURL            string
	ConfirmSubject         string
	FeedbackSubject        string
}

// Service orchestrates the subscribe / confirm / unsubscribe / broadcast
// use cases. It owns no persistent state; all cross-request exclusion is
// delegated to the two storage uniqueness constraints.
type Service struct {
	links       LinkLedger
	subscribers SubscriptionLedger
	mailer      Mailer
	renderer    Renderer
	thumbprints *ThumbprintGenerator
	cfg         Config
}

// NewService wires the workflow's collaborators. A nil generator gets the
// default crypto/rand-backed one.
func NewService(links LinkLedger, subscribers SubscriptionLedger, mailer Mailer, renderer Renderer, thumbprints *ThumbprintGenerator, cfg Config) *Service {
	if thumbprints == nil {
		thumbprints = NewThumbprintGenerator()
	}
	return &Service{
		links:       links,
		subscribers: subscribers,
		mailer:      mailer,
		renderer:    renderer,
		thumbprints: thumbprints,
		cfg:         cfg,
	}
}

// Subscribe ensures pending confirmation and unsubscribe links exist for
// the address and sends the welcome email containing both, unless a link
// already existed, in which case no second email goes out. Safe to call
// repeatedly for the same address.
func (s *Service) Subscribe(ctx context.Context, name, email string) error {
	exists, err := s.subscribers.Exists(ctx, email)
	if err != nil {
		return fmt.Errorf("checking subscription: %w", err)
	}
	if exists {
		return fmt.Errorf("subscription for %s: %w", logger.CensorEmail(email), ErrAlreadySubscribed)
	}

	// Checked before the inserts: a pending link of either type means the
	// welcome email already went out on an earlier attempt.
	hadLink, err := s.links.FindAny(ctx, email)
	if err != nil {
		return fmt.Errorf("checking pending links: %w", err)
	}

	confirmThumb, err := s.ensureLink(ctx, name, email, LinkConfirmation)
	if err != nil {
		return err
	}
	unsubscribeThumb, err := s.ensureLink(ctx, name, email, LinkUnsubscribe)
	if err != nil {
		return err
	}

	if hadLink {
		logger.Info("subscribe repeated while confirmation pending", "email", email)
		return nil
	}

	confirmLink := strings.Replace(s.cfg.ConfirmURLTemplate, ThumbprintPlaceholder, confirmThumb, 1)
	unsubscribeLink := strings.Replace(s.cfg.UnsubscribeURLTemplate, ThumbprintPlaceholder, unsubscribeThumb, 1)

	text, html, err := s.renderer.ConfirmationEmail(name, confirmLink, unsubscribeLink)
	if err != nil {
		return fmt.Errorf("rendering confirmation email: %w", err)
	}
	return s.mailer.Send(ctx, FormatAddress(name, email), s.cfg.ConfirmSubject, text, html)
}

func (s *Service) ensureLink(ctx context.Context, name, email string, linkType LinkType) (string, error) {
	thumbprint, err := s.thumbprints.GenerateUnique(ctx, s.links.ThumbprintExists)
	if err != nil {
		return "", err
	}
	existing, inserted, err := s.links.TryInsert(ctx, &Link{
		Email:      email,
		Name:       name,
		Type:       linkType,
		Thumbprint: thumbprint,
	})
	if err != nil {
		return "", fmt.Errorf("inserting %s link: %w", linkType, err)
	}
	if inserted {
		logger.Info("pending link created", "email", email, "type", string(linkType))
	}
	return existing, nil
}

// Confirm redeems a confirmation thumbprint, creating the subscriber and
// consuming the link. A token that never existed, was already redeemed, or
// whose address is already subscribed all report ErrUnknownToken; stale
// links found in the last case are cleaned up before reporting.
func (s *Service) Confirm(ctx context.Context, thumbprint string) error {
	link, err := s.links.ByThumbprint(ctx, thumbprint, LinkConfirmation)
	if err != nil {
		return fmt.Errorf("resolving confirmation token: %w", err)
	}
	if link == nil {
		return ErrUnknownToken
	}

	exists, err := s.subscribers.Exists(ctx, link.Email)
	if err != nil {
		return fmt.Errorf("checking subscription: %w", err)
	}
	if exists {
		logger.Warn("confirmation link outlived its subscription, removing", "email", link.Email)
		if err := s.links.Consume(ctx, link.Email, LinkConfirmation); err != nil {
			return fmt.Errorf("removing stale link: %w", err)
		}
		return ErrUnknownToken
	}

	err = s.subscribers.Insert(ctx, &Subscriber{
		Email:        link.Email,
		Name:         link.Name,
		SubscribedAt: time.Now(),
	})
	if errors.Is(err, ErrDuplicateKey) {
		// A concurrent Confirm with the same token won the insert.
		return ErrUnknownToken
	}
	if err != nil {
		return fmt.Errorf("inserting subscription: %w", err)
	}

	logger.Info("subscription confirmed", "email", link.Email)
	// Not atomic with the insert above. A crash here leaves a redeemable
	// link whose re-redemption the existence check rejects and cleans up.
	if err := s.links.Consume(ctx, link.Email, LinkConfirmation); err != nil {
		return fmt.Errorf("consuming confirmation link: %w", err)
	}
	return nil
}

// Unsubscribe redeems an unsubscribe thumbprint, removing every link for
// the address and the subscriber itself, then sends the feedback email.
// Links go first so a partial failure leaves the account at worst still
// subscribed with dead tokens, never subscribed and untrackable.
func (s *Service) Unsubscribe(ctx context.Context, thumbprint string) error {
	link, err := s.links.ByThumbprint(ctx, thumbprint, LinkUnsubscribe)
	if err != nil {
		return fmt.Errorf("resolving unsubscribe token: %w", err)
	}
	if link == nil {
		return ErrUnknownToken
	}

	if err := s.links.RemoveAllForEmail(ctx, link.Email); err != nil {
		return fmt.Errorf("removing links: %w", err)
	}
	if err := s.subscribers.Remove(ctx, link.Email); err != nil {
		return fmt.Errorf("removing subscription: %w", err)
	}
	logger.Info("unsubscribed", "email", link.Email)

	text, html, err := s.renderer.FeedbackEmail(link.Name, s.cfg.SurveyURL, s.cfg.HomepageURL)
	if err != nil {
		return fmt.Errorf("rendering feedback email: %w", err)
	}
	return s.mailer.Send(ctx, FormatAddress(link.Name, link.Email), s.cfg.FeedbackSubject, text, html)
}

// BroadcastRequest is an operator request to message every confirmed
// subscriber.
type BroadcastRequest struct {
	Subject     string `json:"subject"`
	Text        string `json:"text"`
	HTML        string `json:"html,omitempty"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
}

func (r *BroadcastRequest) utmParams() map[string]string {
	params := make(map[string]string)
	if r.UTMSource != "" {
		params["utm_source"] = r.UTMSource
	}
	if r.UTMMedium != "" {
		params["utm_medium"] = r.UTMMedium
	}
	if r.UTMCampaign != "" {
		params["utm_campaign"] = r.UTMCampaign
	}
	return params
}

// BroadcastResult summarizes a broadcast run.
type BroadcastResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Broadcast sends the message to every confirmed subscriber, substituting
// the first %name% occurrence per recipient and, when any UTM parameter is
// supplied, rewriting anchor hrefs in the HTML with those parameters.
// Per-recipient delivery failures do not abort the run; they are collected
// and returned joined after every subscriber has been attempted.
func (s *Service) Broadcast(ctx context.Context, req BroadcastRequest) (BroadcastResult, error) {
	var result BroadcastResult
	if strings.TrimSpace(req.Subject) == "" {
		return result, fmt.Errorf("broadcast subject is required: %w", ErrInvalidArgument)
	}

	html := req.HTML
	if html != "" {
		if params := req.utmParams(); len(params) > 0 {
			html = urlutil.RewriteAnchors(html, params)
		}
	}

	subscribers, err := s.subscribers.ListAll(ctx)
	if err != nil {
		return result, fmt.Errorf("listing subscribers: %w", err)
	}

	var failures []error
	for _, sub := range subscribers {
		text := strings.Replace(req.Text, "%name%", sub.Name, 1)
		body := html
		if body != "" {
			body = strings.Replace(body, "%name%", sub.Name, 1)
		}
		if err := s.mailer.Send(ctx, FormatAddress(sub.Name, sub.Email), req.Subject, text, body); err != nil {
			logger.Error("broadcast delivery failed", "email", sub.Email, "err", err.Error())
			failures = append(failures, err)
			result.Failed++
			continue
		}
		result.Sent++
	}

	logger.Info("broadcast finished", "sent", fmt.Sprint(result.Sent), "failed", fmt.Sprint(result.Failed))
	return result, errors.Join(failures...)
}

// FormatAddress renders the `"name" <email>` form the transport expects.
func FormatAddress(name, email string) string {
	return fmt.Sprintf("%q <%s>", name, email)
}
