// Package email renders the lifecycle email bodies and delivers composed
// messages through the configured transport.
package email

import (
	"fmt"

	"github.com/jaytaylor/html2text"
	"github.com/osteele/liquid"
)

const confirmationTemplate = `<html>
<body>
  <p>Hi {{ name }},</p>
  <p>Thanks for signing up to the newsletter. One more step: confirm your
  subscription by following the link below.</p>
  <p><a class="confirm" href="{{ confirm_link }}">Confirm my subscription</a></p>
  <p>If this wasn't you, ignore this email or
  <a class="unsubscribe" href="{{ unsubscribe_link }}">unsubscribe</a> at any time.</p>
</body>
</html>`

const feedbackTemplate = `<html>
<body>
  <p>Hi {{ name }},</p>
  <p>You have been unsubscribed from the newsletter.</p>
  <p>We'd love to know what we could have done better:
  <a class="survey" href="{{ survey_link }}">take our one-minute survey</a>.</p>
  <p>Changed your mind? You can sign up again on
  <a class="homepage" href="{{ homepage_link }}">our homepage</a>.</p>
</body>
</html>`

// TemplateRenderer renders the confirmation and feedback email bodies from
// Liquid templates, deriving the text part from the rendered HTML.
type TemplateRenderer struct {
	confirmation *liquid.Template
	feedback     *liquid.Template
}

// NewTemplateRenderer parses the built-in templates once.
func NewTemplateRenderer() (*TemplateRenderer, error) {
	engine := liquid.NewEngine()

	confirmation, err := engine.ParseString(confirmationTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing confirmation template: %w", err)
	}
	feedback, err := engine.ParseString(feedbackTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing feedback template: %w", err)
	}
	return &TemplateRenderer{confirmation: confirmation, feedback: feedback}, nil
}

// ConfirmationEmail renders the welcome email carrying both one-time links.
func (r *TemplateRenderer) ConfirmationEmail(name, confirmLink, unsubscribeLink string) (string, string, error) {
	return r.render(r.confirmation, liquid.Bindings{
		"name":             name,
		"confirm_link":     confirmLink,
		"unsubscribe_link": unsubscribeLink,
	})
}

// FeedbackEmail renders the post-unsubscribe survey email.
func (r *TemplateRenderer) FeedbackEmail(name, surveyLink, homepageLink string) (string, string, error) {
	return r.render(r.feedback, liquid.Bindings{
		"name":          name,
		"survey_link":   surveyLink,
		"homepage_link": homepageLink,
	})
}

func (r *TemplateRenderer) render(tpl *liquid.Template, bindings liquid.Bindings) (string, string, error) {
	html, err := tpl.RenderString(bindings)
	if err != nil {
		return "", "", fmt.Errorf("rendering template: %w", err)
	}
	text, textErr := html2text.FromString(html)
	if textErr != nil {
		return "", "", fmt.Errorf("deriving text body: %w", textErr)
	}
	return text, html, nil
}
