package mailing

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/phishly/phishly/internal/domain"
)

// Renderer produces the final personalized email for one campaign target:
// variables substituted, tracking link provided to the template, and the
// open pixel appended to the body.
type Renderer struct {
	tpls   *TemplateService
	domain string // public hostname tracking URLs resolve to
}

// NewRenderer creates a renderer building tracking URLs against the given
// public domain.
func NewRenderer(tpls *TemplateService, trackingDomain string) *Renderer {
	return &Renderer{tpls: tpls, domain: trackingDomain}
}

// RenderedEmail is the output of rendering one template for one target.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// Render renders subject and both bodies for the target, exposing the
// tracking variables to the template, then injects the open pixel into the
// HTML. The pixel is always appended; the template author does not control
// open tracking.
func (r *Renderer) Render(tpl Template, c *domain.Campaign, t *domain.Target, token string) (*RenderedEmail, error) {
	link := r.LandingURL(c.LandingDomain, c.LandingPath, token)
	vars := t.TemplateVars()
	vars["campaign_name"] = c.Name
	vars["sender_name"] = c.FromName
	vars["sender_email"] = c.FromEmail
	vars["phishing_link"] = link
	vars["landing_page_url"] = link

	subject, err := r.tpls.RenderSubject(tpl.Subject, vars)
	if err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	html, err := r.tpls.Render(tpl.BodyHTML, vars)
	if err != nil {
		return nil, fmt.Errorf("html body: %w", err)
	}
	text := ""
	if tpl.BodyText != "" {
		if text, err = r.tpls.Render(tpl.BodyText, vars); err != nil {
			return nil, fmt.Errorf("text body: %w", err)
		}
	}

	html = injectPixel(html, r.PixelURL(token))

	return &RenderedEmail{Subject: subject, BodyHTML: html, BodyText: text}, nil
}

// PixelURL returns the open-tracking pixel URL for a token.
func (r *Renderer) PixelURL(token string) string {
	return fmt.Sprintf("https://%s/track/open?%s", r.domain, url.Values{"t": {token}}.Encode())
}

// LandingURL returns the landing page link URL for a token. Links are
// built against the campaign's landing domain when it has one; the shared
// tracking domain is the fallback.
func (r *Renderer) LandingURL(domain, path, token string) string {
	if domain == "" {
		domain = r.domain
	}
	path = strings.TrimPrefix(path, "/")
	return fmt.Sprintf("https://%s/%s?%s", domain, path, url.Values{"t": {token}}.Encode())
}

var closeBodyRe = regexp.MustCompile(`(?i)</body>`)

// injectPixel appends an invisible 1x1 image before </body>, or at the end
// of the document when no body tag exists.
func injectPixel(html, pixelURL string) string {
	pixel := fmt.Sprintf(
		`<img src="%s" width="1" height="1" alt="" style="display:none;width:1px;height:1px" />`,
		pixelURL,
	)
	if loc := closeBodyRe.FindStringIndex(html); loc != nil {
		return html[:loc[0]] + pixel + html[loc[0]:]
	}
	return html + pixel
}
