package mailing

import (
	"strings"
	"testing"

	"github.com/phishly/phishly/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:          7,
		Name:        "Q3 Security Check",
		FromName:    "IT Support",
		FromEmail:   "it@corp.example.com",
		LandingPath: "account/verify",
	}
}

func testTarget() *domain.Target {
	return &domain.Target{
		ID:        3,
		Email:     "jane.doe@corp.example.com",
		FirstName: "Jane",
		LastName:  "Doe",
		Position:  "Accountant",
	}
}

func TestRenderer_SubstitutesVariables(t *testing.T) {
	r := NewRenderer(NewTemplateService(), "phish.example.test")

	tpl := Template{
		Subject:  "{{ campaign_name }}: action required for {{ first_name }}",
		BodyHTML: `<html><body><p>Dear {{ first_name }},</p><a href="{{ phishing_link }}">Verify</a></body></html>`,
		BodyText: "Dear {{ first_name }}, visit {{ phishing_link }}",
	}

	out, err := r.Render(tpl, testCampaign(), testTarget(), "TOKEN123")
	require.NoError(t, err)

	assert.Equal(t, "Q3 Security Check: action required for Jane", out.Subject)
	assert.Contains(t, out.BodyHTML, "Dear Jane,")
	assert.Contains(t, out.BodyHTML, "https://phish.example.test/account/verify?t=TOKEN123")
	assert.Contains(t, out.BodyText, "https://phish.example.test/account/verify?t=TOKEN123")
}

// A campaign with its own landing domain gets links built against it;
// only the open pixel stays on the shared tracking domain.
func TestRenderer_PrefersCampaignLandingDomain(t *testing.T) {
	r := NewRenderer(NewTemplateService(), "track.example.test")

	c := testCampaign()
	c.LandingDomain = "portal.corp-login.example"
	c.LandingPath = "login"

	tpl := Template{
		Subject:  "s",
		BodyHTML: `<html><body><a href="{{ phishing_link }}">Verify</a></body></html>`,
	}
	out, err := r.Render(tpl, c, testTarget(), "tok123")
	require.NoError(t, err)

	assert.Contains(t, out.BodyHTML, "https://portal.corp-login.example/login?t=tok123")
	assert.Contains(t, out.BodyHTML, "https://track.example.test/track/open?t=tok123")
}

func TestRenderer_InjectsPixelBeforeBodyClose(t *testing.T) {
	r := NewRenderer(NewTemplateService(), "phish.example.test")

	tpl := Template{
		Subject:  "s",
		BodyHTML: "<html><body><p>hi</p></body></html>",
	}
	out, err := r.Render(tpl, testCampaign(), testTarget(), "TOKEN123")
	require.NoError(t, err)

	pixel := `<img src="https://phish.example.test/track/open?t=TOKEN123"`
	assert.Contains(t, out.BodyHTML, pixel)
	assert.Less(t, strings.Index(out.BodyHTML, pixel), strings.Index(out.BodyHTML, "</body>"),
		"pixel must sit inside the body")
}

func TestRenderer_PixelAppendedWithoutBodyTag(t *testing.T) {
	r := NewRenderer(NewTemplateService(), "phish.example.test")

	tpl := Template{Subject: "s", BodyHTML: "<p>no body tag</p>"}
	out, err := r.Render(tpl, testCampaign(), testTarget(), "TOKEN123")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out.BodyHTML, `style="display:none;width:1px;height:1px" />`))
}

func TestTemplateService_DefaultFilter(t *testing.T) {
	ts := NewTemplateService()
	out, err := ts.Render(`Hello {{ first_name | default: "there" }}`, map[string]any{"first_name": ""})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)
}

func TestRenderSubject_CollapsesWhitespace(t *testing.T) {
	ts := NewTemplateService()
	out, err := ts.RenderSubject("Line one\n  line two", nil)
	require.NoError(t, err)
	assert.Equal(t, "Line one line two", out)
}

func TestBuildMessage_MultipartAlternative(t *testing.T) {
	msg := &Message{
		To:        "jane.doe@corp.example.com",
		FromName:  "IT Support",
		FromEmail: "it@corp.example.com",
		ReplyTo:   "helpdesk@corp.example.com",
		Subject:   "Action required",
		BodyHTML:  "<p>hello</p>",
		BodyText:  "hello",
	}
	raw := buildMessage(msg)

	assert.Contains(t, raw, "To: jane.doe@corp.example.com")
	assert.Contains(t, raw, `"IT Support" <it@corp.example.com>`)
	assert.Contains(t, raw, "Reply-To: helpdesk@corp.example.com")
	assert.Contains(t, raw, "Content-Type: multipart/alternative")
	// Text part must precede the HTML part.
	assert.Less(t, strings.Index(raw, "text/plain"), strings.Index(raw, "text/html"))
}
