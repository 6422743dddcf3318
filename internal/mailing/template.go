// Package mailing renders phishing emails and delivers them over SMTP.
// Templates use the Liquid template language; tracking URLs and the open
// pixel are injected at render time and are not under template-author
// control.
package mailing

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Template is the email content the engine renders for each target,
// supplied by the external template store.
type Template struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// TemplateService renders Liquid templates with caching.
type TemplateService struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewTemplateService creates a template service with engine filters
// registered.
func NewTemplateService() *TemplateService {
	ts := &TemplateService{engine: liquid.NewEngine()}
	ts.registerFilters()
	return ts
}

func (ts *TemplateService) registerFilters() {
	// {{ first_name | default: "there" }}
	ts.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})
	ts.engine.RegisterFilter("upcase_first", func(value string) string {
		if value == "" {
			return value
		}
		return strings.ToUpper(value[:1]) + value[1:]
	})
}

// Render renders one template string with the given variables. Parsed
// templates are cached by source text.
func (ts *TemplateService) Render(source string, vars map[string]any) (string, error) {
	if cached, ok := ts.cache.Load(source); ok {
		out, err := cached.(*liquid.Template).Render(vars)
		if err != nil {
			return "", fmt.Errorf("render template: %w", err)
		}
		return string(out), nil
	}

	tpl, err := ts.engine.ParseString(source)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	ts.cache.Store(source, tpl)

	out, err := tpl.Render(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return string(out), nil
}

// RenderSubject renders a subject line and collapses any whitespace runs,
// since header values must be single-line.
func (ts *TemplateService) RenderSubject(source string, vars map[string]any) (string, error) {
	out, err := ts.Render(source, vars)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(out), " "), nil
}
