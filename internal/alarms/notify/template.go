package notify

import (
	"bytes"
	"errors"
	"strings"
	"text/template"
)

const DefaultSubjectTemplate = `[Solar Alarm {{.EventLabel}}] {{.Rule}} on {{.Device}}`

const DefaultTemplate = `[Alarm {{.EventLabel}}]
Device: {{.Device}}
Rule: {{.Rule}}
Field: {{.Field}}
Trigger Value: {{.TriggerValue}}
Threshold: {{.Threshold}}
Start Time: {{.StartTime}}
Current Status: {{.Status}}
Severity: {{.Severity}}
Suggestion: {{.Suggestion}}
{{ if .DashboardURL }}
Dashboard: {{.DashboardURL}}
{{ end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Device       string
	Rule         string
	RuleID       string
	Field        string
	TriggerValue string
	Threshold    string
	StartTime    string
	Status       string
	StatusCode   string
	Severity     string
	Suggestion   string
	DashboardURL string
	Event        string
	EventLabel   string
}

// Template renders notification subject and body.
type Template struct {
	subject *template.Template
	body    *template.Template
}

// NewTemplate parses a body template, falling back to DefaultTemplate.
func NewTemplate(body string) (*Template, error) {
	if body == "" {
		body = DefaultTemplate
	}
	parsedBody, err := template.New("alarm-notification").Parse(body)
	if err != nil {
		return nil, err
	}
	parsedSubject, err := template.New("alarm-subject").Parse(DefaultSubjectTemplate)
	if err != nil {
		return nil, err
	}
	return &Template{subject: parsedSubject, body: parsedBody}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (subject, body string, err error) {
	if t == nil || t.body == nil {
		return "", "", errors.New("alarm template: nil")
	}
	var buf bytes.Buffer
	if err := t.subject.Execute(&buf, data); err != nil {
		return "", "", err
	}
	subject = strings.TrimSpace(buf.String())
	buf.Reset()
	if err := t.body.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return subject, buf.String(), nil
}
