// Package email implements the outbound mail transport collaborator for the
// reminder engine: client-side template rendering with Go templates and a
// circuit-broken SMTP sender.
package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"calwatch/internal/alarm"
	"calwatch/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// DefaultTemplate is the template name used when an alarm does not name one.
const DefaultTemplate = "reminder"

// RenderedEmail holds the pre-rendered email content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// templateData is the struct passed into the reminder templates.
type templateData struct {
	RecipientName string
	EventTitle    string
	EventTime     string
	Message       string
	FromName      string
}

// Renderer renders reminder emails from the embedded template files. An
// alarm's mail_template selects the template pair; unknown names soft-fail
// to the default reminder template rather than dropping the send.
type Renderer struct {
	htmlTemplates map[string]*template.Template
	textTemplates map[string]*texttemplate.Template
	fromName      string
}

// NewRenderer parses the embedded templates and returns a Renderer.
// Returns an error if any template fails to parse.
func NewRenderer(fromName string) (*Renderer, error) {
	r := &Renderer{
		htmlTemplates: make(map[string]*template.Template),
		textTemplates: make(map[string]*texttemplate.Template),
		fromName:      fromName,
	}

	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("reading embedded templates: %w", err)
	}
	for _, entry := range entries {
		name, kind, ok := splitTemplateName(entry.Name())
		if !ok {
			continue
		}
		path := "templates/" + entry.Name()
		switch kind {
		case "html":
			t, err := template.ParseFS(templateFS, path)
			if err != nil {
				return nil, fmt.Errorf("parsing template %s: %w", path, err)
			}
			r.htmlTemplates[name] = t
		case "txt":
			t, err := texttemplate.ParseFS(templateFS, path)
			if err != nil {
				return nil, fmt.Errorf("parsing template %s: %w", path, err)
			}
			r.textTemplates[name] = t
		}
	}

	if _, ok := r.htmlTemplates[DefaultTemplate]; !ok {
		return nil, fmt.Errorf("embedded templates missing %q html template", DefaultTemplate)
	}
	if _, ok := r.textTemplates[DefaultTemplate]; !ok {
		return nil, fmt.Errorf("embedded templates missing %q text template", DefaultTemplate)
	}
	return r, nil
}

// Render produces the email content for one recipient of one batch item.
func (r *Renderer) Render(a types.Alarm, item alarm.MailItem, recipient types.Attendee) (RenderedEmail, error) {
	name := a.MailTemplate
	if name == "" {
		name = DefaultTemplate
	}

	html, ok := r.htmlTemplates[name]
	if !ok {
		html = r.htmlTemplates[DefaultTemplate]
	}
	text, ok := r.textTemplates[name]
	if !ok {
		text = r.textTemplates[DefaultTemplate]
	}

	data := templateData{
		RecipientName: recipient.Name,
		EventTitle:    item.Event.Title,
		EventTime:     alarm.DisplayTime(item.Event, item.Occurrence),
		Message:       a.Body,
		FromName:      r.fromName,
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := html.Execute(&htmlBuf, data); err != nil {
		return RenderedEmail{}, fmt.Errorf("rendering html template %s: %w", name, err)
	}
	if err := text.Execute(&textBuf, data); err != nil {
		return RenderedEmail{}, fmt.Errorf("rendering text template %s: %w", name, err)
	}

	return RenderedEmail{
		Subject:  fmt.Sprintf("Reminder: %s", item.Event.Title),
		BodyHTML: htmlBuf.String(),
		BodyText: textBuf.String(),
	}, nil
}

// splitTemplateName splits "reminder.html" into ("reminder", "html").
func splitTemplateName(filename string) (name, kind string, ok bool) {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			return filename[:i], filename[i+1:], i > 0
		}
	}
	return "", "", false
}
