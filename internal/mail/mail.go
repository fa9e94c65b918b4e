// Package mail renders handlebars templates and hands the result to a
// delivery driver (SendGrid, SMTP or the log).
package mail

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/aymerick/raymond"
)

// Template names, matching the files under templates/.
const (
	TemplateRequestReset  = "requestResetPassword"
	TemplatePasswordReset = "resetPassword"
)

//go:embed templates/*.handlebars
var templateFS embed.FS

// Message is one outgoing mail. Data feeds the template.
type Message struct {
	To       string
	Subject  string
	Template string
	Data     map[string]any
}

// Sender delivers a message. Callers treat delivery as fire-and-forget.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Renderer holds the parsed templates.
type Renderer struct {
	templates map[string]*raymond.Template
}

// NewRenderer parses every embedded template.
func NewRenderer() (*Renderer, error) {
	entries, err := fs.Glob(templateFS, "templates/*.handlebars")
	if err != nil {
		return nil, err
	}
	r := &Renderer{templates: make(map[string]*raymond.Template, len(entries))}
	for _, name := range entries {
		src, err := templateFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		tpl, err := raymond.Parse(string(src))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[strings.TrimSuffix(path.Base(name), ".handlebars")] = tpl
	}
	return r, nil
}

// Render executes the named template with data.
func (r *Renderer) Render(name string, data map[string]any) (string, error) {
	tpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown mail template %q", name)
	}
	return tpl.Exec(data)
}
