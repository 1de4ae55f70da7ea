package mail

import (
	"embed"
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"
	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// Template holds the pongo2 sources of one notification
type Template struct {
	Subject string
	Body    string
}

type compiled struct {
	subject *pongo2.Template
	body    *pongo2.Template
}

// Renderer renders notifications from pongo2 templates.
type Renderer struct {
	templates map[accounts.TemplateKind]compiled
}

// DefaultTemplates returns the built in plain text templates
func DefaultTemplates() (map[accounts.TemplateKind]Template, error) {
	out := map[accounts.TemplateKind]Template{}
	for _, kind := range []accounts.TemplateKind{accounts.TemplateActivation, accounts.TemplatePasswordReset} {
		subject, err := templatesFS.ReadFile(fmt.Sprintf("templates/%s_subject.txt", kind))
		if err != nil {
			return nil, err
		}
		body, err := templatesFS.ReadFile(fmt.Sprintf("templates/%s_body.txt", kind))
		if err != nil {
			return nil, err
		}
		out[kind] = Template{Subject: string(subject), Body: string(body)}
	}
	return out, nil
}

// NewRenderer compiles templates. Every kind must have a subject and a body.
func NewRenderer(templates map[accounts.TemplateKind]Template) (*Renderer, error) {
	r := &Renderer{templates: make(map[accounts.TemplateKind]compiled, len(templates))}

	for kind, tpl := range templates {
		if strings.TrimSpace(tpl.Subject) == "" || strings.TrimSpace(tpl.Body) == "" {
			return nil, goerrors.New("mail template needs a subject and a body", goerrors.CategoryBadInput).
				WithMetadata(map[string]any{"template": string(kind)})
		}

		subject, err := pongo2.FromString(tpl.Subject)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse mail subject").
				WithMetadata(map[string]any{"template": string(kind)})
		}

		body, err := pongo2.FromString(tpl.Body)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse mail body").
				WithMetadata(map[string]any{"template": string(kind)})
		}

		r.templates[kind] = compiled{subject: subject, body: body}
	}

	return r, nil
}

// NewDefaultRenderer compiles DefaultTemplates
func NewDefaultRenderer() (*Renderer, error) {
	templates, err := DefaultTemplates()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load mail templates")
	}
	return NewRenderer(templates)
}

// Render returns the subject and body of kind rendered with data.
func (r *Renderer) Render(kind accounts.TemplateKind, data map[string]any) (subject, body string, err error) {
	tpl, ok := r.templates[kind]
	if !ok {
		return "", "", goerrors.New("unknown mail template", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound).
			WithMetadata(map[string]any{"template": string(kind)})
	}

	ctx := pongo2.Context(data)

	if subject, err = tpl.subject.Execute(ctx); err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render mail subject")
	}

	if body, err = tpl.body.Execute(ctx); err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render mail body")
	}

	return strings.TrimSpace(subject), body, nil
}
