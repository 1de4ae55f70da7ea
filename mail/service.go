package mail

import (
	"context"
	"net/url"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
)

// Service renders account notifications and hands them to a Sender. It
// implements accounts.Mailer.
type Service struct {
	renderer *Renderer
	sender   Sender
	from     Address
	links    map[accounts.TemplateKind]string
}

var _ accounts.Mailer = (*Service)(nil)

func NewService(renderer *Renderer, sender Sender, from Address) *Service {
	return &Service{
		renderer: renderer,
		sender:   sender,
		from:     from,
		links:    map[accounts.TemplateKind]string{},
	}
}

// WithLink makes templates of kind receive a "link" variable built from
// baseURL with the code in its "code" query parameter.
func (s *Service) WithLink(kind accounts.TemplateKind, baseURL string) *Service {
	if baseURL != "" {
		s.links[kind] = baseURL
	}
	return s
}

// Send implements accounts.Mailer.
func (s *Service) Send(ctx context.Context, to accounts.Recipient, kind accounts.TemplateKind, code string) error {
	if s.renderer == nil || s.sender == nil {
		return goerrors.New("mail service is not configured", goerrors.CategoryInternal)
	}

	recipient, err := ParseAddress(to.Email)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid recipient")
	}

	data := map[string]any{
		"name":  to.Name,
		"email": to.Email,
		"code":  code,
		"link":  "",
	}

	if base, ok := s.links[kind]; ok {
		link, err := withCode(base, code)
		if err != nil {
			return err
		}
		data["link"] = link
	}

	subject, body, err := s.renderer.Render(kind, data)
	if err != nil {
		return err
	}

	return s.sender.Send(ctx, s.from, NamedAddress(to.Name, string(recipient)), subject, body)
}

func withCode(base, code string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid mail link")
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
