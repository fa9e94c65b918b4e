package mail

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGrid delivers through the SendGrid v3 API.
type SendGrid struct {
	client   *sendgrid.Client
	from     *sgmail.Email
	renderer *Renderer
}

func NewSendGrid(apiKey, fromAddress, fromName string, renderer *Renderer) (*SendGrid, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("SENDGRID_API_KEY environment variable not set")
	}
	return &SendGrid{
		client:   sendgrid.NewSendClient(apiKey),
		from:     sgmail.NewEmail(fromName, fromAddress),
		renderer: renderer,
	}, nil
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	html, err := s.renderer.Render(msg.Template, msg.Data)
	if err != nil {
		return err
	}
	message := sgmail.NewSingleEmail(s.from, msg.Subject, sgmail.NewEmail("", msg.To), "", html)
	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: unexpected status %d: %s", response.StatusCode, response.Body)
	}
	log.Info().Int("status_code", response.StatusCode).Str("template", msg.Template).Msg("Email sent")
	return nil
}
