package mail

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Log only records that a message would have been sent. Template data is
// not logged: it carries reset links.
type Log struct{}

func (Log) Send(_ context.Context, msg Message) error {
	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Str("template", msg.Template).Msg("Mail delivery skipped (log driver)")
	return nil
}
