package repository

import (
	"context"

	"go.uber.org/zap"
)

// Mailer delivers the auth emails (password recovery).
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes emails to the log instead of sending them. It is the
// default for deployments without an SMTP relay.
type LogMailer struct {
	log *zap.Logger
}

// NewLogMailer returns a LogMailer.
func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log.Named("mail")}
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.Info("email", zap.String("to", to), zap.String("subject", subject), zap.String("body", body))
	return nil
}
