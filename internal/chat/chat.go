// Package chat is the AstroGuía assistant. With a model configured it answers
// through Gemini, grounded on the live event list and the site knowledge;
// without one it falls back to canned keyword answers.
//
// Grounding is by instruction only: the model is told not to invent events,
// nothing checks that it complies.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
)

// SimulatedDelay is the pause before a canned answer.
const SimulatedDelay = time.Second

// Generator produces a model answer.
type Generator interface {
	Generate(ctx context.Context, system string, history []model.ChatTurn, message string) (string, error)
}

// EventSource supplies the events the answers are grounded on.
type EventSource interface {
	ListEvents(ctx context.Context) ([]model.Event, error)
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithDelay overrides the pause before canned answers.
func WithDelay(d time.Duration) Option {
	return func(a *Assistant) { a.delay = d }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(a *Assistant) { a.log = log }
}

// Assistant answers chat messages.
type Assistant struct {
	events EventSource
	gen    Generator
	delay  time.Duration
	log    *zap.Logger
}

// NewAssistant constructs an Assistant. A nil gen selects the canned
// fallback.
func NewAssistant(events EventSource, gen Generator, opts ...Option) *Assistant {
	a := &Assistant{events: events, gen: gen, delay: SimulatedDelay, log: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.Named("chat")
	return a
}

// Simulated reports whether the assistant runs without a model.
func (a *Assistant) Simulated() bool { return a.gen == nil }

// Reply answers message. It never fails: generator errors turn into the
// interference message.
func (a *Assistant) Reply(ctx context.Context, message string, history []model.ChatTurn) string {
	if a.gen == nil {
		return a.simulate(ctx, message)
	}
	answer, err := a.gen.Generate(ctx, a.SystemPrompt(ctx), conversation(history), message)
	if err != nil {
		a.log.Error("generator failed", zap.Error(err))
		return ReplyInterference
	}
	return answer
}

// conversation drops system turns.
func conversation(history []model.ChatTurn) []model.ChatTurn {
	out := make([]model.ChatTurn, 0, len(history))
	for _, h := range history {
		if h.Sender == "system" {
			continue
		}
		out = append(out, h)
	}
	return out
}

// SystemPrompt builds the instruction with the current events. Events that
// cannot be loaded are left out.
func (a *Assistant) SystemPrompt(ctx context.Context) string {
	var events []model.Event
	if a.events != nil {
		var err error
		if events, err = a.events.ListEvents(ctx); err != nil {
			a.log.Warn("events unavailable for chat context", zap.Error(err))
		}
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\nCONTEXTO DE LA PÁGINA:\nEventos Próximos:\n")
	for _, e := range events {
		b.WriteString(eventLine(e))
		b.WriteByte('\n')
	}
	b.WriteString("\nInformación General:\n")
	for _, qa := range pageInfo {
		b.WriteString("- ")
		b.WriteString(qa.answer)
		b.WriteByte('\n')
	}
	b.WriteString("Pago: Aceptamos PayPal para las reservas.\n")
	b.WriteString("Contacto: Formulario en la web o contacto@cieloabierto.com.\n")
	b.WriteString(closing)
	return b.String()
}

func eventLine(e model.Event) string {
	desc := e.Description
	if desc == "" {
		desc = "Evento de reservación"
	}
	price := "Gratis/Online"
	if e.Price != nil && *e.Price > 0 {
		price = fmt.Sprintf("$%g USD", *e.Price)
	}
	return fmt.Sprintf("- %s (%s %s): %s. Lugar: %s. Precio: %s.",
		e.Title, e.Date.Day, e.Date.Month, desc, e.Location, price)
}

func (a *Assistant) simulate(ctx context.Context, message string) string {
	msg := strings.ToLower(message)
	if strings.Contains(msg, "gemini") || strings.Contains(msg, "api") {
		return ReplyNeedsKey
	}

	if a.delay > 0 {
		t := time.NewTimer(a.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ReplyInterference
		case <-t.C:
		}
	}

	if strings.Contains(msg, "lanzamiento") && strings.Contains(msg, "spacex") {
		return ReplyLaunch
	}
	for _, c := range simulated {
		if c.matches(msg) {
			return c.answer
		}
	}
	return ReplyDefault
}
