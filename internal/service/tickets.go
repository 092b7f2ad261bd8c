package service

import (
	"context"
	"fmt"

	"github.com/skip2/go-qrcode"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/apperr"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
)

// DefaultTicketSize is the side of the ticket QR image in pixels.
const DefaultTicketSize = 256

// QRCodeEncoder renders content as a PNG QR code. qrcode.Encode matches it.
type QRCodeEncoder func(content string, level qrcode.RecoveryLevel, size int) ([]byte, error)

// RegistrationStore lists the registrations of a user.
type RegistrationStore interface {
	Registrations(ctx context.Context, userID string) ([]model.Registration, error)
}

// Tickets issues QR tickets for the current user's reservations.
type Tickets struct {
	store  RegistrationStore
	users  CurrentUser
	encode QRCodeEncoder
}

// NewTickets constructs Tickets. A nil encoder uses qrcode.Encode.
func NewTickets(store RegistrationStore, users CurrentUser, encode QRCodeEncoder) *Tickets {
	if encode == nil {
		encode = qrcode.Encode
	}
	return &Tickets{store: store, users: users, encode: encode}
}

// TicketContent is the text encoded in the QR code of a registration.
func TicketContent(reg model.Registration) string {
	return fmt.Sprintf("CIELO-ABIERTO|%s|%s|%s", reg.ID, reg.EventID, reg.UserID)
}

// Ticket returns the PNG ticket of the current user for eventID.
func (t *Tickets) Ticket(ctx context.Context, eventID model.ID, size int) ([]byte, error) {
	if size <= 0 {
		return nil, apperr.Validation("Tamaño de imagen inválido")
	}
	user := t.users.User()
	if user == nil {
		return nil, apperr.ErrUnauthorized
	}
	regs, err := t.store.Registrations(ctx, user.RegistrationKey())
	if err != nil {
		return nil, err
	}
	for _, reg := range regs {
		if reg.EventID != eventID {
			continue
		}
		png, err := t.encode(TicketContent(reg), qrcode.Medium, size)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUnknown, fmt.Errorf("encode ticket: %w", err))
		}
		return png, nil
	}
	return nil, apperr.Newf(apperr.KindNotFound, "No tienes una reserva para este evento.")
}
