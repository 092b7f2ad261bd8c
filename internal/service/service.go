// Package service orchestrates the store, the session and the payment
// gateway for the flows the UI runs end to end: reserving a seat, managing the
// catalog from the admin panel and issuing tickets.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/apperr"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/payment"
)

// DefaultCurrency is charged when an event has no currency of its own.
const DefaultCurrency = "USD"

// Messages shown by the reservation flow.
const (
	msgPaymentFailed = "Error en el pago. Intente nuevamente."
	msgNotBookable   = "Este evento no admite reservas."
)

// CurrentUser exposes the signed-in user. session.Manager implements it.
type CurrentUser interface {
	User() *model.User
}

// EventStore is the part of the store the reservation flow needs.
type EventStore interface {
	GetEvent(ctx context.Context, id model.ID) (*model.Event, error)
	RegisterForEvent(ctx context.Context, userID string, eventID model.ID) error
	Registrations(ctx context.Context, userID string) ([]model.Registration, error)
}

// Receipt describes a completed reservation.
type Receipt struct {
	EventID       model.ID `json:"eventId"`
	UserID        string   `json:"userId"`
	Amount        float64  `json:"amount"`
	Currency      string   `json:"currency,omitempty"`
	TransactionID string   `json:"transactionId,omitempty"`
}

// Reservations runs the checkout of a booking event: payment first, then the
// registration.
type Reservations struct {
	store   EventStore
	users   CurrentUser
	gateway payment.Gateway
	log     *zap.Logger
}

// NewReservations constructs Reservations with its dependencies.
func NewReservations(store EventStore, users CurrentUser, gateway payment.Gateway, log *zap.Logger) *Reservations {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reservations{store: store, users: users, gateway: gateway, log: log.Named("reservations")}
}

// Reserve charges the event price to the current user and registers them.
// Duplicate and sold-out reservations are rejected before charging. Free
// events skip the payment. A charge whose registration is then rejected is
// refunded.
func (r *Reservations) Reserve(ctx context.Context, eventID model.ID) (*Receipt, error) {
	user := r.users.User()
	if user == nil {
		return nil, apperr.ErrUnauthorized
	}
	event, err := r.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsBooking() {
		return nil, apperr.Validation(msgNotBookable)
	}
	receipt := &Receipt{EventID: event.ID, UserID: user.RegistrationKey()}
	regs, err := r.store.Registrations(ctx, receipt.UserID)
	if err != nil {
		return nil, err
	}
	for _, reg := range regs {
		if reg.EventID == event.ID {
			return nil, apperr.ErrAlreadyRegistered
		}
	}
	if event.IsFull() {
		return nil, apperr.ErrSoldOut
	}

	if event.Price != nil && *event.Price > 0 {
		receipt.Amount = *event.Price
		receipt.Currency = DefaultCurrency
		txn, err := r.charge(ctx, event, user, receipt)
		if err != nil {
			return nil, err
		}
		receipt.TransactionID = txn
	}

	if err := r.store.RegisterForEvent(ctx, receipt.UserID, event.ID); err != nil {
		if receipt.TransactionID != "" {
			r.refund(ctx, receipt.TransactionID)
		}
		return nil, err
	}
	r.log.Info("reservation completed",
		zap.String("event_id", event.ID.String()),
		zap.String("user_id", receipt.UserID),
		zap.Float64("amount", receipt.Amount),
	)
	return receipt, nil
}

func (r *Reservations) charge(ctx context.Context, event *model.Event, user *model.User, receipt *Receipt) (string, error) {
	resp, err := r.gateway.Charge(ctx, &payment.ChargeRequest{
		OrderID:       fmt.Sprintf("%s:%s", event.ID, receipt.UserID),
		Amount:        receipt.Amount,
		Currency:      receipt.Currency,
		Description:   event.Title,
		CustomerEmail: user.Email,
	})
	if err != nil {
		r.log.Error("payment failed", zap.String("gateway", r.gateway.Name()), zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return "", apperr.Wrap(apperr.KindTimeout, err)
		}
		return "", &apperr.Error{Kind: apperr.KindUnknown, Message: msgPaymentFailed, Err: err}
	}
	if !resp.Success {
		r.log.Warn("payment declined",
			zap.String("gateway", r.gateway.Name()),
			zap.String("reason", resp.FailureReason),
		)
		return "", apperr.Newf(apperr.KindUnknown, msgPaymentFailed)
	}
	return resp.TransactionID, nil
}

func (r *Reservations) refund(ctx context.Context, transactionID string) {
	// The request context may already be cancelled; the refund must still run.
	if err := r.gateway.Refund(context.WithoutCancel(ctx), transactionID); err != nil {
		r.log.Error("refund failed", zap.String("transaction_id", transactionID), zap.Error(err))
		return
	}
	r.log.Info("payment refunded", zap.String("transaction_id", transactionID))
}
