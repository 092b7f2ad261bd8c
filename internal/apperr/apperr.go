// Package apperr defines the error taxonomy surfaced by the store and the
// session manager. Every error carries a message that can be shown to the
// user as is.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUserExists         Kind = "user_exists"
	KindAlreadyRegistered  Kind = "already_registered"
	KindNotFound           Kind = "not_found"
	KindSoldOut            Kind = "sold_out"
	KindTimeout            Kind = "timeout"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindValidation         Kind = "validation"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindUnknown            Kind = "unknown"
)

var defaultMessages = map[Kind]string{
	KindInvalidCredentials: "Credenciales inválidas",
	KindUserExists:         "El usuario ya existe",
	KindAlreadyRegistered:  "Ya estás registrado en este evento.",
	KindNotFound:           "Evento no encontrado",
	KindSoldOut:            "No hay cupos disponibles",
	KindTimeout:            "El servidor tardó demasiado en responder. Intenta nuevamente.",
	KindBackendUnavailable: "El servicio no está disponible en este momento.",
	KindValidation:         "Datos inválidos",
	KindUnauthorized:       "Debes iniciar sesión para continuar.",
	KindForbidden:          "No tienes permiso para realizar esta acción.",
	KindUnknown:            "Ocurrió un error inesperado. Intenta nuevamente.",
}

// Error is a classified error with a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidCredentials = New(KindInvalidCredentials)
	ErrUserExists         = New(KindUserExists)
	ErrAlreadyRegistered  = New(KindAlreadyRegistered)
	ErrNotFound           = New(KindNotFound)
	ErrSoldOut            = New(KindSoldOut)
	ErrTimeout            = New(KindTimeout)
	ErrBackendUnavailable = New(KindBackendUnavailable)
	ErrValidation         = New(KindValidation)
	ErrUnauthorized       = New(KindUnauthorized)
	ErrForbidden          = New(KindForbidden)
	ErrUnknown            = New(KindUnknown)
)

// New returns an error of the given kind with its default message.
func New(kind Kind) *Error {
	return &Error{Kind: kind, Message: defaultMessages[kind]}
}

// Newf returns an error of the given kind with a custom message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind with the default message.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Message: defaultMessages[kind], Err: cause}
}

// Validation returns a validation error with the given message.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Normalize returns err unchanged if it is already classified, and wraps it
// as Unknown otherwise. A nil error stays nil.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Wrap(KindUnknown, err)
}

// KindOf returns the kind of err, or KindUnknown for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the user-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return defaultMessages[KindUnknown]
}
