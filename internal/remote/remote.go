// Package remote describes the hosted relational + auth backend the store
// and the session manager talk to when remote credentials are configured.
package remote

import (
	"context"
	"errors"
	"time"
)

// Table names exposed by the backend.
const (
	TableEvents        = "events"
	TableRegistrations = "registrations"
	TableProfiles      = "profiles"
	TableTeam          = "team"
	TableGallery       = "gallery"
	TableConfig        = "config"
)

// Tables lists every table the backend serves.
var Tables = []string{TableEvents, TableRegistrations, TableProfiles, TableTeam, TableGallery, TableConfig}

// Errors reported by a backend. Implementations wrap them so callers can use
// errors.Is.
var (
	ErrNoRows         = errors.New("no rows")
	ErrDuplicate      = errors.New("duplicate key")
	ErrCheckViolation = errors.New("check constraint violated")
	ErrUndefinedTable = errors.New("table does not exist")
	ErrUnknownTable   = errors.New("unknown table")
	ErrInvalidLogin   = errors.New("invalid login credentials")
	ErrUserExists     = errors.New("user already registered")
	ErrNoSession      = errors.New("no active session")
	ErrInvalidToken   = errors.New("invalid or expired token")
)

// Identity is the authenticated user as the auth service knows it. It has no
// role; roles live in the profiles table.
type Identity struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"user_metadata,omitempty"`
}

// FullName returns the name given at sign-up.
func (i *Identity) FullName() string {
	if i == nil || i.Metadata == nil {
		return ""
	}
	return i.Metadata["full_name"]
}

// Session is an authenticated session.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        Identity  `json:"user"`
}

// AuthEvent names an auth-state change.
type AuthEvent string

const (
	EventSignedIn         AuthEvent = "SIGNED_IN"
	EventSignedOut        AuthEvent = "SIGNED_OUT"
	EventUserUpdated      AuthEvent = "USER_UPDATED"
	EventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)

// AuthListener receives auth-state changes. session is nil after sign-out.
type AuthListener func(event AuthEvent, session *Session)

// SignUpOptions carries the profile data and the post-verification redirect.
type SignUpOptions struct {
	Name       string
	RedirectTo string
}

// UserAttributes are the fields UpdateUser can change.
type UserAttributes struct {
	Password string
}

// Auth is the identity side of the backend.
type Auth interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// SignUp creates the identity. The returned session is nil when the
	// backend requires email confirmation first.
	SignUp(ctx context.Context, email, password string, opts SignUpOptions) (*Identity, *Session, error)
	SignOut(ctx context.Context) error
	// GetSession returns the current session or nil.
	GetSession(ctx context.Context) (*Session, error)
	// OnAuthStateChange registers fn and returns a function removing it.
	OnAuthStateChange(fn AuthListener) (unsubscribe func())
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	// VerifyRecovery exchanges a recovery token for a session.
	VerifyRecovery(ctx context.Context, token string) (*Session, error)
	UpdateUser(ctx context.Context, attrs UserAttributes) error
}

// TableClient is the generic table side of the backend. Rows are exchanged as
// JSON-compatible values; dst arguments must be pointers.
type TableClient interface {
	SelectAll(ctx context.Context, table string, dst any) error
	SelectByID(ctx context.Context, table, id string, dst any) error
	Insert(ctx context.Context, table string, row any) error
	DeleteByID(ctx context.Context, table, id string) error
	Upsert(ctx context.Context, table string, row any) error
}

// Client is everything the backend offers.
type Client interface {
	Auth
	TableClient
}

// KnownTable reports whether name is one of Tables.
func KnownTable(name string) bool {
	for _, t := range Tables {
		if t == name {
			return true
		}
	}
	return false
}
