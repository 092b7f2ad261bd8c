// Package session is the single source of truth for the current user. A
// Manager holds the auth state, runs the startup restore, and publishes every
// settled change to its subscribers. Identity checks are delegated to an
// Authenticator: LocalAuth for the mock mode, RemoteAuth for the hosted
// backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/apperr"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
)

// Status is the auth state of the application.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusRestoring     Status = "restoring"
	StatusAuthenticated Status = "authenticated"
	StatusAnonymous     Status = "anonymous"
)

// State is one settled value of the session. User is set only when Status is
// StatusAuthenticated.
type State struct {
	Status Status      `json:"status"`
	User   *model.User `json:"user,omitempty"`
}

// Authenticated reports whether a user is signed in.
func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// MinPasswordLength is the shortest password UpdatePassword accepts.
const MinPasswordLength = 6

// Authenticator verifies identities against one backend.
type Authenticator interface {
	// Restore returns the user of a persisted session, or nil.
	Restore(ctx context.Context) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, error)
	// Register creates the account. signedIn is false when the backend
	// requires email confirmation before the first login.
	Register(ctx context.Context, email, password, name string) (user *model.User, signedIn bool, err error)
	Logout(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
	// Recover exchanges a password-recovery token for a session.
	Recover(ctx context.Context, token string) (*model.User, error)
	UpdatePassword(ctx context.Context, password string) error
	// Watch registers fn for auth changes made outside this process. fn gets
	// nil on sign-out. The returned function stops the watch.
	Watch(fn func(*model.User)) (stop func())
}

// Manager owns the session state.
type Manager struct {
	auth Authenticator
	log  *zap.Logger

	mu    sync.RWMutex
	state State

	ready       chan struct{}
	restoreOnce sync.Once
	stopWatch   func()

	// changes pushed by the backend while the restore runs; the last one
	// wins over the restored session
	restoring bool
	pending   *externalChange

	// notifyMu serializes publishing so subscribers see changes in order.
	notifyMu sync.Mutex
	subMu    sync.Mutex
	subs     map[int]func(State)
	nextSub  int
}

// NewManager returns a Manager in the uninitialized state. Call Restore once
// at startup.
func NewManager(auth Authenticator, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		auth:  auth,
		log:   log.Named("session"),
		state: State{Status: StatusUninitialized},
		ready: make(chan struct{}),
		subs:  make(map[int]func(State)),
	}
}

// Restore loads the persisted session. It always resolves the state to
// authenticated or anonymous: failures are logged, never returned. Only the
// first call does any work; later calls return once the first has resolved.
func (m *Manager) Restore(ctx context.Context) State {
	m.restoreOnce.Do(func() {
		m.set(State{Status: StatusRestoring})
		m.mu.Lock()
		m.restoring = true
		m.mu.Unlock()
		stop := m.auth.Watch(m.external)

		user := m.restore(ctx)

		m.mu.Lock()
		m.stopWatch = stop
		m.restoring = false
		if m.pending != nil {
			user = m.pending.user
			m.pending = nil
		}
		m.mu.Unlock()
		if user != nil {
			m.set(State{Status: StatusAuthenticated, User: user})
		} else {
			m.set(State{Status: StatusAnonymous})
		}
		close(m.ready)
	})
	<-m.ready
	return m.Snapshot()
}

func (m *Manager) restore(ctx context.Context) (user *model.User) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("session restore panicked", zap.Any("panic", r))
			user = nil
		}
	}()
	user, err := m.auth.Restore(ctx)
	if err != nil {
		m.log.Warn("session restore failed, continuing anonymous", zap.Error(err))
		return nil
	}
	if user != nil {
		m.log.Info("session restored", zap.String("user", user.Email), zap.String("role", string(user.Role)))
	}
	return user
}

// Current waits for the startup restore to resolve and returns the state. It
// never returns a stale pre-restore value.
func (m *Manager) Current(ctx context.Context) (State, error) {
	select {
	case <-m.ready:
		return m.Snapshot(), nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// Snapshot returns the state without waiting. While the restore is running
// it reports StatusRestoring.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// User returns the signed-in user or nil.
func (m *Manager) User() *model.User {
	s := m.Snapshot()
	if !s.Authenticated() {
		return nil
	}
	return s.User
}

// Subscribe registers fn for every settled state change. fn runs on the
// goroutine that made the change and must not call back into the Manager's
// mutating methods.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
		})
	}
}

func (m *Manager) set(s State) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if sameState(m.state, s) {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	snap := m.Snapshot()
	m.subMu.Lock()
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func sameState(a, b State) bool {
	if a.Status != b.Status {
		return false
	}
	if a.User == nil || b.User == nil {
		return a.User == b.User
	}
	return *a.User == *b.User
}

type externalChange struct {
	user *model.User
}

// external applies a change pushed by the backend.
func (m *Manager) external(user *model.User) {
	m.mu.Lock()
	if m.restoring {
		m.pending = &externalChange{user: user}
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	if user == nil {
		m.set(State{Status: StatusAnonymous})
		return
	}
	m.set(State{Status: StatusAuthenticated, User: user})
}

// Login signs in. On failure the state is left untouched.
func (m *Manager) Login(ctx context.Context, email, password string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.ErrInvalidCredentials
	}
	user, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, m.fail("login", err)
	}
	m.set(State{Status: StatusAuthenticated, User: user})
	m.log.Info("user logged in", zap.String("user", user.Email))
	return user, nil
}

// Register creates an account. When the backend signs the new user in, the
// state becomes authenticated; otherwise it is left untouched until the email
// is confirmed.
func (m *Manager) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if !isValidEmail(email) {
		return nil, apperr.Validation("El email no es válido")
	}
	if password == "" {
		return nil, apperr.Validation("La contraseña es obligatoria")
	}
	user, signedIn, err := m.auth.Register(ctx, email, password, name)
	if err != nil {
		return nil, m.fail("register", err)
	}
	if signedIn {
		m.set(State{Status: StatusAuthenticated, User: user})
	}
	m.log.Info("user registered", zap.String("user", email), zap.Bool("signed_in", signedIn))
	return user, nil
}

// Logout signs out. The local state is cleared even when the backend call
// fails; a timeout is not reported at all.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.auth.Logout(ctx)
	m.set(State{Status: StatusAnonymous})
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrTimeout) {
		m.log.Warn("logout timed out, local session cleared", zap.Error(err))
		return nil
	}
	return m.fail("logout", err)
}

// ResetPassword starts the password recovery flow for email.
func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if !isValidEmail(email) {
		return apperr.Validation("El email no es válido")
	}
	return m.fail("reset password", m.auth.ResetPassword(ctx, email))
}

// Recover signs in with a recovery token so the password can be updated.
func (m *Manager) Recover(ctx context.Context, token string) (*model.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.ErrUnauthorized
	}
	user, err := m.auth.Recover(ctx, token)
	if err != nil {
		return nil, m.fail("recover", err)
	}
	m.set(State{Status: StatusAuthenticated, User: user})
	return user, nil
}

// UpdatePassword changes the password of the signed-in user.
func (m *Manager) UpdatePassword(ctx context.Context, password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperr.Validation(fmt.Sprintf("La contraseña debe tener al menos %d caracteres.", MinPasswordLength))
	}
	return m.fail("update password", m.auth.UpdatePassword(ctx, password))
}

// Close stops watching the backend and drops every subscriber.
func (m *Manager) Close() {
	m.mu.Lock()
	stop := m.stopWatch
	m.stopWatch = nil
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
	m.subMu.Lock()
	m.subs = make(map[int]func(State))
	m.subMu.Unlock()
}

func (m *Manager) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	err = apperr.Normalize(err)
	switch apperr.KindOf(err) {
	case apperr.KindUnknown, apperr.KindBackendUnavailable, apperr.KindTimeout:
		m.log.Error(op+" failed", zap.Error(err))
	default:
		m.log.Debug(op+" rejected", zap.Error(err))
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
