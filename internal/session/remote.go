package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/apperr"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/remote"
)

// Pages the auth emails link back to.
const (
	EmailVerifiedPath = "/email-verified"
	ResetPasswordPath = "/reset-password"
)

type profileRow struct {
	ID       string     `json:"id"`
	Email    string     `json:"email"`
	FullName string     `json:"full_name"`
	Role     model.Role `json:"role"`
}

// RemoteAuth authenticates against the hosted backend. Every call is bounded
// by Timeout.
type RemoteAuth struct {
	client  remote.Client
	siteURL string
	timeout time.Duration
	log     *zap.Logger

	// gen is bumped by every call that replaces the backend session.
	gen atomic.Uint64
	// inflight counts session-changing calls still running on the backend,
	// including timed-out ones. Their auth events are not forwarded.
	inflight atomic.Int64
}

// NewRemoteAuth returns a RemoteAuth. siteURL is the public address the
// verification and recovery emails redirect to. A zero timeout means
// DefaultTimeout.
func NewRemoteAuth(client remote.Client, siteURL string, timeout time.Duration, log *zap.Logger) *RemoteAuth {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RemoteAuth{
		client:  client,
		siteURL: strings.TrimRight(siteURL, "/"),
		timeout: timeout,
		log:     log.Named("remote_auth"),
	}
}

func mapAuthError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, remote.ErrInvalidLogin):
		return apperr.Wrap(apperr.KindInvalidCredentials, err)
	case errors.Is(err, remote.ErrUserExists):
		return apperr.Wrap(apperr.KindUserExists, err)
	case errors.Is(err, remote.ErrInvalidToken):
		return &apperr.Error{
			Kind:    apperr.KindUnauthorized,
			Message: "Enlace inválido o expirado. Por favor solicita un nuevo correo de recuperación.",
			Err:     err,
		}
	case errors.Is(err, remote.ErrNoSession):
		return apperr.Wrap(apperr.KindUnauthorized, err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindTimeout, err)
	default:
		return apperr.Normalize(err)
	}
}

// role looks the user's role up in the profiles table. Any failure means
// a plain user.
func (a *RemoteAuth) role(ctx context.Context, id string) model.Role {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	var p profileRow
	if err := a.client.SelectByID(ctx, remote.TableProfiles, id, &p); err != nil {
		if !errors.Is(err, remote.ErrNoRows) {
			a.log.Warn("profile lookup failed", zap.String("user_id", id), zap.Error(err))
		}
		return model.RoleUser
	}
	if p.Role == "" {
		return model.RoleUser
	}
	return p.Role
}

func (a *RemoteAuth) user(ctx context.Context, id remote.Identity) *model.User {
	return &model.User{
		ID:    id.ID,
		Email: id.Email,
		Name:  id.FullName(),
		Role:  a.role(ctx, id.ID),
	}
}

// begin starts a session-changing call. The returned function must run
// when the backend call returns, however late.
func (a *RemoteAuth) begin() (gen uint64, done func()) {
	a.inflight.Add(1)
	return a.gen.Add(1), func() { a.inflight.Add(-1) }
}

// lateSignOut returns the late callback for the attempt gen. It drops the
// session the caller never received because its call timed out, unless a
// newer attempt started or the backend already holds another session.
func (a *RemoteAuth) lateSignOut(gen uint64) func(*remote.Session) {
	return func(s *remote.Session) {
		if s == nil {
			return
		}
		if a.gen.Load() != gen {
			a.log.Debug("late session superseded by a newer attempt")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		current, err := a.client.GetSession(ctx)
		if err != nil {
			a.log.Warn("could not check late session", zap.Error(err))
			return
		}
		if current == nil || current.AccessToken != s.AccessToken || a.gen.Load() != gen {
			return
		}
		if err := a.client.SignOut(ctx); err != nil {
			a.log.Warn("could not drop late session", zap.Error(err))
		}
	}
}

func (a *RemoteAuth) Restore(ctx context.Context) (*model.User, error) {
	s, err := guard(ctx, a.timeout, a.log, "get session", a.client.GetSession, nil)
	if err != nil {
		return nil, mapAuthError(err)
	}
	if s == nil {
		return nil, nil
	}
	return a.user(ctx, s.User), nil
}

func (a *RemoteAuth) Login(ctx context.Context, email, password string) (*model.User, error) {
	gen, done := a.begin()
	s, err := guard(ctx, a.timeout, a.log, "sign in", func(ctx context.Context) (*remote.Session, error) {
		defer done()
		return a.client.SignInWithPassword(ctx, email, password)
	}, a.lateSignOut(gen))
	if err != nil {
		return nil, mapAuthError(err)
	}
	return a.user(ctx, s.User), nil
}

type signUpResult struct {
	identity *remote.Identity
	session  *remote.Session
}

func (a *RemoteAuth) Register(ctx context.Context, email, password, name string) (*model.User, bool, error) {
	opts := remote.SignUpOptions{Name: name, RedirectTo: a.siteURL + EmailVerifiedPath}
	gen, done := a.begin()
	late := a.lateSignOut(gen)
	r, err := guard(ctx, a.timeout, a.log, "sign up", func(ctx context.Context) (signUpResult, error) {
		defer done()
		id, s, err := a.client.SignUp(ctx, email, password, opts)
		return signUpResult{id, s}, err
	}, func(r signUpResult) { late(r.session) })
	if err != nil {
		return nil, false, mapAuthError(err)
	}
	if r.session != nil {
		return a.user(ctx, r.session.User), true, nil
	}
	if r.identity == nil {
		return nil, false, apperr.ErrUnknown
	}
	// the profile row exists but the account waits for email confirmation
	return &model.User{ID: r.identity.ID, Email: r.identity.Email, Name: name, Role: model.RoleUser}, false, nil
}

func (a *RemoteAuth) Logout(ctx context.Context) error {
	_, done := a.begin()
	_, err := guard(ctx, a.timeout, a.log, "sign out", func(ctx context.Context) (struct{}, error) {
		defer done()
		return struct{}{}, a.client.SignOut(ctx)
	}, nil)
	return mapAuthError(err)
}

// ResetPassword sends the recovery email. A timeout is reported even though
// the email may still go out.
func (a *RemoteAuth) ResetPassword(ctx context.Context, email string) error {
	_, err := guard(ctx, a.timeout, a.log, "reset password", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.client.ResetPasswordForEmail(ctx, email, a.siteURL+ResetPasswordPath)
	}, nil)
	return mapAuthError(err)
}

func (a *RemoteAuth) Recover(ctx context.Context, token string) (*model.User, error) {
	gen, done := a.begin()
	s, err := guard(ctx, a.timeout, a.log, "verify recovery", func(ctx context.Context) (*remote.Session, error) {
		defer done()
		return a.client.VerifyRecovery(ctx, token)
	}, a.lateSignOut(gen))
	if err != nil {
		return nil, mapAuthError(err)
	}
	return a.user(ctx, s.User), nil
}

// UpdatePassword changes the password of the current backend session. A
// timeout is reported as a failure even if the change lands later.
func (a *RemoteAuth) UpdatePassword(ctx context.Context, password string) error {
	_, err := guard(ctx, a.timeout, a.log, "update user", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.client.UpdateUser(ctx, remote.UserAttributes{Password: password})
	}, nil)
	return mapAuthError(err)
}

// Watch follows the backend's auth changes, re-reading the role on each one.
// Changes caused by this process's own calls are left to the callers, which
// get the outcome from the call itself.
func (a *RemoteAuth) Watch(fn func(*model.User)) func() {
	return a.client.OnAuthStateChange(func(event remote.AuthEvent, s *remote.Session) {
		if a.inflight.Load() > 0 {
			a.log.Debug("auth change from own call", zap.String("event", string(event)))
			return
		}
		if s == nil {
			a.log.Debug("auth change", zap.String("event", string(event)))
			fn(nil)
			return
		}
		u := a.user(context.Background(), s.User)
		a.log.Debug("auth change", zap.String("event", string(event)), zap.String("user", u.Email))
		fn(u)
	})
}

var _ Authenticator = (*RemoteAuth)(nil)
