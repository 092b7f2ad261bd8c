package repository

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/remote"
)

// Token purposes.
const (
	purposeAccess   = "access"
	purposeRecovery = "recovery"
)

// recoveryTTL bounds the validity of a password-recovery link.
const recoveryTTL = time.Hour

type claims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func (b *Backend) issue(id remote.Identity, purpose string, ttl time.Duration) (string, time.Time, error) {
	now := b.now()
	exp := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email:   id.Email,
		Name:    id.FullName(),
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(b.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (b *Backend) parse(token, purpose string) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(b.now))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, remote.ErrInvalidToken)
	}
	if c.Purpose != purpose {
		return nil, fmt.Errorf("token purpose %q: %w", c.Purpose, remote.ErrInvalidToken)
	}
	return c, nil
}

func (b *Backend) startSession(id remote.Identity) (*remote.Session, error) {
	token, exp, err := b.issue(id, purposeAccess, b.ttl)
	if err != nil {
		return nil, err
	}
	s := &remote.Session{AccessToken: token, ExpiresAt: exp, User: id}
	b.mu.Lock()
	b.session = s
	b.mu.Unlock()
	return s, nil
}

func (b *Backend) notify(event remote.AuthEvent, s *remote.Session) {
	b.mu.Lock()
	ls := make([]remote.AuthListener, 0, len(b.listeners))
	for _, l := range b.listeners {
		ls = append(ls, l)
	}
	b.mu.Unlock()
	for _, l := range ls {
		l(event, s)
	}
}

func identity(id, email, name string) remote.Identity {
	return remote.Identity{ID: id, Email: email, Metadata: map[string]string{"full_name": name}}
}

// SignInWithPassword verifies the credentials and starts a session.
func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*remote.Session, error) {
	var id, stored, hash, name string
	err := b.db.QueryRow(ctx,
		`SELECT id, email, password_hash, full_name FROM auth_users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&id, &stored, &hash, &name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, remote.ErrInvalidLogin
		}
		return nil, mapError(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, remote.ErrInvalidLogin
	}
	s, err := b.startSession(identity(id, stored, name))
	if err != nil {
		return nil, err
	}
	b.log.Info("user signed in", zap.String("user_id", id))
	b.notify(remote.EventSignedIn, s)
	return s, nil
}

// SignUp creates the identity and its profile row, then signs it in.
func (b *Backend) SignUp(ctx context.Context, email, password string, opts remote.SignUpOptions) (_ *remote.Identity, _ *remote.Session, err error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	id := identity(uuid.NewString(), email, opts.Name)

	tx, err := b.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO auth_users (id, email, password_hash, full_name) VALUES ($1, $2, $3, $4)`,
		id.ID, email, string(hash), opts.Name,
	)
	if err != nil {
		if errors.Is(mapError(err), remote.ErrDuplicate) {
			err = remote.ErrUserExists
			return nil, nil, err
		}
		return nil, nil, mapError(err)
	}
	_, doc, err := document(map[string]any{"id": id.ID, "email": email, "full_name": opts.Name, "role": "user"})
	if err != nil {
		return nil, nil, err
	}
	if _, err = tx.Exec(ctx, `INSERT INTO profiles (id, doc) VALUES ($1, $2)`, id.ID, doc); err != nil {
		return nil, nil, mapError(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit transaction: %w", err)
	}

	if opts.RedirectTo != "" {
		body := fmt.Sprintf("Hola %s, tu cuenta está lista. Continúa en %s", opts.Name, opts.RedirectTo)
		if mailErr := b.mailer.Send(ctx, email, "Bienvenido a Cielo Abierto", body); mailErr != nil {
			b.log.Warn("welcome email failed", zap.Error(mailErr))
		}
	}

	s, err := b.startSession(id)
	if err != nil {
		return nil, nil, err
	}
	b.log.Info("user signed up", zap.String("user_id", id.ID))
	b.notify(remote.EventSignedIn, s)
	return &id, s, nil
}

// SignOut ends the current session.
func (b *Backend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	b.session = nil
	b.mu.Unlock()
	b.notify(remote.EventSignedOut, nil)
	return nil
}

// GetSession returns the current session while its token is valid.
func (b *Backend) GetSession(ctx context.Context) (*remote.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil, nil
	}
	if _, err := b.parse(b.session.AccessToken, purposeAccess); err != nil {
		b.log.Debug("session expired", zap.Error(err))
		b.session = nil
		return nil, nil
	}
	s := *b.session
	return &s, nil
}

// OnAuthStateChange registers fn for auth changes.
func (b *Backend) OnAuthStateChange(fn remote.AuthListener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// ResetPasswordForEmail mails a recovery link. Unknown addresses are ignored
// so the response does not reveal which emails have an account.
func (b *Backend) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var id, name string
	email = strings.ToLower(strings.TrimSpace(email))
	err := b.db.QueryRow(ctx, `SELECT id, full_name FROM auth_users WHERE email = $1`, email).Scan(&id, &name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			b.log.Debug("recovery requested for unknown email")
			return nil
		}
		return mapError(err)
	}
	token, _, err := b.issue(identity(id, email, name), purposeRecovery, recoveryTTL)
	if err != nil {
		return err
	}
	link := redirectTo + "#access_token=" + url.QueryEscape(token) + "&type=recovery"
	body := fmt.Sprintf("Para restablecer tu contraseña abre %s", link)
	return b.mailer.Send(ctx, email, "Recupera tu contraseña", body)
}

// VerifyRecovery exchanges a recovery token for a session. Each token works
// once.
func (b *Backend) VerifyRecovery(ctx context.Context, token string) (*remote.Session, error) {
	c, err := b.parse(token, purposeRecovery)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	if b.used[c.ID] {
		b.mu.Unlock()
		return nil, fmt.Errorf("token already used: %w", remote.ErrInvalidToken)
	}
	b.used[c.ID] = true
	b.mu.Unlock()

	var email, name string
	err = b.db.QueryRow(ctx, `SELECT email, full_name FROM auth_users WHERE id = $1`, c.Subject).Scan(&email, &name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", c.Subject, remote.ErrInvalidToken)
		}
		return nil, mapError(err)
	}
	s, err := b.startSession(identity(c.Subject, email, name))
	if err != nil {
		return nil, err
	}
	b.notify(remote.EventPasswordRecovery, s)
	return s, nil
}

// UpdateUser changes the password of the signed-in user.
func (b *Backend) UpdateUser(ctx context.Context, attrs remote.UserAttributes) error {
	s, err := b.GetSession(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		return remote.ErrNoSession
	}
	if attrs.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(attrs.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		tag, err := b.db.Exec(ctx, `UPDATE auth_users SET password_hash = $1 WHERE id = $2`, string(hash), s.User.ID)
		if err != nil {
			return mapError(err)
		}
		if tag.RowsAffected() == 0 {
			return remote.ErrNoSession
		}
	}
	b.log.Info("user updated", zap.String("user_id", s.User.ID))
	b.notify(remote.EventUserUpdated, s)
	return nil
}
