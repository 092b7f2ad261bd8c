package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/apperr"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/localstore"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
)

// Demo admin credential accepted by LocalAuth without a users table entry.
const (
	DemoAdminEmail    = "admin@cieloabierto.com"
	DemoAdminPassword = "admin123"
)

func demoAdmin() *model.User {
	return &model.User{ID: "admin", Email: DemoAdminEmail, Name: "Administrador", Role: model.RoleAdmin}
}

// LocalAuth authenticates against the users table of the local store and
// keeps the signed-in user under the currentUser key.
type LocalAuth struct {
	kv      localstore.KV
	latency localstore.Latency
	cost    int
	log     *zap.Logger

	mu sync.Mutex
}

// LocalAuthOption configures a LocalAuth.
type LocalAuthOption func(*LocalAuth)

// WithAuthLatency sets the simulated latency of every call.
func WithAuthLatency(l localstore.Latency) LocalAuthOption {
	return func(a *LocalAuth) { a.latency = l }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) LocalAuthOption {
	return func(a *LocalAuth) { a.cost = cost }
}

// WithAuthLogger sets the logger.
func WithAuthLogger(log *zap.Logger) LocalAuthOption {
	return func(a *LocalAuth) { a.log = log }
}

// NewLocalAuth returns a LocalAuth over kv.
func NewLocalAuth(kv localstore.KV, opts ...LocalAuthOption) *LocalAuth {
	a := &LocalAuth{
		kv:      kv,
		latency: localstore.DefaultLatency,
		cost:    bcrypt.DefaultCost,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.Named("local_auth")
	return a
}

// Restore reads the persisted user. A value that cannot be decoded is
// removed and reported as an error.
func (a *LocalAuth) Restore(ctx context.Context) (*model.User, error) {
	var u model.User
	ok, err := localstore.GetJSON(a.kv, localstore.KeyCurrentUser, &u)
	if err != nil {
		if delErr := a.kv.Delete(localstore.KeyCurrentUser); delErr != nil {
			a.log.Warn("could not clear stored session", zap.Error(delErr))
		}
		return nil, fmt.Errorf("stored session: %w", err)
	}
	if !ok || u.Email == "" {
		return nil, nil
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	return &u, nil
}

func (a *LocalAuth) users() ([]model.StoredUser, error) {
	var users []model.StoredUser
	if _, err := localstore.GetJSON(a.kv, localstore.KeyUsers, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func findUser(users []model.StoredUser, email string) int {
	for i := range users {
		if normalizeEmail(users[i].Email) == email {
			return i
		}
	}
	return -1
}

func (a *LocalAuth) signIn(u *model.User) error {
	return localstore.SetJSON(a.kv, localstore.KeyCurrentUser, u)
}

func (a *LocalAuth) Login(ctx context.Context, email, password string) (*model.User, error) {
	if err := a.latency.Wait(ctx); err != nil {
		return nil, err
	}
	var user *model.User
	if email == DemoAdminEmail && password == DemoAdminPassword {
		user = demoAdmin()
	} else {
		a.mu.Lock()
		users, err := a.users()
		a.mu.Unlock()
		if err != nil {
			return nil, err
		}
		i := findUser(users, email)
		if i < 0 {
			return nil, apperr.ErrInvalidCredentials
		}
		if err := bcrypt.CompareHashAndPassword([]byte(users[i].PasswordHash), []byte(password)); err != nil {
			return nil, apperr.ErrInvalidCredentials
		}
		u := users[i].User
		user = &u
	}
	if err := a.signIn(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (a *LocalAuth) Register(ctx context.Context, email, password, name string) (*model.User, bool, error) {
	if err := a.latency.Wait(ctx); err != nil {
		return nil, false, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, false, fmt.Errorf("hash password: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	users, err := a.users()
	if err != nil {
		return nil, false, err
	}
	if email == DemoAdminEmail || findUser(users, email) >= 0 {
		return nil, false, apperr.ErrUserExists
	}
	stored := model.StoredUser{
		User:         model.User{ID: uuid.NewString(), Email: email, Name: name, Role: model.RoleUser},
		PasswordHash: string(hash),
	}
	users = append(users, stored)
	if err := localstore.SetJSON(a.kv, localstore.KeyUsers, users); err != nil {
		return nil, false, err
	}
	user := stored.User
	if err := a.signIn(&user); err != nil {
		return nil, false, err
	}
	return &user, true, nil
}

func (a *LocalAuth) Logout(ctx context.Context) error {
	return a.kv.Delete(localstore.KeyCurrentUser)
}

// ResetPassword only simulates the delay of the hosted flow.
func (a *LocalAuth) ResetPassword(ctx context.Context, email string) error {
	return a.latency.Wait(ctx)
}

// Recover is not available without the hosted backend: no recovery email is
// ever sent in local mode.
func (a *LocalAuth) Recover(ctx context.Context, token string) (*model.User, error) {
	return nil, apperr.Newf(apperr.KindUnauthorized, "Enlace inválido o expirado. Por favor solicita un nuevo correo de recuperación.")
}

func (a *LocalAuth) UpdatePassword(ctx context.Context, password string) error {
	if err := a.latency.Wait(ctx); err != nil {
		return err
	}
	current, err := a.Restore(ctx)
	if err != nil {
		return err
	}
	if current == nil {
		return apperr.ErrUnauthorized
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	users, err := a.users()
	if err != nil {
		return err
	}
	i := findUser(users, normalizeEmail(current.Email))
	if i < 0 {
		return apperr.Newf(apperr.KindValidation, "La cuenta de demostración no puede cambiar su contraseña.")
	}
	users[i].PasswordHash = string(hash)
	return localstore.SetJSON(a.kv, localstore.KeyUsers, users)
}

// Watch has nothing to watch: only this process changes the local session.
func (a *LocalAuth) Watch(func(*model.User)) func() {
	return func() {}
}

var _ Authenticator = (*LocalAuth)(nil)
