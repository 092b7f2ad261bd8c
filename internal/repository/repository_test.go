package repository

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/database"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/remote"
)

const testSecret = "test-secret-with-enough-entropy-123"

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, remote.ErrNoRows},
		{"unique", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "registrations_user_event_key"}, remote.ErrDuplicate},
		{"check", &pgconn.PgError{Code: codeCheckViolation, ConstraintName: "events_slots_check"}, remote.ErrCheckViolation},
		{"foreign key", &pgconn.PgError{Code: codeForeignKeyViolation}, remote.ErrNoRows},
		{"undefined table", &pgconn.PgError{Code: codeUndefinedTable, Message: `relation "config" does not exist`}, remote.ErrUndefinedTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}

	assert.NoError(t, mapError(nil))
	other := errors.New("connection reset")
	assert.Equal(t, other, mapError(other))
}

func TestTableName(t *testing.T) {
	name, err := tableName(remote.TableEvents)
	require.NoError(t, err)
	assert.Equal(t, `"events"`, name)

	_, err = tableName("users; DROP TABLE events")
	assert.ErrorIs(t, err, remote.ErrUnknownTable)
}

func TestDocument(t *testing.T) {
	id, doc, err := document(map[string]any{"id": "42", "name": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.JSONEq(t, `{"id":"42","name":"Ana"}`, string(doc))

	id, doc, err = document(map[string]any{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, "7", id)
	assert.JSONEq(t, `{"id":7}`, string(doc))

	id, doc, err = document(map[string]any{"id": int64(1000000), "slots": 12})
	require.NoError(t, err)
	assert.Equal(t, "1000000", id)
	assert.JSONEq(t, `{"id":1000000,"slots":12}`, string(doc))

	id, doc, err = document(struct {
		Src string `json:"src"`
	}{Src: "m31.jpg"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Contains(t, string(doc), id)

	_, _, err = document([]string{"not", "an", "object"})
	assert.Error(t, err)
}

func TestTokens(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	b := New(nil, Options{JWTSecret: testSecret, SessionTTL: time.Hour, Now: func() time.Time { return now }})
	id := identity("user-1", "a@x.com", "Ana")

	token, exp, err := b.issue(id, purposeAccess, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	c, err := b.parse(token, purposeAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.Subject)
	assert.Equal(t, "a@x.com", c.Email)
	assert.Equal(t, "Ana", c.Name)

	t.Run("wrong purpose", func(t *testing.T) {
		_, err := b.parse(token, purposeRecovery)
		assert.ErrorIs(t, err, remote.ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := New(nil, Options{JWTSecret: "another-secret", Now: func() time.Time { return now }})
		_, err := other.parse(token, purposeAccess)
		assert.ErrorIs(t, err, remote.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := New(nil, Options{JWTSecret: testSecret, Now: func() time.Time { return now.Add(2 * time.Hour) }})
		_, err := later.parse(token, purposeAccess)
		assert.ErrorIs(t, err, remote.ErrInvalidToken)
	})
}

func TestSessionLifecycle(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	b := New(nil, Options{JWTSecret: testSecret, SessionTTL: time.Minute, Now: func() time.Time { return clock() }})
	ctx := context.Background()

	s, err := b.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	var events []remote.AuthEvent
	unsubscribe := b.OnAuthStateChange(func(e remote.AuthEvent, _ *remote.Session) {
		events = append(events, e)
	})

	started, err := b.startSession(identity("user-1", "a@x.com", "Ana"))
	require.NoError(t, err)
	got, err := b.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, started.AccessToken, got.AccessToken)

	require.NoError(t, b.SignOut(ctx))
	got, err = b.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, []remote.AuthEvent{remote.EventSignedOut}, events)

	unsubscribe()
	require.NoError(t, b.SignOut(ctx))
	assert.Len(t, events, 1)

	t.Run("expired session is dropped", func(t *testing.T) {
		_, err := b.startSession(identity("user-1", "a@x.com", "Ana"))
		require.NoError(t, err)
		clock = func() time.Time { return now.Add(2 * time.Minute) }
		got, err := b.GetSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("update without session", func(t *testing.T) {
		err := b.UpdateUser(ctx, remote.UserAttributes{Password: "secreto"})
		assert.ErrorIs(t, err, remote.ErrNoSession)
	})
}

type captureMailer struct {
	mu     sync.Mutex
	bodies []string
}

func (m *captureMailer) Send(_ context.Context, _, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies = append(m.bodies, body)
	return nil
}

func (m *captureMailer) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bodies) == 0 {
		return ""
	}
	return m.bodies[len(m.bodies)-1]
}

func recoveryToken(t *testing.T, body string) string {
	t.Helper()
	_, rest, ok := strings.Cut(body, "access_token=")
	require.True(t, ok, "no token in %q", body)
	raw, _, _ := strings.Cut(rest, "&type=")
	token, err := url.QueryUnescape(raw)
	require.NoError(t, err)
	return token
}

func setupTestDB(t *testing.T) (*Backend, *captureMailer) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping integration test. Set TEST_DATABASE_URL to run.")
	}
	ctx := context.Background()
	cfg := database.DefaultConfig(dsn)
	cfg.ConnectAttempts = 1
	pool, err := database.NewPool(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool, true, zap.NewNop()))
	_, err = pool.Exec(ctx, `TRUNCATE registrations, events, profiles, team, gallery, config, auth_users CASCADE`)
	require.NoError(t, err)

	mailer := &captureMailer{}
	return New(pool, Options{JWTSecret: testSecret, Mailer: mailer, Logger: zap.NewNop()}), mailer
}

func TestIntegration_Booking(t *testing.T) {
	b, _ := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, b.Insert(ctx, remote.TableEvents, map[string]any{
		"id": "1", "title": "Noche de Júpiter", "type": "booking", "slots": 1,
	}))

	require.NoError(t, b.Insert(ctx, remote.TableRegistrations, map[string]any{"user_id": "u1", "event_id": "1"}))

	err := b.Insert(ctx, remote.TableRegistrations, map[string]any{"user_id": "u1", "event_id": "1"})
	assert.ErrorIs(t, err, remote.ErrDuplicate)

	err = b.Insert(ctx, remote.TableRegistrations, map[string]any{"user_id": "u2", "event_id": "1"})
	assert.ErrorIs(t, err, remote.ErrCheckViolation)

	err = b.Insert(ctx, remote.TableRegistrations, map[string]any{"user_id": "u2", "event_id": "404"})
	assert.ErrorIs(t, err, remote.ErrNoRows)

	var ev struct {
		Slots int `json:"slots"`
	}
	require.NoError(t, b.SelectByID(ctx, remote.TableEvents, "1", &ev))
	assert.Equal(t, 0, ev.Slots)

	var regs []registrationRow
	require.NoError(t, b.SelectAll(ctx, remote.TableRegistrations, &regs))
	require.Len(t, regs, 1)
	assert.Equal(t, "u1", regs[0].UserID)
}

func TestIntegration_ConcurrentBooking(t *testing.T) {
	b, _ := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, b.Insert(ctx, remote.TableEvents, map[string]any{"id": "7", "type": "booking", "slots": 5}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := b.Insert(ctx, remote.TableRegistrations, map[string]any{"user_id": "u" + string(rune('a'+i)), "event_id": "7"})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, ok)
}

func TestIntegration_AuthFlow(t *testing.T) {
	b, mailer := setupTestDB(t)
	ctx := context.Background()

	id, s, err := b.SignUp(ctx, "A@X.com", "pw123", remote.SignUpOptions{Name: "Ana", RedirectTo: "https://cielo.test/email-verified"})
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "a@x.com", id.Email)
	assert.Contains(t, mailer.last(), "https://cielo.test/email-verified")

	var profile struct {
		Role string `json:"role"`
	}
	require.NoError(t, b.SelectByID(ctx, remote.TableProfiles, id.ID, &profile))
	assert.Equal(t, "user", profile.Role)

	_, _, err = b.SignUp(ctx, "a@x.com", "other", remote.SignUpOptions{})
	assert.ErrorIs(t, err, remote.ErrUserExists)

	_, err = b.SignInWithPassword(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, remote.ErrInvalidLogin)
	s, err = b.SignInWithPassword(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	assert.Equal(t, "Ana", s.User.FullName())

	require.NoError(t, b.SignOut(ctx))
	require.NoError(t, b.ResetPasswordForEmail(ctx, "nobody@x.com", "https://cielo.test/reset-password"))
	require.NoError(t, b.ResetPasswordForEmail(ctx, "a@x.com", "https://cielo.test/reset-password"))
	token := recoveryToken(t, mailer.last())

	s, err = b.VerifyRecovery(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, id.ID, s.User.ID)
	_, err = b.VerifyRecovery(ctx, token)
	assert.ErrorIs(t, err, remote.ErrInvalidToken)

	require.NoError(t, b.UpdateUser(ctx, remote.UserAttributes{Password: "nueva123"}))
	_, err = b.SignInWithPassword(ctx, "a@x.com", "nueva123")
	assert.NoError(t, err)
}
