package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/apperr"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/localstore"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/remote"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/remote/remotetest"
)

// brokenBackend fails every call with err.
type brokenBackend struct {
	LocalBackend
	err error
}

func (b *brokenBackend) Events(context.Context) ([]model.Event, error) { return nil, b.err }
func (b *brokenBackend) Config(context.Context) (model.SiteConfig, error) {
	return model.SiteConfig{}, b.err
}
func (b *brokenBackend) RegisterForEvent(context.Context, string, model.ID) error { return b.err }

func TestOpen_SelectsBackend(t *testing.T) {
	s, err := Open(nil, localstore.NewMemory(), Options{})
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, s.Mode())

	s, err = Open(remotetest.New(), localstore.NewMemory(), Options{})
	require.NoError(t, err)
	assert.Equal(t, ModeRemote, s.Mode())
}

func TestStore_NormalizesUnknownErrors(t *testing.T) {
	cause := errors.New("disk on fire")
	s := New(&brokenBackend{err: cause}, nil, nil)

	_, err := s.ListEvents(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUnknown)
	assert.ErrorIs(t, err, cause)

	err = s.RegisterForEvent(context.Background(), "ana", "1")
	assert.ErrorIs(t, err, apperr.ErrUnknown)
}

func TestStore_GetConfigNeverFails(t *testing.T) {
	s := New(&brokenBackend{err: errors.New("nope")}, nil, nil)
	cfg := s.GetConfig(context.Background())
	assert.Equal(t, model.DefaultSiteConfig(), cfg)
	assert.NotNil(t, cfg.Payments)
}

func TestStore_RegisterRequiresUser(t *testing.T) {
	s, err := Open(nil, localstore.NewMemory(), Options{})
	require.NoError(t, err)

	assert.ErrorIs(t, s.RegisterForEvent(context.Background(), " ", "1"), apperr.ErrUnauthorized)
}

func TestStore_CreateEventValidation(t *testing.T) {
	s, err := Open(nil, localstore.NewMemory(), Options{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.CreateEvent(ctx, model.EventDraft{Title: "  "})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.CreateEvent(ctx, model.EventDraft{Title: "x", Slots: intPtr(-1)})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.CreateEvent(ctx, model.EventDraft{Title: "x", Type: "party"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStore_EventFilters(t *testing.T) {
	now := time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)
	s, err := Open(nil, localstore.NewMemory(), Options{Now: func() time.Time { return now }})
	require.NoError(t, err)
	ctx := context.Background()

	booking, err := s.BookingEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, booking, 2)

	realtime, err := s.RealtimeEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, realtime, 2)

	next, ok, err := s.NextUpcoming(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.ID("2"), next.ID)

	e, err := s.GetEvent(ctx, "102")
	require.NoError(t, err)
	assert.Equal(t, "Eclipse Solar Parcial", e.Title)

	_, err = s.GetEvent(ctx, "999")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStore_RemoteModeConfigFallback(t *testing.T) {
	fake := remotetest.New()
	fake.DropTable(remote.TableConfig)
	s, err := Open(fake, localstore.NewMemory(), Options{})
	require.NoError(t, err)

	cfg := s.GetConfig(context.Background())
	assert.Equal(t, model.DefaultSiteConfig(), cfg)
	assert.NoError(t, s.UpdateConfig(context.Background(), cfg))
}
