// Package store is the data access facade used by the UI. It exposes one
// API over events, registrations, team, gallery and site config, backed by
// either the hosted backend or the local mock store.
//
// All reads are bulk reads of a whole collection. That is fine for the few
// dozen rows of a single deployment and is the scale limit of this package.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/apperr"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/calendar"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/localstore"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/remote"
)

// Mode tells which backend serves the store.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// DataBackend is implemented by the local mock and the remote backend.
type DataBackend interface {
	Mode() Mode

	Events(ctx context.Context) ([]model.Event, error)
	RegisterForEvent(ctx context.Context, userID string, eventID model.ID) error
	Registrations(ctx context.Context, userID string) ([]model.Registration, error)
	CreateEvent(ctx context.Context, draft model.EventDraft) (*model.Event, error)
	DeleteEvent(ctx context.Context, id model.ID) error

	Team(ctx context.Context) ([]model.TeamMember, error)
	AddTeamMember(ctx context.Context, m model.TeamMember) (*model.TeamMember, error)
	DeleteTeamMember(ctx context.Context, id model.ID) error

	Gallery(ctx context.Context) ([]model.GalleryItem, error)
	AddToGallery(ctx context.Context, item model.GalleryItem) (*model.GalleryItem, error)
	DeleteFromGallery(ctx context.Context, id model.ID) error

	Config(ctx context.Context) (model.SiteConfig, error)
	UpdateConfig(ctx context.Context, cfg model.SiteConfig) error
}

// Options configures Open.
type Options struct {
	Logger  *zap.Logger
	Latency localstore.Latency
	Now     func() time.Time
}

// Open picks the backend once: the remote one when client is not nil, the
// local mock otherwise. In remote mode kv only caches the site config.
func Open(client remote.TableClient, kv localstore.KV, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	var backend DataBackend
	if client != nil {
		backend = NewRemoteBackend(client, kv, opts.Logger)
	} else {
		local, err := OpenLocal(kv, WithLatency(opts.Latency), WithClock(opts.Now), WithLogger(opts.Logger))
		if err != nil {
			return nil, err
		}
		backend = local
	}
	return New(backend, opts.Logger, opts.Now), nil
}

// Store wraps a DataBackend and turns every failure into an apperr error.
type Store struct {
	backend DataBackend
	log     *zap.Logger
	now     func() time.Time
}

// New constructs a Store over backend.
func New(backend DataBackend, log *zap.Logger, now func() time.Time) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Store{backend: backend, log: log.Named("store"), now: now}
}

// Mode reports which backend is active.
func (s *Store) Mode() Mode { return s.backend.Mode() }

func (s *Store) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	err = apperr.Normalize(err)
	if errors.Is(err, apperr.ErrUnknown) || errors.Is(err, apperr.ErrBackendUnavailable) {
		s.log.Error(op+" failed", zap.String("mode", string(s.Mode())), zap.Error(err))
	} else {
		s.log.Debug(op+" rejected", zap.String("mode", string(s.Mode())), zap.Error(err))
	}
	return err
}

// ListEvents returns every event in storage order.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := s.backend.Events(ctx)
	if err != nil {
		return nil, s.fail("list events", err)
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

// BookingEvents returns the reservable events.
func (s *Store) BookingEvents(ctx context.Context) ([]model.Event, error) {
	return s.filterEvents(ctx, true)
}

// RealtimeEvents returns the global astronomical events.
func (s *Store) RealtimeEvents(ctx context.Context) ([]model.Event, error) {
	return s.filterEvents(ctx, false)
}

func (s *Store) filterEvents(ctx context.Context, booking bool) ([]model.Event, error) {
	events, err := s.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.IsBooking() == booking {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetEvent returns the event with the given id.
func (s *Store) GetEvent(ctx context.Context, id model.ID) (*model.Event, error) {
	events, err := s.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	for i := range events {
		if events[i].ID == id {
			return &events[i], nil
		}
	}
	return nil, apperr.ErrNotFound
}

// NextUpcoming returns the earliest booking event still ahead.
func (s *Store) NextUpcoming(ctx context.Context) (model.Event, bool, error) {
	events, err := s.ListEvents(ctx)
	if err != nil {
		return model.Event{}, false, err
	}
	e, ok := calendar.NextUpcoming(events, s.now())
	return e, ok, nil
}

// RegisterForEvent books one slot of eventID for userID.
func (s *Store) RegisterForEvent(ctx context.Context, userID string, eventID model.ID) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperr.ErrUnauthorized
	}
	if eventID == "" {
		return apperr.ErrNotFound
	}
	return s.fail("register for event", s.backend.RegisterForEvent(ctx, userID, eventID))
}

// Registrations returns the registrations of userID.
func (s *Store) Registrations(ctx context.Context, userID string) ([]model.Registration, error) {
	regs, err := s.backend.Registrations(ctx, userID)
	if err != nil {
		return nil, s.fail("list registrations", err)
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	return regs, nil
}

// CreateEvent validates and stores a new event.
func (s *Store) CreateEvent(ctx context.Context, draft model.EventDraft) (*model.Event, error) {
	draft.Title = strings.TrimSpace(draft.Title)
	if draft.Title == "" {
		return nil, apperr.Validation("El título es obligatorio")
	}
	if draft.Type != "" && draft.Type != model.EventBooking && draft.Type != model.EventRealtime {
		return nil, apperr.Validation("Tipo de evento inválido")
	}
	if draft.Slots != nil && *draft.Slots < 0 {
		return nil, apperr.Validation("Los cupos no pueden ser negativos")
	}
	if draft.Price != nil && *draft.Price < 0 {
		return nil, apperr.Validation("El precio no puede ser negativo")
	}
	e, err := s.backend.CreateEvent(ctx, draft)
	if err != nil {
		return nil, s.fail("create event", err)
	}
	s.log.Info("event created", zap.String("id", e.ID.String()), zap.String("title", e.Title))
	return e, nil
}

// DeleteEvent removes an event.
func (s *Store) DeleteEvent(ctx context.Context, id model.ID) error {
	return s.fail("delete event", s.backend.DeleteEvent(ctx, id))
}

// ListTeam returns every team member.
func (s *Store) ListTeam(ctx context.Context) ([]model.TeamMember, error) {
	team, err := s.backend.Team(ctx)
	if err != nil {
		return nil, s.fail("list team", err)
	}
	if team == nil {
		team = []model.TeamMember{}
	}
	return team, nil
}

// AddTeamMember stores a new team member.
func (s *Store) AddTeamMember(ctx context.Context, m model.TeamMember) (*model.TeamMember, error) {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return nil, apperr.Validation("El nombre es obligatorio")
	}
	out, err := s.backend.AddTeamMember(ctx, m)
	if err != nil {
		return nil, s.fail("add team member", err)
	}
	return out, nil
}

// DeleteTeamMember removes a team member.
func (s *Store) DeleteTeamMember(ctx context.Context, id model.ID) error {
	return s.fail("delete team member", s.backend.DeleteTeamMember(ctx, id))
}

// ListGallery returns every gallery item.
func (s *Store) ListGallery(ctx context.Context) ([]model.GalleryItem, error) {
	items, err := s.backend.Gallery(ctx)
	if err != nil {
		return nil, s.fail("list gallery", err)
	}
	if items == nil {
		items = []model.GalleryItem{}
	}
	return items, nil
}

// AddToGallery stores a new photo.
func (s *Store) AddToGallery(ctx context.Context, item model.GalleryItem) (*model.GalleryItem, error) {
	item.Src = strings.TrimSpace(item.Src)
	if item.Src == "" {
		return nil, apperr.Validation("La imagen es obligatoria")
	}
	out, err := s.backend.AddToGallery(ctx, item)
	if err != nil {
		return nil, s.fail("add to gallery", err)
	}
	return out, nil
}

// DeleteFromGallery removes a photo.
func (s *Store) DeleteFromGallery(ctx context.Context, id model.ID) error {
	return s.fail("delete from gallery", s.backend.DeleteFromGallery(ctx, id))
}

// GetConfig always returns a well-formed config. Backend failures fall back
// to the defaults.
func (s *Store) GetConfig(ctx context.Context) model.SiteConfig {
	cfg, err := s.backend.Config(ctx)
	if err != nil {
		s.log.Warn("config unavailable, using defaults", zap.Error(err))
		return model.DefaultSiteConfig()
	}
	return cfg.Normalize()
}

// UpdateConfig replaces the site config.
func (s *Store) UpdateConfig(ctx context.Context, cfg model.SiteConfig) error {
	return s.fail("update config", s.backend.UpdateConfig(ctx, cfg.Normalize()))
}
