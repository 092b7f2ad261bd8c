package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/apperr"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/localstore"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/remote"
)

// configRowID is the id of the single row of the config table.
const configRowID = "site"

type registrationRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	EventID   string    `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

type configRow struct {
	ID string `json:"id"`
	model.SiteConfig
}

// RemoteBackend forwards every call to the hosted backend. Slot accounting
// and duplicate detection are left to the backend's constraints; this type
// only maps the errors. The local KV is used as config cache.
type RemoteBackend struct {
	client remote.TableClient
	cache  localstore.KV
	log    *zap.Logger
}

// NewRemoteBackend returns a RemoteBackend. cache may be nil, in which case
// config failures fall back to the defaults directly.
func NewRemoteBackend(client remote.TableClient, cache localstore.KV, log *zap.Logger) *RemoteBackend {
	if log == nil {
		log = zap.NewNop()
	}
	if cache == nil {
		cache = localstore.NewMemory()
	}
	return &RemoteBackend{client: client, cache: cache, log: log.Named("remote")}
}

func (b *RemoteBackend) Mode() Mode { return ModeRemote }

// mapError classifies backend errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, remote.ErrDuplicate):
		return apperr.Wrap(apperr.KindAlreadyRegistered, err)
	case errors.Is(err, remote.ErrNoRows):
		return apperr.Wrap(apperr.KindNotFound, err)
	case errors.Is(err, remote.ErrCheckViolation):
		return apperr.Wrap(apperr.KindSoldOut, err)
	case errors.Is(err, remote.ErrUndefinedTable):
		return apperr.Wrap(apperr.KindBackendUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindTimeout, err)
	default:
		return apperr.Wrap(apperr.KindUnknown, err)
	}
}

func (b *RemoteBackend) Events(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	if err := b.client.SelectAll(ctx, remote.TableEvents, &events); err != nil {
		return nil, mapError(err)
	}
	return events, nil
}

func (b *RemoteBackend) RegisterForEvent(ctx context.Context, userID string, eventID model.ID) error {
	row := registrationRow{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID.String(),
		CreatedAt: time.Now().UTC(),
	}
	return mapError(b.client.Insert(ctx, remote.TableRegistrations, row))
}

func (b *RemoteBackend) Registrations(ctx context.Context, userID string) ([]model.Registration, error) {
	var rows []registrationRow
	if err := b.client.SelectAll(ctx, remote.TableRegistrations, &rows); err != nil {
		return nil, mapError(err)
	}
	var out []model.Registration
	for _, r := range rows {
		if r.UserID != userID {
			continue
		}
		out = append(out, model.Registration{
			ID:        model.ID(r.ID),
			UserID:    r.UserID,
			EventID:   model.ID(r.EventID),
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// sanitizeEvent builds the row the backend schema accepts. UI-only fields
// such as the currency selector never reach the backend.
func sanitizeEvent(draft model.EventDraft, id model.ID) model.Event {
	e := draft.Event(id)
	e.Title = strings.TrimSpace(e.Title)
	e.Location = strings.TrimSpace(e.Location)
	e.Date.Month = strings.ToUpper(strings.TrimSpace(e.Date.Month))
	e.Date.Day = strings.TrimSpace(e.Date.Day)
	return e
}

func (b *RemoteBackend) CreateEvent(ctx context.Context, draft model.EventDraft) (*model.Event, error) {
	e := sanitizeEvent(draft, model.ID(uuid.NewString()))
	if err := b.client.Insert(ctx, remote.TableEvents, e); err != nil {
		return nil, mapError(err)
	}
	return &e, nil
}

func (b *RemoteBackend) DeleteEvent(ctx context.Context, id model.ID) error {
	return mapError(b.client.DeleteByID(ctx, remote.TableEvents, id.String()))
}

func (b *RemoteBackend) Team(ctx context.Context) ([]model.TeamMember, error) {
	var team []model.TeamMember
	if err := b.client.SelectAll(ctx, remote.TableTeam, &team); err != nil {
		return nil, mapError(err)
	}
	return team, nil
}

func (b *RemoteBackend) AddTeamMember(ctx context.Context, m model.TeamMember) (*model.TeamMember, error) {
	m.ID = model.ID(uuid.NewString())
	if err := b.client.Insert(ctx, remote.TableTeam, m); err != nil {
		return nil, mapError(err)
	}
	return &m, nil
}

func (b *RemoteBackend) DeleteTeamMember(ctx context.Context, id model.ID) error {
	return mapError(b.client.DeleteByID(ctx, remote.TableTeam, id.String()))
}

func (b *RemoteBackend) Gallery(ctx context.Context) ([]model.GalleryItem, error) {
	var items []model.GalleryItem
	if err := b.client.SelectAll(ctx, remote.TableGallery, &items); err != nil {
		return nil, mapError(err)
	}
	return items, nil
}

func (b *RemoteBackend) AddToGallery(ctx context.Context, item model.GalleryItem) (*model.GalleryItem, error) {
	item.ID = model.ID(uuid.NewString())
	if err := b.client.Insert(ctx, remote.TableGallery, item); err != nil {
		return nil, mapError(err)
	}
	return &item, nil
}

func (b *RemoteBackend) DeleteFromGallery(ctx context.Context, id model.ID) error {
	return mapError(b.client.DeleteByID(ctx, remote.TableGallery, id.String()))
}

// Config never fails: when the backend cannot serve the config (missing
// table, network error) the locally cached copy or the defaults are
// returned instead.
func (b *RemoteBackend) Config(ctx context.Context) (model.SiteConfig, error) {
	var row configRow
	err := b.client.SelectByID(ctx, remote.TableConfig, configRowID, &row)
	if err != nil {
		b.log.Warn("remote config unavailable, using local copy", zap.Error(err))
		return readCachedConfig(b.cache, b.log), nil
	}
	cfg := row.SiteConfig.Normalize()
	if err := localstore.SetJSON(b.cache, localstore.KeyConfig, cfg); err != nil {
		b.log.Warn("config cache write failed", zap.Error(err))
	}
	return cfg, nil
}

// UpdateConfig writes to the backend and the local cache. A backend failure
// is logged and absorbed: the cached copy is served until the backend
// accepts writes again.
func (b *RemoteBackend) UpdateConfig(ctx context.Context, cfg model.SiteConfig) error {
	remoteErr := b.client.Upsert(ctx, remote.TableConfig, configRow{ID: configRowID, SiteConfig: cfg})
	if remoteErr != nil {
		b.log.Warn("remote config update failed, saved locally", zap.Error(remoteErr))
	}
	if err := localstore.SetJSON(b.cache, localstore.KeyConfig, cfg); err != nil {
		if remoteErr != nil {
			return mapError(errors.Join(remoteErr, err))
		}
		b.log.Warn("config cache write failed", zap.Error(err))
	}
	return nil
}

var _ DataBackend = (*RemoteBackend)(nil)
