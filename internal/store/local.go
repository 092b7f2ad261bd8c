package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/apperr"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/localstore"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
)

// LocalBackend is the mock backend used when no remote backend is
// configured. Every call waits for the configured latency first.
//
// Read-modify-write sequences hold mu, which makes them atomic within this
// process. Two processes sharing the same KV (file directory or Redis) can
// still interleave and overbook; there is no cross-process locking.
type LocalBackend struct {
	kv      localstore.KV
	latency localstore.Latency
	now     func() time.Time
	log     *zap.Logger

	mu sync.Mutex
}

// LocalOption configures a LocalBackend.
type LocalOption func(*LocalBackend)

// WithLatency sets the simulated latency.
func WithLatency(l localstore.Latency) LocalOption {
	return func(b *LocalBackend) { b.latency = l }
}

// WithClock sets the clock used for registration timestamps.
func WithClock(now func() time.Time) LocalOption {
	return func(b *LocalBackend) { b.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) LocalOption {
	return func(b *LocalBackend) { b.log = log }
}

// OpenLocal returns a LocalBackend over kv after migrating its content to
// SchemaVersion.
func OpenLocal(kv localstore.KV, opts ...LocalOption) (*LocalBackend, error) {
	b := &LocalBackend{
		kv:      kv,
		latency: localstore.DefaultLatency,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.Named("local")
	if err := migrate(kv, b.log); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *LocalBackend) Mode() Mode { return ModeLocal }

func (b *LocalBackend) events() ([]model.Event, error) {
	var events []model.Event
	ok, err := localstore.GetJSON(b.kv, localstore.KeyEvents, &events)
	if err != nil {
		return nil, err
	}
	if !ok {
		// storage was cleared after migration
		events = seedEvents()
		if err := localstore.SetJSON(b.kv, localstore.KeyEvents, events); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (b *LocalBackend) Events(ctx context.Context) ([]model.Event, error) {
	if err := b.latency.Wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events()
}

// RegisterForEvent checks, in order, duplicate registration, unknown event
// and exhausted slots, then decrements the slots and records the
// registration.
func (b *LocalBackend) RegisterForEvent(ctx context.Context, userID string, eventID model.ID) error {
	if err := b.latency.Wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var regs []model.Registration
	if _, err := localstore.GetJSON(b.kv, localstore.KeyRegistrations, &regs); err != nil {
		return err
	}
	for _, r := range regs {
		if r.UserID == userID && r.EventID == eventID {
			return apperr.ErrAlreadyRegistered
		}
	}

	events, err := b.events()
	if err != nil {
		return err
	}
	idx := -1
	for i := range events {
		if events[i].ID == eventID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return apperr.ErrNotFound
	}
	if events[idx].Remaining() <= 0 {
		return apperr.ErrSoldOut
	}

	slots := events[idx].Remaining() - 1
	events[idx].Slots = &slots
	if err := localstore.SetJSON(b.kv, localstore.KeyEvents, events); err != nil {
		return err
	}

	regs = append(regs, model.Registration{
		ID:        model.ID(uuid.NewString()),
		UserID:    userID,
		EventID:   eventID,
		CreatedAt: b.now().UTC(),
	})
	if err := localstore.SetJSON(b.kv, localstore.KeyRegistrations, regs); err != nil {
		// give the slot back so the two keys stay consistent
		slots++
		events[idx].Slots = &slots
		if rbErr := localstore.SetJSON(b.kv, localstore.KeyEvents, events); rbErr != nil {
			b.log.Error("slot rollback failed", zap.String("event_id", eventID.String()), zap.Error(rbErr))
		}
		return err
	}
	b.log.Info("registration created",
		zap.String("event_id", eventID.String()),
		zap.String("user_id", userID),
		zap.Int("slots_left", slots),
	)
	return nil
}

func (b *LocalBackend) Registrations(ctx context.Context, userID string) ([]model.Registration, error) {
	if err := b.latency.Wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var regs []model.Registration
	if _, err := localstore.GetJSON(b.kv, localstore.KeyRegistrations, &regs); err != nil {
		return nil, err
	}
	var out []model.Registration
	for _, r := range regs {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *LocalBackend) CreateEvent(ctx context.Context, draft model.EventDraft) (*model.Event, error) {
	if err := b.latency.Wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	events, err := b.events()
	if err != nil {
		return nil, err
	}
	e := draft.Event(model.ID(uuid.NewString()))
	events = append(events, e)
	if err := localstore.SetJSON(b.kv, localstore.KeyEvents, events); err != nil {
		return nil, err
	}
	return &e, nil
}

func (b *LocalBackend) DeleteEvent(ctx context.Context, id model.ID) error {
	if err := b.latency.Wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	events, err := b.events()
	if err != nil {
		return err
	}
	return localstore.SetJSON(b.kv, localstore.KeyEvents, removeByID(events, id, func(e model.Event) model.ID { return e.ID }))
}

func (b *LocalBackend) Team(ctx context.Context) ([]model.TeamMember, error) {
	if err := b.latency.Wait(ctx); err != nil {
		return nil, err
	}
	var team []model.TeamMember
	_, err := localstore.GetJSON(b.kv, localstore.KeyTeam, &team)
	return team, err
}

func (b *LocalBackend) AddTeamMember(ctx context.Context, m model.TeamMember) (*model.TeamMember, error) {
	if err := b.latency.Wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var team []model.TeamMember
	if _, err := localstore.GetJSON(b.kv, localstore.KeyTeam, &team); err != nil {
		return nil, err
	}
	m.ID = model.ID(uuid.NewString())
	team = append(team, m)
	if err := localstore.SetJSON(b.kv, localstore.KeyTeam, team); err != nil {
		return nil, err
	}
	return &m, nil
}

func (b *LocalBackend) DeleteTeamMember(ctx context.Context, id model.ID) error {
	if err := b.latency.Wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var team []model.TeamMember
	if _, err := localstore.GetJSON(b.kv, localstore.KeyTeam, &team); err != nil {
		return err
	}
	return localstore.SetJSON(b.kv, localstore.KeyTeam, removeByID(team, id, func(m model.TeamMember) model.ID { return m.ID }))
}

func (b *LocalBackend) Gallery(ctx context.Context) ([]model.GalleryItem, error) {
	if err := b.latency.Wait(ctx); err != nil {
		return nil, err
	}
	var items []model.GalleryItem
	_, err := localstore.GetJSON(b.kv, localstore.KeyGallery, &items)
	return items, err
}

func (b *LocalBackend) AddToGallery(ctx context.Context, item model.GalleryItem) (*model.GalleryItem, error) {
	if err := b.latency.Wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var items []model.GalleryItem
	if _, err := localstore.GetJSON(b.kv, localstore.KeyGallery, &items); err != nil {
		return nil, err
	}
	item.ID = model.ID(uuid.NewString())
	items = append(items, item)
	if err := localstore.SetJSON(b.kv, localstore.KeyGallery, items); err != nil {
		return nil, err
	}
	return &item, nil
}

func (b *LocalBackend) DeleteFromGallery(ctx context.Context, id model.ID) error {
	if err := b.latency.Wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var items []model.GalleryItem
	if _, err := localstore.GetJSON(b.kv, localstore.KeyGallery, &items); err != nil {
		return err
	}
	return localstore.SetJSON(b.kv, localstore.KeyGallery, removeByID(items, id, func(g model.GalleryItem) model.ID { return g.ID }))
}

// Config returns the stored config, or the defaults when none is stored or
// the stored value is unreadable.
func (b *LocalBackend) Config(ctx context.Context) (model.SiteConfig, error) {
	if err := b.latency.Wait(ctx); err != nil {
		return model.SiteConfig{}, err
	}
	return readCachedConfig(b.kv, b.log), nil
}

func (b *LocalBackend) UpdateConfig(ctx context.Context, cfg model.SiteConfig) error {
	if err := b.latency.Wait(ctx); err != nil {
		return err
	}
	return localstore.SetJSON(b.kv, localstore.KeyConfig, cfg)
}

func readCachedConfig(kv localstore.KV, log *zap.Logger) model.SiteConfig {
	var cfg model.SiteConfig
	ok, err := localstore.GetJSON(kv, localstore.KeyConfig, &cfg)
	if err != nil {
		log.Warn("stored config unreadable, using defaults", zap.Error(err))
		return model.DefaultSiteConfig()
	}
	if !ok {
		return model.DefaultSiteConfig()
	}
	return cfg.Normalize()
}

func removeByID[T any](items []T, id model.ID, key func(T) model.ID) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if key(it) != id {
			out = append(out, it)
		}
	}
	return out
}

var _ DataBackend = (*LocalBackend)(nil)
