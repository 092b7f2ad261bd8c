package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/apperr"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/calendar"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
)

const msgAdminOnly = "Acceso restringido a administradores."

var validate = validator.New(validator.WithRequiredStructEnabled())

// CatalogStore is the part of the store the admin panel needs.
type CatalogStore interface {
	BookingEvents(ctx context.Context) ([]model.Event, error)
	CreateEvent(ctx context.Context, draft model.EventDraft) (*model.Event, error)
	DeleteEvent(ctx context.Context, id model.ID) error
	ListTeam(ctx context.Context) ([]model.TeamMember, error)
	AddTeamMember(ctx context.Context, m model.TeamMember) (*model.TeamMember, error)
	DeleteTeamMember(ctx context.Context, id model.ID) error
	ListGallery(ctx context.Context) ([]model.GalleryItem, error)
	AddToGallery(ctx context.Context, item model.GalleryItem) (*model.GalleryItem, error)
	DeleteFromGallery(ctx context.Context, id model.ID) error
	GetConfig(ctx context.Context) model.SiteConfig
	UpdateConfig(ctx context.Context, cfg model.SiteConfig) error
}

// Dashboard is everything the admin panel shows.
type Dashboard struct {
	Events  []model.Event       `json:"events"`
	Team    []model.TeamMember  `json:"team"`
	Gallery []model.GalleryItem `json:"gallery"`
	Config  model.SiteConfig    `json:"config"`
}

// EventForm is the admin form for a new event. Date comes from a date input
// (YYYY-MM-DD); Address is appended to Location.
type EventForm struct {
	Title       string   `json:"title" validate:"required,max=120"`
	Date        string   `json:"date" validate:"required"`
	Time        string   `json:"time" validate:"max=20"`
	Location    string   `json:"location" validate:"max=200"`
	Address     string   `json:"address,omitempty" validate:"max=200"`
	Image       string   `json:"image,omitempty"`
	Price       *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	Currency    string   `json:"currency,omitempty" validate:"omitempty,len=3,uppercase"`
	Description string   `json:"description,omitempty" validate:"max=2000"`
}

// Draft converts the form into a booking event draft.
func (f EventForm) Draft() (model.EventDraft, error) {
	if err := validate.Struct(f); err != nil {
		return model.EventDraft{}, apperr.Validation(formMessage(err))
	}
	date, ok := calendar.ParseFormDate(f.Date)
	if !ok {
		return model.EventDraft{}, apperr.Validation("Fecha inválida")
	}
	location := strings.TrimSpace(f.Location)
	if addr := strings.TrimSpace(f.Address); addr != "" {
		location += ", " + addr
	}
	return model.EventDraft{
		Title:       f.Title,
		Date:        date,
		Location:    location,
		Time:        f.Time,
		Type:        model.EventBooking,
		Price:       f.Price,
		Currency:    f.Currency,
		Description: f.Description,
		Image:       f.Image,
	}, nil
}

// formMessage names the first rejected field of the form.
func formMessage(err error) string {
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		return "Campo inválido: " + strings.ToLower(fields[0].Field())
	}
	return "Formulario inválido"
}

// Admin guards the catalog operations behind the admin role.
type Admin struct {
	store CatalogStore
	users CurrentUser
	log   *zap.Logger
}

// NewAdmin constructs Admin.
func NewAdmin(store CatalogStore, users CurrentUser, log *zap.Logger) *Admin {
	if log == nil {
		log = zap.NewNop()
	}
	return &Admin{store: store, users: users, log: log.Named("admin")}
}

func (a *Admin) authorize() error {
	u := a.users.User()
	if u == nil {
		return apperr.ErrUnauthorized
	}
	if !u.IsAdmin() {
		return apperr.Newf(apperr.KindForbidden, msgAdminOnly)
	}
	return nil
}

// Dashboard loads booking events, team, gallery and config in parallel.
func (a *Admin) Dashboard(ctx context.Context) (*Dashboard, error) {
	if err := a.authorize(); err != nil {
		return nil, err
	}
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Events, err = a.store.BookingEvents(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Team, err = a.store.ListTeam(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Gallery, err = a.store.ListGallery(gctx)
		return err
	})
	g.Go(func() error {
		d.Config = a.store.GetConfig(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		a.log.Error("dashboard load failed", zap.Error(err))
		return nil, err
	}
	return &d, nil
}

// CreateEvent creates a booking event from the admin form.
func (a *Admin) CreateEvent(ctx context.Context, form EventForm) (*model.Event, error) {
	if err := a.authorize(); err != nil {
		return nil, err
	}
	draft, err := form.Draft()
	if err != nil {
		return nil, err
	}
	return a.store.CreateEvent(ctx, draft)
}

// DeleteEvent removes an event.
func (a *Admin) DeleteEvent(ctx context.Context, id model.ID) error {
	if err := a.authorize(); err != nil {
		return err
	}
	return a.store.DeleteEvent(ctx, id)
}

// AddTeamMember adds a team member.
func (a *Admin) AddTeamMember(ctx context.Context, m model.TeamMember) (*model.TeamMember, error) {
	if err := a.authorize(); err != nil {
		return nil, err
	}
	return a.store.AddTeamMember(ctx, m)
}

// DeleteTeamMember removes a team member.
func (a *Admin) DeleteTeamMember(ctx context.Context, id model.ID) error {
	if err := a.authorize(); err != nil {
		return err
	}
	return a.store.DeleteTeamMember(ctx, id)
}

// AddToGallery adds a gallery image.
func (a *Admin) AddToGallery(ctx context.Context, item model.GalleryItem) (*model.GalleryItem, error) {
	if err := a.authorize(); err != nil {
		return nil, err
	}
	return a.store.AddToGallery(ctx, item)
}

// DeleteFromGallery removes a gallery image.
func (a *Admin) DeleteFromGallery(ctx context.Context, id model.ID) error {
	if err := a.authorize(); err != nil {
		return err
	}
	return a.store.DeleteFromGallery(ctx, id)
}

// UpdateConfig saves the site configuration.
func (a *Admin) UpdateConfig(ctx context.Context, cfg model.SiteConfig) error {
	if err := a.authorize(); err != nil {
		return err
	}
	return a.store.UpdateConfig(ctx, cfg)
}
