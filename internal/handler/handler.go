// Package handler contains the chi HTTP handlers that expose the store, the
// session and the services to the UI as a JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/apperr"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/chat"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/news"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/service"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/session"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/store"
)

// Deps are the components the API serves.
type Deps struct {
	Store          *store.Store
	Session        *session.Manager
	Reservations   *service.Reservations
	Admin          *service.Admin
	Tickets        *service.Tickets
	Chat           *chat.Assistant
	News           *news.Feed
	Logger         *zap.Logger
	AllowedOrigins []string
}

// Handler holds all HTTP handlers of the API.
type Handler struct {
	Deps
	log *zap.Logger
}

// New constructs a Handler.
func New(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Handler{Deps: deps, log: deps.Logger.Named("http")}
}

// Router builds the chi router with the middleware stack and every route.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(h.log))
	r.Use(CORS(DefaultCORSConfig(h.AllowedOrigins)))

	r.Get("/health", HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Get("/next", h.NextEvent)
			r.Get("/{id}", h.GetEvent)
			r.Post("/{id}/reserve", h.Reserve)
		})
		r.Get("/registrations", h.ListRegistrations)
		r.Get("/registrations/{eventID}/ticket.png", h.Ticket)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/session", h.Session)
			r.Get("/stream", h.Stream)
			r.Post("/login", h.Login)
			r.Post("/register", h.Register)
			r.Post("/logout", h.Logout)
			r.Post("/reset-password", h.ResetPassword)
			r.Post("/recover", h.Recover)
			r.Post("/update-password", h.UpdatePassword)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/dashboard", h.Dashboard)
			r.Post("/events", h.CreateEvent)
			r.Delete("/events/{id}", h.DeleteEvent)
			r.Post("/team", h.AddTeamMember)
			r.Delete("/team/{id}", h.DeleteTeamMember)
			r.Post("/gallery", h.AddToGallery)
			r.Delete("/gallery/{id}", h.DeleteFromGallery)
			r.Put("/config", h.UpdateConfig)
		})

		r.Get("/config", h.Config)
		r.Get("/team", h.ListTeam)
		r.Get("/gallery", h.ListGallery)
		r.Get("/news", h.ListNews)
		r.Post("/chat", h.Chat)
	})
	return r
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrInvalidCredentials), errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrUserExists),
		errors.Is(err, apperr.ErrAlreadyRegistered),
		errors.Is(err, apperr.ErrSoldOut):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, apperr.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the error envelope for err.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	err = apperr.Normalize(err)
	status := statusFor(err)
	if status >= 500 {
		h.log.Error("request failed",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, model.ErrorResponse{Error: apperr.Message(err), Code: string(apperr.KindOf(err))})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	h.writeError(w, r, apperr.Validation("Solicitud inválida: "+err.Error()))
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─── Events ───────────────────────────────────────────────────────────────────

// ListEvents handles GET /api/events
// ?type=booking or ?type=realtime filters the list.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	var (
		events []model.Event
		err    error
	)
	switch model.EventType(r.URL.Query().Get("type")) {
	case model.EventBooking:
		events, err = h.Store.BookingEvents(r.Context())
	case model.EventRealtime:
		events, err = h.Store.RealtimeEvents(r.Context())
	case "":
		events, err = h.Store.ListEvents(r.Context())
	default:
		err = apperr.Validation("Tipo de evento inválido")
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// NextEvent handles GET /api/events/next
// Returns 204 when no booking event is ahead.
func (h *Handler) NextEvent(w http.ResponseWriter, r *http.Request) {
	event, ok, err := h.Store.NextUpcoming(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// GetEvent handles GET /api/events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.Store.GetEvent(r.Context(), model.ID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// Reserve handles POST /api/events/{id}/reserve
// Charges the event price and registers the current user.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.Reservations.Reserve(r.Context(), model.ID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// ListRegistrations handles GET /api/registrations
// Returns the registrations of the current user.
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	user := h.Deps.Session.User()
	if user == nil {
		h.writeError(w, r, apperr.ErrUnauthorized)
		return
	}
	regs, err := h.Store.Registrations(r.Context(), user.RegistrationKey())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

// Ticket handles GET /api/registrations/{eventID}/ticket.png
func (h *Handler) Ticket(w http.ResponseWriter, r *http.Request) {
	size := service.DefaultTicketSize
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			h.badRequest(w, r, err)
			return
		}
		size = n
	}
	png, err := h.Tickets.Ticket(r.Context(), model.ID(chi.URLParam(r, "eventID")), size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `inline; filename="ticket.png"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// ─── Auth ─────────────────────────────────────────────────────────────────────

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// Session handles GET /api/auth/session
// Waits for the startup restore, then returns the session state.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	state, err := h.Deps.Session.Current(r.Context())
	if err != nil {
		h.writeError(w, r, apperr.Wrap(apperr.KindTimeout, err))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Login handles POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	user, err := h.Deps.Session.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Register handles POST /api/auth/register
// Returns 201 with the session state; the state stays anonymous while the
// account awaits email confirmation.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	user, err := h.Deps.Session.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":  user,
		"state": h.Deps.Session.Snapshot(),
	})
}

// Logout handles POST /api/auth/logout
// The local state is cleared even when the backend fails.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Deps.Session.Logout(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetPassword handles POST /api/auth/reset-password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.Deps.Session.ResetPassword(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// Recover handles POST /api/auth/recover
// Exchanges the token of a recovery link for a session.
func (h *Handler) Recover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	user, err := h.Deps.Session.Recover(r.Context(), req.Token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdatePassword handles POST /api/auth/update-password
func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.Deps.Session.UpdatePassword(r.Context(), req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Admin ────────────────────────────────────────────────────────────────────

// Dashboard handles GET /api/admin/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Admin.Dashboard(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// CreateEvent handles POST /api/admin/events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var form service.EventForm
	if err := decodeJSON(w, r, &form); err != nil {
		h.badRequest(w, r, err)
		return
	}
	event, err := h.Admin.CreateEvent(r.Context(), form)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// DeleteEvent handles DELETE /api/admin/events/{id}
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.DeleteEvent(r.Context(), model.ID(chi.URLParam(r, "id"))); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddTeamMember handles POST /api/admin/team
func (h *Handler) AddTeamMember(w http.ResponseWriter, r *http.Request) {
	var m model.TeamMember
	if err := decodeJSON(w, r, &m); err != nil {
		h.badRequest(w, r, err)
		return
	}
	out, err := h.Admin.AddTeamMember(r.Context(), m)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// DeleteTeamMember handles DELETE /api/admin/team/{id}
func (h *Handler) DeleteTeamMember(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.DeleteTeamMember(r.Context(), model.ID(chi.URLParam(r, "id"))); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddToGallery handles POST /api/admin/gallery
func (h *Handler) AddToGallery(w http.ResponseWriter, r *http.Request) {
	var item model.GalleryItem
	if err := decodeJSON(w, r, &item); err != nil {
		h.badRequest(w, r, err)
		return
	}
	out, err := h.Admin.AddToGallery(r.Context(), item)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// DeleteFromGallery handles DELETE /api/admin/gallery/{id}
func (h *Handler) DeleteFromGallery(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.DeleteFromGallery(r.Context(), model.ID(chi.URLParam(r, "id"))); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateConfig handles PUT /api/admin/config
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.SiteConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.Admin.UpdateConfig(r.Context(), cfg); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg.Normalize())
}

// ─── Public content ───────────────────────────────────────────────────────────

type configResponse struct {
	model.SiteConfig
	EnabledPayments []string `json:"enabledPayments"`
}

// Config handles GET /api/config
// Never fails: the defaults are served when nothing else is available.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	cfg := h.Store.GetConfig(r.Context())
	enabled := cfg.EnabledPayments()
	if enabled == nil {
		enabled = []string{}
	}
	writeJSON(w, http.StatusOK, configResponse{SiteConfig: cfg, EnabledPayments: enabled})
}

// ListTeam handles GET /api/team
func (h *Handler) ListTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.Store.ListTeam(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

// ListGallery handles GET /api/gallery
func (h *Handler) ListGallery(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListGallery(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ListNews handles GET /api/news
func (h *Handler) ListNews(w http.ResponseWriter, r *http.Request) {
	items, err := h.News.Latest(r.Context())
	if err != nil {
		h.writeError(w, r, apperr.Wrap(apperr.KindTimeout, err))
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Chat handles POST /api/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string           `json:"message"`
		History []model.ChatTurn `json:"history,omitempty"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if req.Message == "" {
		h.writeError(w, r, apperr.Validation("El mensaje está vacío"))
		return
	}
	reply := h.Deps.Chat.Reply(r.Context(), req.Message, req.History)
	writeJSON(w, http.StatusOK, model.ChatTurn{Sender: "bot", Text: reply})
}
