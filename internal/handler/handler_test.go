package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/apperr"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/chat"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/localstore"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/news"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/payment"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/service"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/session"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/store"
)

// newTestRouter wires the whole local stack without latency.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	kv := localstore.NewMemory()

	st, err := store.Open(nil, kv, store.Options{Now: clock})
	require.NoError(t, err)
	mgr := session.NewManager(session.NewLocalAuth(kv,
		session.WithAuthLatency(0),
		session.WithBcryptCost(bcrypt.MinCost),
	), nil)
	t.Cleanup(mgr.Close)
	mgr.Restore(context.Background())

	h := New(Deps{
		Store:        st,
		Session:      mgr,
		Reservations: service.NewReservations(st, mgr, payment.NewSandboxGateway(payment.SandboxConfig{}), nil),
		Admin:        service.NewAdmin(st, mgr, nil),
		Tickets:      service.NewTickets(st, mgr, nil),
		Chat:         chat.NewAssistant(st, nil, chat.WithDelay(0)),
		News:         news.NewFeed(0, clock),
	})
	return h.Router()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func login(t *testing.T, h http.Handler, email, password string) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthCheck(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestEvents(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Event](t, rec), 4)

	rec = do(t, h, http.MethodGet, "/api/events?type=booking", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Event](t, rec), 2)

	rec = do(t, h, http.MethodGet, "/api/events?type=concierto", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/events/next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.ID("2"), decode[model.Event](t, rec).ID)

	rec = do(t, h, http.MethodGet, "/api/events/102", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Eclipse Solar Parcial", decode[model.Event](t, rec).Title)

	rec = do(t, h, http.MethodGet, "/api/events/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	errResp := decode[model.ErrorResponse](t, rec)
	assert.Equal(t, "not_found", errResp.Code)
	assert.Equal(t, "Evento no encontrado", errResp.Error)
}

func TestReserveAndTicket(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/events/1/reserve", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/auth/register", map[string]string{"email": "a@x.com", "password": "pw123", "name": "Ana"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/events/1/reserve", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decode[service.Receipt](t, rec)
	assert.Equal(t, 50.0, receipt.Amount)

	rec = do(t, h, http.MethodPost, "/api/events/1/reserve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_registered", decode[model.ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/events/101/reserve", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/registrations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Registration](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/registrations/1/ticket.png?size=128", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = do(t, h, http.MethodGet, "/api/registrations/2/ticket.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/registrations/1/ticket.png?size=grande", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthFlow(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/auth/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.StatusAnonymous, decode[session.State](t, rec).Status)

	rec = do(t, h, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", decode[model.ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/auth/register", map[string]string{"email": "a@x.com", "password": "pw123", "name": "Ana"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/auth/register", map[string]string{"email": "a@x.com", "password": "pw123", "name": "Ana"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "user_exists", decode[model.ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodGet, "/api/auth/session", nil)
	state := decode[session.State](t, rec)
	require.True(t, state.Authenticated())
	assert.Equal(t, "Ana", state.User.Name)

	rec = do(t, h, http.MethodPost, "/api/auth/update-password", map[string]string{"password": "123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/auth/update-password", map[string]string{"password": "nueva123"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/auth/session", nil)
	assert.Equal(t, session.StatusAnonymous, decode[session.State](t, rec).Status)

	login(t, h, "a@x.com", "nueva123")

	rec = do(t, h, http.MethodPost, "/api/auth/reset-password", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "extra": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecoverWhileSignedIn(t *testing.T) {
	h := newTestRouter(t)
	login(t, h, session.DemoAdminEmail, session.DemoAdminPassword)

	rec := do(t, h, http.MethodPost, "/api/auth/recover", map[string]string{"token": "caducado"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode[model.ErrorResponse](t, rec).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.ErrValidation, http.StatusBadRequest},
		{apperr.ErrInvalidCredentials, http.StatusUnauthorized},
		{apperr.ErrUnauthorized, http.StatusUnauthorized},
		{apperr.ErrForbidden, http.StatusForbidden},
		{apperr.ErrNotFound, http.StatusNotFound},
		{apperr.ErrUserExists, http.StatusConflict},
		{apperr.ErrAlreadyRegistered, http.StatusConflict},
		{apperr.ErrSoldOut, http.StatusConflict},
		{apperr.ErrTimeout, http.StatusGatewayTimeout},
		{apperr.ErrBackendUnavailable, http.StatusServiceUnavailable},
		{apperr.ErrUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(apperr.KindOf(tt.err)), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestAdminRoutes(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/admin/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/auth/register", map[string]string{"email": "a@x.com", "password": "pw123", "name": "Ana"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/admin/dashboard", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[model.ErrorResponse](t, rec).Code)

	login(t, h, session.DemoAdminEmail, session.DemoAdminPassword)

	rec = do(t, h, http.MethodGet, "/api/admin/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[service.Dashboard](t, rec)
	assert.Len(t, d.Events, 2)

	rec = do(t, h, http.MethodPost, "/api/admin/events", map[string]any{
		"title": "Noche de Saturno", "date": "2027-03-05", "time": "21:00", "location": "Mendoza", "price": 80,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Event](t, rec)
	assert.Equal(t, "MAR", created.Date.Month)

	rec = do(t, h, http.MethodPost, "/api/admin/team", map[string]string{"name": "Vera", "role": "Guía"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	member := decode[model.TeamMember](t, rec)

	rec = do(t, h, http.MethodPost, "/api/admin/gallery", map[string]string{"src": "m42.jpg", "alt": "Orión"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item := decode[model.GalleryItem](t, rec)

	rec = do(t, h, http.MethodGet, "/api/team", nil)
	assert.Len(t, decode[[]model.TeamMember](t, rec), 1)
	rec = do(t, h, http.MethodGet, "/api/gallery", nil)
	assert.Len(t, decode[[]model.GalleryItem](t, rec), 1)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/admin/team/"+member.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/admin/gallery/"+item.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/admin/events/"+created.ID.String(), nil).Code)

	cfg := model.DefaultSiteConfig()
	cfg.Contact.Email = "hola@cieloabierto.com"
	rec = do(t, h, http.MethodPut, "/api/admin/config", cfg)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Contact struct {
			Email string `json:"email"`
		} `json:"contact"`
		EnabledPayments []string `json:"enabledPayments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "hola@cieloabierto.com", got.Contact.Email)
	assert.NotNil(t, got.EnabledPayments)
}

func TestNewsAndChat(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/news", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.NewsItem](t, rec), 4)

	rec = do(t, h, http.MethodPost, "/api/chat", map[string]any{"message": "Hola AstroGuía"})
	require.Equal(t, http.StatusOK, rec.Code)
	turn := decode[model.ChatTurn](t, rec)
	assert.Equal(t, "bot", turn.Sender)
	assert.Contains(t, turn.Text, "AstroGuía")

	rec = do(t, h, http.MethodPost, "/api/chat", map[string]any{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS(t *testing.T) {
	h := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/events", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSConfig_Allowed(t *testing.T) {
	cfg := DefaultCORSConfig([]string{"https://cielo.test"})
	assert.True(t, cfg.allowed("https://cielo.test"))
	assert.False(t, cfg.allowed("https://evil.test"))
	assert.True(t, DefaultCORSConfig([]string{"*"}).allowed("https://any.test"))
	assert.True(t, DefaultCORSConfig(nil).allowed("https://any.test"))
}

func TestStream(t *testing.T) {
	h := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/auth/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var s session.State
	require.NoError(t, conn.ReadJSON(&s))
	assert.Equal(t, session.StatusAnonymous, s.Status)

	login(t, h, session.DemoAdminEmail, session.DemoAdminPassword)

	require.NoError(t, conn.ReadJSON(&s))
	require.Equal(t, session.StatusAuthenticated, s.Status)
	assert.Equal(t, session.DemoAdminEmail, s.User.Email)
}
