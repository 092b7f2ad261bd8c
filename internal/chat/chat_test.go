package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
)

type staticEvents struct {
	events []model.Event
	err    error
}

func (s staticEvents) ListEvents(context.Context) ([]model.Event, error) { return s.events, s.err }

type recordingGenerator struct {
	answer  string
	err     error
	system  string
	history []model.ChatTurn
}

func (g *recordingGenerator) Generate(_ context.Context, system string, history []model.ChatTurn, _ string) (string, error) {
	g.system = system
	g.history = history
	return g.answer, g.err
}

func price(v float64) *float64 { return &v }

func TestAssistant_Simulated(t *testing.T) {
	a := NewAssistant(nil, nil, WithDelay(0))
	ctx := context.Background()
	require.True(t, a.Simulated())

	tests := []struct {
		msg  string
		want string
	}{
		{"¿Cómo configuro Gemini?", ReplyNeedsKey},
		{"Hola!", simulated[0].answer},
		{"¿Qué es un agujero negro?", simulated[1].answer},
		{"Cuéntame de la Luna", simulated[2].answer},
		{"¿Cuándo es el lanzamiento de SpaceX?", ReplyLaunch},
		{"Quiero hacer una reserva", simulated[4].answer},
		{"¿Qué es un quásar?", ReplyDefault},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Reply(ctx, tt.msg, nil))
		})
	}
}

func TestAssistant_SimulatedDelay(t *testing.T) {
	a := NewAssistant(nil, nil, WithDelay(50*time.Millisecond))

	start := time.Now()
	a.Reply(context.Background(), "hola", nil)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, ReplyInterference, a.Reply(ctx, "hola", nil))
}

func TestAssistant_Generator(t *testing.T) {
	events := staticEvents{events: []model.Event{
		{ID: "1", Title: "Observación de Júpiter", Date: model.EventDate{Day: "12", Month: "OCT"}, Location: "Atacama", Price: price(50)},
		{ID: "101", Title: "Starship", Date: model.EventDate{Day: "20", Month: "ENE"}, Location: "Texas", Description: "Lanzamiento"},
	}}
	gen := &recordingGenerator{answer: "Claro que sí"}
	a := NewAssistant(events, gen)

	history := []model.ChatTurn{
		{Sender: "system", Text: "bienvenida"},
		{Sender: "user", Text: "hola"},
		{Sender: "bot", Text: "¡Hola!"},
	}
	got := a.Reply(context.Background(), "¿Qué eventos hay?", history)
	assert.Equal(t, "Claro que sí", got)

	assert.Contains(t, gen.system, "- Observación de Júpiter (12 OCT): Evento de reservación. Lugar: Atacama. Precio: $50 USD.")
	assert.Contains(t, gen.system, "- Starship (20 ENE): Lanzamiento. Lugar: Texas. Precio: Gratis/Online.")
	assert.Contains(t, gen.system, "contacto@cieloabierto.com")
	assert.Len(t, gen.history, 2)
}

func TestAssistant_GeneratorFailure(t *testing.T) {
	gen := &recordingGenerator{err: errors.New("quota exceeded")}
	a := NewAssistant(staticEvents{err: errors.New("db down")}, gen)

	assert.Equal(t, ReplyInterference, a.Reply(context.Background(), "hola", nil))
	assert.Contains(t, gen.system, "Eventos Próximos:")
}

func TestKeyConfigured(t *testing.T) {
	assert.False(t, KeyConfigured(""))
	assert.False(t, KeyConfigured("PON_TU_API_KEY_AQUI"))
	assert.True(t, KeyConfigured("AIzaSyExample"))
}

// geminiRequest is the part of the generateContent body the tests inspect.
type geminiRequest struct {
	SystemInstruction *struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"systemInstruction"`
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
}

func newTestGemini(t *testing.T, url, key string) *Gemini {
	t.Helper()
	g, err := NewGemini(context.Background(), GeminiConfig{APIKey: key, Model: "gemini-1.5-flash", BaseURL: url, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return g
}

func TestGemini_Generate(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hola "},{"text":"explorador"}]}}]}`))
	}))
	defer srv.Close()

	answer, err := newTestGemini(t, srv.URL+"/", "secret").Generate(context.Background(), "Eres AstroGuía",
		[]model.ChatTurn{{Sender: "user", Text: "hola"}, {Sender: "bot", Text: "¡Hola!"}}, "¿Qué es Marte?")
	require.NoError(t, err)
	assert.Equal(t, "Hola explorador", answer)

	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "Eres AstroGuía", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 3)
	assert.Equal(t, "model", got.Contents[1].Role)
	assert.Equal(t, "¿Qué es Marte?", got.Contents[2].Parts[0].Text)
}

func TestGemini_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("x-goog-api-key") == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	_, err := newTestGemini(t, srv.URL, "bad").Generate(context.Background(), "", nil, "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not valid")

	_, err = newTestGemini(t, srv.URL, "ok").Generate(context.Background(), "", nil, "hola")
	assert.ErrorIs(t, err, ErrEmptyAnswer)
}
