package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/model"
)

// ErrEmptyAnswer is returned when the model sends no text.
var ErrEmptyAnswer = errors.New("gemini returned no text")

// placeholderKey is the value shipped in the sample .env.
const placeholderKey = "PON_TU_API_KEY"

// KeyConfigured reports whether key looks like a real API key.
func KeyConfigured(key string) bool {
	key = strings.TrimSpace(key)
	return key != "" && !strings.Contains(key, placeholderKey)
}

// GeminiConfig configures the Gemini client. An empty BaseURL uses the
// public Gemini API endpoint.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Gemini generates answers with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini returns a Gemini generator.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model}, nil
}

func role(sender string) genai.Role {
	if sender == "bot" {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// Generate sends the conversation and returns the first candidate's text.
func (g *Gemini) Generate(ctx context.Context, system string, history []model.ChatTurn, message string) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, h := range history {
		contents = append(contents, genai.NewContentFromText(h.Text, role(h.Sender)))
	}
	contents = append(contents, genai.NewContentFromText(message, genai.RoleUser))

	var cfg *genai.GenerateContentConfig
	if system != "" {
		cfg = &genai.GenerateContentConfig{SystemInstruction: genai.NewContentFromText(system, genai.RoleUser)}
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyAnswer
	}
	return text, nil
}
