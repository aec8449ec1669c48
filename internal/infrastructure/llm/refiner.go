// Package llm rewrites follow-up questions into standalone shopping queries
// using an OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shoplens/backend/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	// historyTurns is how many prior turns are sent along with the query
	historyTurns = 4
	maxQueryLen  = 200
)

const systemPrompt = `You rewrite shopping questions into search queries.
Given the conversation so far and the user's latest message, reply with a single standalone product search query that carries over any product type, budget, gender, color or brand mentioned earlier.
Reply with the query only. No quotes, no explanation.`

// Refiner calls a chat completions API
type Refiner struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Config holds refiner configuration
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewRefiner creates a refiner; it returns nil when no API key is set so
// callers can skip refinement entirely
func NewRefiner(cfg Config, logger zerolog.Logger) *Refiner {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Refiner{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Refine returns a standalone query. Without history the query is returned
// as is; on any failure the original query is returned with the error.
func (r *Refiner) Refine(ctx context.Context, query string, history []domain.ChatTurn) (string, error) {
	if len(history) == 0 {
		return query, nil
	}

	messages := buildMessages(query, history)
	body, err := json.Marshal(chatRequest{
		Model:       r.model,
		Messages:    messages,
		Temperature: 0,
		MaxTokens:   64,
	})
	if err != nil {
		return query, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return query, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return query, fmt.Errorf("%w: %v", domain.ErrRefinerFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return query, fmt.Errorf("%w: status %d", domain.ErrRefinerFailure, resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return query, fmt.Errorf("%w: decode response: %v", domain.ErrRefinerFailure, err)
	}
	if len(chat.Choices) == 0 {
		return query, fmt.Errorf("%w: no choices", domain.ErrRefinerFailure)
	}

	refined := cleanQuery(chat.Choices[0].Message.Content)
	if refined == "" {
		return query, fmt.Errorf("%w: empty completion", domain.ErrRefinerFailure)
	}

	r.logger.Debug().Str("query", query).Str("refined", refined).Msg("Query refined")
	return refined, nil
}

// buildMessages keeps only the most recent turns
func buildMessages(query string, history []domain.ChatTurn) []message {
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}

	messages := make([]message, 0, len(history)+2)
	messages = append(messages, message{Role: "system", Content: systemPrompt})
	for _, turn := range history {
		role := turn.Role
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, message{Role: role, Content: turn.Content})
	}
	messages = append(messages, message{Role: "user", Content: query})
	return messages
}

func cleanQuery(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'` ")
	if r := []rune(s); len(r) > maxQueryLen {
		s = strings.TrimSpace(string(r[:maxQueryLen]))
	}
	return s
}
