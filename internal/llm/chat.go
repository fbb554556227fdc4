package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOpenAIURL     = "https://api.openai.com/v1"
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
)

// ChatBackend speaks the OpenAI chat-completions wire format, which both
// OpenAI and OpenRouter accept.
type ChatBackend struct {
	name    string
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewChatBackend creates a chat-completions backend. name identifies the
// provider in logs ("openai", "openrouter").
func NewChatBackend(name, apiKey, baseURL, model string, timeout time.Duration) *ChatBackend {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
		if name == "openrouter" {
			baseURL = DefaultOpenRouterURL
		}
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ChatBackend{
		name:    name,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *ChatBackend) Name() string { return b.name + ":" + b.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete posts to /chat/completions and returns the first choice's content.
func (b *ChatBackend) Complete(ctx context.Context, req Request) (string, error) {
	if b.apiKey == "" {
		return "", NewPermanentError(fmt.Errorf("%s API key required", b.name))
	}

	model := req.Model
	if model == "" {
		model = b.model
	}

	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   8192,
		Temperature: req.Temperature,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s request: %w", b.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/chat/completions", b.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create %s request: %w", b.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", b.apiKey))
	if b.name == "openrouter" {
		httpReq.Header.Set("HTTP-Referer", "https://sctran.local")
		httpReq.Header.Set("X-Title", "sctran")
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", b.name, err)
	}
	defer resp.Body.Close()

	var out chatResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && out.Error != nil {
			return "", statusError(fmt.Errorf("%s returned status %d: %s", b.name, resp.StatusCode, out.Error.Message), resp.StatusCode)
		}
		return "", statusError(fmt.Errorf("%s returned status %d", b.name, resp.StatusCode), resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode %s response: %w", b.name, decodeErr)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}
