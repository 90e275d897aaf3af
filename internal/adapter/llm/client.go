// Package llm calls a chat-completions provider (DeepSeek or OpenAI) to
// generate a grounded answer from a query and its retrieved context.
// Provider and API key are resolved per call from the settings service,
// falling back to the values the process booted with.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"webrag/internal/settings"
)

const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"

	deepseekURL   = "https://api.deepseek.com/chat/completions"
	openaiURL     = "https://api.openai.com/v1/chat/completions"
	deepseekModel = "deepseek-chat"
	openaiModel   = "gpt-3.5-turbo"

	// The generation request is bounded; a hung provider becomes a
	// ProviderError folded into the answer, not a stuck pipeline.
	requestTimeout   = 30 * time.Second
	temperature      = 0.1
	DefaultMaxTokens = 1024
)

// Prompt templates. Their exact shape matters for reproducible behavior
// across providers, so they live here as named constants.
const (
	SystemPrompt = "You are a helpful AI assistant that answers user questions " +
		"based on the provided context.\n\n" +
		"Rules:\n" +
		"1. Answer ONLY based on the provided context\n" +
		"2. If the context does not contain information to answer, honestly say so\n" +
		"3. Be polite and friendly\n" +
		"4. Structure the answer if appropriate\n" +
		"5. Do not invent information that is not in the context"

	userPromptTemplate = "Context:\n---\n%s\n---\n\nQuestion: %s\n\n" +
		"Please answer the question using only the information from the provided context."
)

// ProviderError reports a failed or malformed provider response.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s api error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Fallback holds the boot-time provider selection used when the settings
// row is unavailable or blank.
type Fallback struct {
	Provider    string
	DeepSeekKey string
	OpenAIKey   string
}

type Client struct {
	settings *settings.Service
	fallback Fallback
	client   *http.Client
	baseURL  string // test override
}

func NewClient(set *settings.Service, fallback Fallback) *Client {
	return &Client{
		settings: set,
		fallback: fallback,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// Generate produces an answer for the query using only the supplied
// context. It returns the answer and the full user prompt that was sent.
func (c *Client) Generate(ctx context.Context, query, contextText string) (string, string, error) {
	return c.GenerateWithLimit(ctx, query, contextText, DefaultMaxTokens)
}

func (c *Client) GenerateWithLimit(ctx context.Context, query, contextText string, maxTokens int) (string, string, error) {
	userPrompt := fmt.Sprintf(userPromptTemplate, contextText, query)

	provider, apiKey, err := c.resolve(ctx)
	if err != nil {
		return "", userPrompt, err
	}

	answer, err := c.request(ctx, provider, apiKey, userPrompt, maxTokens)
	if err != nil {
		return "", userPrompt, err
	}
	return answer, userPrompt, nil
}

func (c *Client) resolve(ctx context.Context) (string, string, error) {
	provider := c.fallback.Provider
	deepseekKey := c.fallback.DeepSeekKey
	openaiKey := c.fallback.OpenAIKey

	if c.settings != nil {
		if cfg, err := c.settings.Get(ctx); err == nil {
			if cfg.LLMProvider != "" {
				provider = cfg.LLMProvider
			}
			if cfg.DeepSeekAPIKey != "" {
				deepseekKey = cfg.DeepSeekAPIKey
			}
			if cfg.OpenAIAPIKey != "" {
				openaiKey = cfg.OpenAIAPIKey
			}
		}
	}

	switch provider {
	case ProviderDeepSeek:
		if deepseekKey == "" {
			return "", "", &ProviderError{Provider: provider, Err: fmt.Errorf("api key not configured")}
		}
		return provider, deepseekKey, nil
	case ProviderOpenAI:
		if openaiKey == "" {
			return "", "", &ProviderError{Provider: provider, Err: fmt.Errorf("api key not configured")}
		}
		return provider, openaiKey, nil
	default:
		return "", "", &ProviderError{Provider: provider, Err: fmt.Errorf("unsupported provider")}
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) request(ctx context.Context, provider, apiKey, userPrompt string, maxTokens int) (string, error) {
	url := deepseekURL
	model := deepseekModel
	if provider == ProviderOpenAI {
		url = openaiURL
		model = openaiModel
	}
	if c.baseURL != "" {
		url = c.baseURL
	}

	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", &ProviderError{Provider: provider, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", &ProviderError{Provider: provider, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ProviderError{Provider: provider, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &ProviderError{Provider: provider, Err: fmt.Errorf("malformed response body: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &ProviderError{Provider: provider, Err: fmt.Errorf("malformed response body: no choices")}
	}

	return parsed.Choices[0].Message.Content, nil
}
