// Package llm talks to the OpenAI-compatible completion backend that turns
// retrieved context into answers. Backend failures degrade to readable
// diagnostic answer text instead of propagating as errors, so the question
// pipeline always has something to return.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// State describes backend availability as seen by the last probe.
type State string

const (
	StateUnknown State = "unknown"
	StateOnline  State = "online"
	StateOffline State = "offline"
)

const probeTimeout = 5 * time.Second

// Config holds the completion backend settings.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
	AnswerLanguage string
	Logger         *zap.Logger
}

// Client wraps an OpenAI-compatible chat-completions backend and tracks its
// availability. Safe for concurrent use.
type Client struct {
	api            *openai.Client
	probe          *http.Client
	baseURL        string
	defaultModel   string
	temperature    float32
	maxTokens      int
	answerLanguage string
	logger         *zap.Logger

	mu          sync.RWMutex
	state       State
	modelList   []string
	activeModel string
}

// New creates a backend client. The base URL points at the API root
// (e.g. http://localhost:1234/v1); health, model and completion endpoints
// hang off it.
func New(cfg *Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	language := cfg.AnswerLanguage
	if language == "" {
		language = "English"
	}

	return &Client{
		api:            openai.NewClientWithConfig(clientCfg),
		probe:          &http.Client{Timeout: probeTimeout},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		defaultModel:   cfg.Model,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		answerLanguage: language,
		logger:         logger,
		state:          StateUnknown,
		activeModel:    cfg.Model,
	}
}

// Probe checks the backend health endpoint and, when it answers, refreshes
// the advertised model list. The resulting state is retained for status
// reporting.
func (c *Client) Probe(ctx context.Context) State {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return c.setState(StateOffline)
	}

	resp, err := c.probe.Do(req)
	if err != nil {
		c.logger.Debug("backend health probe failed", zap.Error(err))
		return c.setState(StateOffline)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("backend health probe rejected",
			zap.Int("status", resp.StatusCode))
		return c.setState(StateOffline)
	}

	if list, err := c.api.ListModels(ctx); err != nil {
		c.logger.Warn("backend is up but model list refresh failed", zap.Error(err))
	} else {
		ids := make([]string, 0, len(list.Models))
		for _, m := range list.Models {
			ids = append(ids, m.ID)
		}
		c.mu.Lock()
		c.modelList = ids
		c.mu.Unlock()
	}
	return c.setState(StateOnline)
}

// Generate probes the backend, resolves the model and runs one chat
// completion over the prompt. It always returns answer text: failures of any
// kind come back as a diagnostic message for the caller's user.
func (c *Client) Generate(ctx context.Context, prompt, model string) string {
	if c.Probe(ctx) == StateOffline {
		return fmt.Sprintf("The completion backend at %s is not reachable. "+
			"Make sure the inference server is running, then ask again.", c.baseURL)
	}

	resolved := c.resolveModel(model)
	answer, err := c.complete(ctx, resolved, prompt)
	if err != nil {
		c.logger.Warn("completion failed",
			zap.String("model", resolved),
			zap.Error(err))
		return c.diagnostic(err)
	}
	return answer
}

// complete performs the chat-completions call. Every failure wraps
// models.ErrBackendUnavailable so callers can classify it.
func (c *Client) complete(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrBackendUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: backend returned no completion choices", models.ErrBackendUnavailable)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// diagnostic renders a backend failure as user-facing answer text.
func (c *Client) diagnostic(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("The completion backend returned an error (status %d): %s",
			apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("The completion backend returned an error (status %d): %v",
			reqErr.HTTPStatusCode, reqErr.Err)
	}

	return fmt.Sprintf("The completion backend at %s did not answer: %v. "+
		"Make sure the inference server is running, then ask again.",
		c.baseURL, err)
}

// resolveModel picks the model for a completion: an explicit request wins,
// otherwise the configured default, falling back to the first advertised
// model when the default is not in the refreshed list.
func (c *Client) resolveModel(requested string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	model := requested
	if model == "" {
		model = c.defaultModel
		if len(c.modelList) > 0 && !contains(c.modelList, model) {
			model = c.modelList[0]
		}
	}
	c.activeModel = model
	return model
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (c *Client) setState(s State) State {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	return s
}

// State returns the availability seen by the most recent probe.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Models returns the model list advertised by the backend at the last
// successful probe.
func (c *Client) Models() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.modelList))
	copy(out, c.modelList)
	return out
}

// ActiveModel returns the model used by the most recent completion, or the
// configured default before any completion ran.
func (c *Client) ActiveModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeModel
}

// BaseURL returns the backend API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}
