package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/markis/gpt-markup-preview/internal/config"
	"github.com/markis/gpt-markup-preview/internal/stream"
)

// Message is a single role/content entry of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the body posted to the chat completion endpoint.
type ChatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// StatusError reports a non-success response from the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// Client posts streaming chat completion requests.
type Client struct {
	endpoint     string
	model        string
	systemPrompt string
	apiKey       string
	httpClient   *http.Client
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the shared HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// getHTTPClient returns a singleton HTTP client
var (
	httpClient     *http.Client
	httpClientOnce sync.Once
)

func getHTTPClient(timeout time.Duration) *http.Client {
	httpClientOnce.Do(func() {
		transport := &http.Transport{
			MaxIdleConns:       100,
			IdleConnTimeout:    90 * time.Second,
			DisableCompression: false,
			DisableKeepAlives:  false,
			ForceAttemptHTTP2:  true,
		}

		// Add context-aware dial options
		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext

		httpClient = &http.Client{
			Transport: transport,
		}
	})

	// A zero timeout leaves long streams to the request context.
	clientCopy := *httpClient
	clientCopy.Timeout = timeout
	return &clientCopy
}

// New returns a Client for cfg. The API key is passed in by the caller.
func New(cfg *config.Config, apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint:     strings.TrimSuffix(cfg.Endpoint, "/"),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		apiKey:       apiKey,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = getHTTPClient(cfg.Timeout)
	}
	return c
}

// Model returns the model requests are sent to.
func (c *Client) Model() string {
	return c.model
}

// WithModel returns a copy of c that targets model.
func (c *Client) WithModel(model string) *Client {
	clone := *c
	if model != "" {
		clone.model = model
	}
	return &clone
}

// Messages builds the conversation for prompt: the system prompt, if any,
// followed by the user prompt.
func (c *Client) Messages(prompt string) []Message {
	messages := make([]Message, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: c.systemPrompt})
	}
	return append(messages, Message{Role: "user", Content: prompt})
}

// Stream posts messages and returns a decoder over the streamed response.
// The caller owns the decoder and must drain or close it.
func (c *Client) Stream(ctx context.Context, messages []Message) (*stream.Decoder, error) {
	data, err := json.Marshal(ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("sending chat completion request", "endpoint", c.endpoint, "model", c.model, "messages", len(messages))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() {
			if err := resp.Body.Close(); err != nil {
				c.logger.Warn("failed to close response body", "error", err)
			}
		}()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	c.logger.Debug("streaming response", "status", resp.StatusCode, "content_type", resp.Header.Get("Content-Type"))
	return stream.NewDecoder(stream.NewReader(resp.Body)), nil
}
