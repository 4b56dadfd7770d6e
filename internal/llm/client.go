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

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/planpilot/planpilot/internal/config"
)

// Client talks to an OpenAI-compatible chat completion endpoint. All
// reasoning calls in the planning pipeline go through it.
type Client struct {
	endpoint   string
	model      string
	httpClient *http.Client
	maxRetries int
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
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

// bearerTransport injects a static API key on every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(clone)
}

// NewClient creates a client from configuration. When an OAuth token
// URL is set, requests authenticate with the client-credentials flow;
// otherwise a static API key is used if present.
func NewClient(cfg config.LLMConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var httpClient *http.Client
	switch {
	case cfg.OAuth.TokenURL != "":
		cc := clientcredentials.Config{
			TokenURL:     cfg.OAuth.TokenURL,
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Scopes:       cfg.OAuth.Scopes,
		}
		httpClient = cc.Client(context.Background())
		httpClient.Timeout = timeout
	case cfg.APIKey != "":
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: &bearerTransport{token: cfg.APIKey, base: http.DefaultTransport},
		}
	default:
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		httpClient: httpClient,
		maxRetries: cfg.MaxRetries,
	}
}

// Chat sends a conversation and returns the assistant's reply text.
// Transient failures (network errors, 429, 5xx) are retried with
// backoff up to the configured limit.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    0.1,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		reply, retryable, err := c.send(ctx, body)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}

	return "", fmt.Errorf("chat request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) send(ctx context.Context, body []byte) (reply string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if rErr, ok := err.(*oauth2.RetrieveError); ok {
			return "", false, fmt.Errorf("token retrieval failed: %w", rErr)
		}
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("server returned %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("server returned %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", false, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("empty response from model")
	}

	return parsed.Choices[0].Message.Content, false, nil
}

// JSON sends a conversation expecting a strict JSON reply and decodes
// it into out. A malformed reply gets exactly one repair retry with a
// corrective instruction before the error escalates.
func (c *Client) JSON(ctx context.Context, messages []Message, out any) error {
	reply, err := c.Chat(ctx, messages)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(stripFences(reply)), out); err == nil {
		return nil
	}

	repair := append(append([]Message{}, messages...),
		Message{Role: "assistant", Content: reply},
		Message{Role: "user", Content: "That was not valid JSON. Reply again with ONLY the JSON object, no prose, no code fences."},
	)
	reply, err = c.Chat(ctx, repair)
	if err != nil {
		return fmt.Errorf("repair attempt failed: %w", err)
	}
	if err := json.Unmarshal([]byte(stripFences(reply)), out); err != nil {
		return fmt.Errorf("model returned invalid JSON after repair: %w", err)
	}
	return nil
}

// stripFences removes a markdown code fence around a JSON payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
