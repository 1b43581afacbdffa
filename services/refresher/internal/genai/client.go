// Package genai calls the generative backend (Gemini) for schema-shaped JSON.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Schema is a response schema in the OpenAPI subset Gemini accepts.
type Schema = map[string]any

// Generator turns a prompt into JSON conforming (as far as the backend
// honours it) to schema. Callers must still validate the output.
type Generator interface {
	Generate(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error)
}

// ErrEmptyResponse means the backend answered without any text.
var ErrEmptyResponse = errors.New("genai: empty response")

// StatusError is a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("genai: status %d body=%q", e.StatusCode, e.Body)
}

// BlockedError means the prompt or answer was withheld by the backend.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string { return "genai: response blocked: " + e.Reason }

type Client struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	HTTPClient  *http.Client
	CB          *gobreaker.CircuitBreaker
	Log         *zap.Logger
}

// Option configures the Client.
type Option func(*Client)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Client) { c.CB = cb }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.Log = log }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

func New(baseURL, apiKey, model string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	c := &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		Model:       model,
		Temperature: 0.9,
		HTTPClient:  &http.Client{Timeout: 120 * time.Second},
		Log:         zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ Generator = (*Client)(nil)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType"`
	ResponseSchema   Schema  `json:"responseSchema,omitempty"`
	Temperature      float64 `json:"temperature"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *Client) Generate(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error) {
	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
			Temperature:      c.Temperature,
		},
	}
	if c.CB == nil {
		return c.generate(ctx, body)
	}
	res, err := c.CB.Execute(func() (interface{}, error) {
		return c.generate(ctx, body)
	})
	if err != nil {
		return nil, err
	}
	return res.(json.RawMessage), nil
}

func (c *Client) generate(ctx context.Context, body generateRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	endpoint := c.BaseURL + "/models/" + c.Model + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.APIKey)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	c.Log.Debug("genai response",
		zap.String("model", c.Model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw[:min(len(raw), 300)])}
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("genai: decode envelope: %w", err)
	}
	if out.PromptFeedback.BlockReason != "" {
		return nil, &BlockedError{Reason: out.PromptFeedback.BlockReason}
	}
	if len(out.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}
	cand := out.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		return nil, &BlockedError{Reason: cand.FinishReason}
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return json.RawMessage(text), nil
}
