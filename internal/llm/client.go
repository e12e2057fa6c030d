// Package llm is the client for the external reasoning service (Gemini)
// that produces per-symbol trading decisions.
//
// The service call is the only operation in a cycle with its own timeout;
// on timeout or failure the caller degrades to a hold-all document rather
// than blocking the loop.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"llm-crypto-trader/internal/model"
)

// ErrTimeout marks a decision-service call that was cancelled for taking
// too long. The cycle degrades to hold-all.
var ErrTimeout = errors.New("decision service timeout")

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash-exp"
	defaultTimeout = 15 * time.Second
)

// Client calls the Gemini generateContent API.
type Client struct {
	http    *resty.Client
	apiKey  string
	model   string
	timeout time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL points the client at a different endpoint (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.http.SetBaseURL(u) }
}

// WithModel selects the model name.
func WithModel(m string) Option {
	return func(c *Client) { c.model = m }
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a decision-service client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(defaultBaseURL).
			SetRetryCount(1).
			SetRetryWaitTime(time.Second),
		apiKey:  apiKey,
		model:   defaultModel,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Decide renders the request document into a prompt, calls the service,
// and returns the raw per-symbol decision JSON. The response is only
// brace-extracted and decoded here; schema checks happen downstream.
func (c *Client) Decide(ctx context.Context, req model.DecisionRequest, systemPrompt string) (map[string]json.RawMessage, error) {
	prompt, err := buildPrompt(req, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("llm: build prompt: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out generateResponse
	resp, err := c.http.R().
		SetContext(callCtx).
		SetQueryParam("key", c.apiKey).
		SetBody(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}}).
		SetResult(&out).
		Post("/v1beta/models/" + c.model + ":generateContent")
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("llm: %w", ErrTimeout)
		}
		return nil, fmt.Errorf("llm: %v", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("llm: http %d: %s", resp.StatusCode(), resp.String())
	}

	text := responseText(out)
	return ExtractDecisions(text)
}

func buildPrompt(req model.DecisionRequest, systemPrompt string) (string, error) {
	market, err := json.MarshalIndent(req.MarketData, "", "  ")
	if err != nil {
		return "", err
	}
	positions, err := json.MarshalIndent(req.Positions, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Current Time: %s\n", req.CurrentTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Total Equity: $%.2f\n", req.TotalEquity)
	fmt.Fprintf(&b, "Total Return: %.2f%%\n\n", req.TotalReturnPct)
	fmt.Fprintf(&b, "Market Data:\n%s\n\n", market)
	fmt.Fprintf(&b, "Positions:\n%s\n\n", positions)
	b.WriteString("Provide trading decisions in JSON format for each symbol.\n")
	return b.String(), nil
}

func responseText(out generateResponse) string {
	if len(out.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// ExtractDecisions pulls the first top-level JSON object out of the model's
// free-form response text and decodes it per symbol. Models wrap JSON in
// prose or markdown fences often enough that plain Unmarshal won't do.
func ExtractDecisions(text string) (map[string]json.RawMessage, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("llm: no JSON object in response")
	}

	var decisions map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &decisions); err != nil {
		return nil, fmt.Errorf("llm: decode decisions: %v", err)
	}
	return decisions, nil
}
