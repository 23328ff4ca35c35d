package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"report-intake-service/llm"
)

const maxErrorBody = 512

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type geminiRequest struct {
	Contents []content `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Config holds the Gemini endpoint settings
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
}

type Client struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v1beta"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		apiKey: strings.TrimSpace(cfg.APIKey),
		endpoint: fmt.Sprintf("%s/%s/models/%s:generateContent",
			strings.TrimRight(cfg.BaseURL, "/"), cfg.APIVersion, strings.TrimSpace(cfg.Model)),
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) SourceName() string {
	return "Gemini"
}

// Summarize asks the model for a one-sentence summary of a citizen report
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	reqBody := geminiRequest{
		Contents: []content{
			{
				Role:  "user",
				Parts: []part{{Text: llm.SummaryPrompt(text)}},
			},
		},
	}
	return c.generateContent(ctx, reqBody)
}

func (c *Client) generateContent(ctx context.Context, body geminiRequest) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?"+url.Values{"key": {c.apiKey}}.Encode(), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error repeats the full URL, key included.
		return "", fmt.Errorf("failed to send request: %s", c.redact(err.Error()))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(bodyBytes), maxErrorBody))
	}

	var gr geminiResponse
	if err := json.Unmarshal(bodyBytes, &gr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	parts := gr.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return "", fmt.Errorf("no content parts in first candidate")
	}
	summary := strings.TrimSpace(parts[0].Text)
	if summary == "" {
		return "", fmt.Errorf("empty text in first content part")
	}
	return summary, nil
}

func (c *Client) redact(s string) string {
	if c.apiKey == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(c.apiKey), "REDACTED")
	return strings.ReplaceAll(s, c.apiKey, "REDACTED")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
