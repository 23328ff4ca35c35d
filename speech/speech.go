// Package speech is a client for the Google Cloud Speech-to-Text v1
// speech:recognize REST method.
package speech

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

	"report-intake-service/audio"
)

const maxErrorBody = 512

// Config is the fixed recognition configuration plus endpoint settings
type Config struct {
	APIKey       string
	BaseURL      string
	Encoding     string
	SampleRateHz int
	LanguageCode string
	Timeout      time.Duration
}

type recognitionConfig struct {
	Encoding        string `json:"encoding"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	LanguageCode    string `json:"languageCode"`
}

type recognitionAudio struct {
	Content string `json:"content"`
}

type recognizeRequest struct {
	Config recognitionConfig `json:"config"`
	Audio  recognitionAudio  `json:"audio"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

// Client calls the recognition service. Safe for concurrent use.
type Client struct {
	apiKey   string
	endpoint string
	config   recognitionConfig
	http     *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://speech.googleapis.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/v1/speech:recognize",
		config: recognitionConfig{
			Encoding:        cfg.Encoding,
			SampleRateHertz: cfg.SampleRateHz,
			LanguageCode:    cfg.LanguageCode,
		},
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Transcribe sends buf for recognition and joins the top alternative of each
// result with newlines, in result order. No results is not an error.
func (c *Client) Transcribe(ctx context.Context, buf *audio.Buffer) (string, error) {
	data, err := json.Marshal(recognizeRequest{
		Config: c.config,
		Audio:  recognitionAudio{Content: buf.Base64()},
	})
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
		return "", fmt.Errorf("failed to send request: %s", c.redact(err.Error()))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var rr recognizeResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	lines := make([]string, 0, len(rr.Results))
	for _, r := range rr.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		lines = append(lines, r.Alternatives[0].Transcript)
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Client) redact(s string) string {
	if c.apiKey == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(c.apiKey), "REDACTED")
	return strings.ReplaceAll(s, c.apiKey, "REDACTED")
}
