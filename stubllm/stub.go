package stubllm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"report-intake-service/audio"
)

// Client is a deterministic, no-network summarizer and transcriber intended for
// CI and local end-to-end tests. Outputs depend only on the input bytes.
type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) SourceName() string { return "Stub" }

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	first := strings.TrimSpace(text)
	if i := strings.IndexAny(first, ".!?\n"); i >= 0 {
		first = first[:i]
	}
	first = truncate(strings.TrimSpace(first), 120)
	if first == "" {
		first = "Citizen report"
	}
	return fmt.Sprintf("%s.", first), nil
}

func (c *Client) Transcribe(ctx context.Context, buf *audio.Buffer) (string, error) {
	if buf.Empty() {
		return "", nil
	}
	sum := sha256.Sum256(buf.Bytes())
	return fmt.Sprintf("Stub transcript of %d bytes (%s)", buf.Len(), hex.EncodeToString(sum[:8])), nil
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}
