package llm

import (
	"context"

	"report-intake-service/audio"
)

// Summarizer abstracts the generative model that condenses a report.
// Implementations must be concurrency-safe; one instance serves every request.
type Summarizer interface {
	// Summarize returns one sentence describing the core issue in text.
	// text is never empty.
	Summarize(ctx context.Context, text string) (string, error)
	// SourceName returns a short provider label for logs and metrics (e.g. "Gemini").
	SourceName() string
}

// Transcriber abstracts the speech recognition service.
type Transcriber interface {
	// Transcribe returns the newline-joined top alternative of every recognised
	// segment, or "" when nothing was recognised.
	Transcribe(ctx context.Context, buf *audio.Buffer) (string, error)
}

// SummaryPrompt wraps a citizen report in the one-sentence summary instruction.
func SummaryPrompt(text string) string {
	return `Summarize the following citizen report in one clear sentence. Extract the core issue. Report: "` + text + `"`
}
