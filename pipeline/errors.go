package pipeline

import "fmt"

// Kind classifies why a submission failed
type Kind string

const (
	KindDemuxFailed         Kind = "DemuxFailed"
	KindFileStreamFailed    Kind = "FileStreamFailed"
	KindTranscriptionFailed Kind = "TranscriptionFailed"
	KindNoInputProvided     Kind = "NoInputProvided"
	KindSummarizationFailed Kind = "SummarizationFailed"
	KindForwardingFailed    Kind = "ForwardingFailed"
)

var kindMessages = map[Kind]string{
	KindDemuxFailed:         "Failed to parse the submission.",
	KindFileStreamFailed:    "Failed to receive the uploaded file.",
	KindTranscriptionFailed: "Failed to transcribe the audio.",
	KindNoInputProvided:     "No text or audio provided.",
	KindSummarizationFailed: "Failed to summarize the report.",
	KindForwardingFailed:    "Failed to call validation agent.",
}

// Message is the caller-facing error text for the kind
func (k Kind) Message() string {
	if m, ok := kindMessages[k]; ok {
		return m
	}
	return "Internal server error."
}

// Error is a terminal pipeline failure.
type Error struct {
	Kind  Kind
	State State
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Details is the underlying message, or "" when there is none
func (e *Error) Details() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
