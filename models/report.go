package models

import (
	"github.com/shopspring/decimal"
)

// Recognised multipart field names on POST /submit
const (
	FieldCitizenID   = "citizen_id"
	FieldDescription = "description"
	FieldLocation    = "location"
	FieldPhotoURLs   = "photo_urls"
	FieldAudio       = "audio"
)

// Submission holds the text fields of one inbound multipart request.
// File parts are streamed and never stored here.
type Submission struct {
	Fields map[string]string
	Files  []FileInfo
}

// FileInfo records a file part seen on the wire
type FileInfo struct {
	Field    string
	Filename string
	Consumed bool
}

// Get returns the value of a named field, "" if absent
func (s *Submission) Get(name string) string {
	if s == nil || s.Fields == nil {
		return ""
	}
	return s.Fields[name]
}

// Coordinates is the parsed form of the location field
type Coordinates struct {
	Latitude  decimal.Decimal `json:"latitude"`
	Longitude decimal.Decimal `json:"longitude"`
	S2Cell    string          `json:"s2_cell"`
}

// StructuredReport is the normalized record sent to the validation agent
type StructuredReport struct {
	CitizenID    string       `json:"citizen_id"`
	OriginalText string       `json:"original_text"`
	Summary      string       `json:"summary"`
	Location     string       `json:"location"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
	PhotoURLs    []string     `json:"photo_urls"`
}

// ForwardResult is the validation agent's answer, relayed verbatim
type ForwardResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// ErrorResponse is the error envelope returned to the caller
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Fanout  string `json:"fanout,omitempty"`
}
