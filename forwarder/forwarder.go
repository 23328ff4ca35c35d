package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"report-intake-service/models"
)

const maxDetailBody = 512

// Forwarder posts structured reports to the validation agent. Safe for
// concurrent use.
type Forwarder struct {
	url  string
	http *http.Client
}

func New(url string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Forwarder{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// Forward sends the report once. A 2xx answer is returned verbatim; transport
// errors and other statuses are returned as errors carrying the detail.
func (f *Forwarder) Forward(ctx context.Context, report models.StructuredReport) (*models.ForwardResult, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read validation response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxDetailBody {
			body = body[:maxDetailBody]
		}
		return nil, fmt.Errorf("validation agent returned status %d: %s", resp.StatusCode, string(body))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	return &models.ForwardResult{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}, nil
}
