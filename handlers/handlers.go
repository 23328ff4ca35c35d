package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"report-intake-service/models"
	"report-intake-service/pipeline"
	"report-intake-service/version"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-ID"

// Submitter runs one submission through the intake pipeline
type Submitter interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type SubmitHandler struct {
	pipeline Submitter
	timeout  time.Duration
}

func NewSubmitHandler(p Submitter, timeout time.Duration) *SubmitHandler {
	return &SubmitHandler{pipeline: p, timeout: timeout}
}

// Submit handles POST /submit. Every request gets exactly one response: the
// validation agent's answer, or a JSON error envelope.
func (h *SubmitHandler) Submit(c *gin.Context) {
	requestID := requestIDFrom(c.GetHeader(HeaderRequestID))
	c.Header(HeaderRequestID, requestID)

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.pipeline.Run(ctx, pipeline.Request{
		ID:          requestID,
		Body:        c.Request.Body,
		ContentType: c.GetHeader("Content-Type"),
	})
	if err != nil {
		status, body := errorResponse(err)
		c.JSON(status, body)
		return
	}

	contentType := res.Forward.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(http.StatusOK, contentType, res.Forward.Body)
}

// requestIDFrom keeps a caller-supplied id only if it is a UUID, in canonical
// form; anything else is replaced.
func requestIDFrom(header string) string {
	if header != "" && len(header) <= 64 {
		if id, err := uuid.Parse(header); err == nil {
			return id.String()
		}
	}
	return uuid.New().String()
}

func errorResponse(err error) (int, models.ErrorResponse) {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		log.WithError(err).Error("submit.unclassified_error")
		return http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error.", Details: err.Error()}
	}

	switch perr.Kind {
	case pipeline.KindNoInputProvided:
		return http.StatusBadRequest, models.ErrorResponse{Error: perr.Kind.Message()}
	case pipeline.KindForwardingFailed:
		return http.StatusInternalServerError, models.ErrorResponse{
			Error:   perr.Kind.Message(),
			Details: perr.Details(),
		}
	default:
		return http.StatusInternalServerError, models.ErrorResponse{
			Error:   perr.Kind.Message(),
			Kind:    string(perr.Kind),
			Details: perr.Details(),
		}
	}
}

// FanoutStatus reports whether report fan-out can currently deliver
type FanoutStatus interface {
	IsConnected() bool
}

type HealthHandler struct {
	fanout FanoutStatus
}

// NewHealthHandler takes the report publisher, or nil when fan-out is off.
func NewHealthHandler(fanout FanoutStatus) *HealthHandler {
	return &HealthHandler{fanout: fanout}
}

// Health returns service health status. A lost fan-out connection degrades the
// service but intake keeps working, so the status code stays 200.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := models.HealthResponse{Status: "healthy", Service: version.Service}
	if h.fanout != nil {
		resp.Fanout = "connected"
		if !h.fanout.IsConnected() {
			resp.Status = "degraded"
			resp.Fanout = "disconnected"
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Version returns build information
func Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}
