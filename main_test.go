package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"report-intake-service/config"
	"report-intake-service/metrics"
	"report-intake-service/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type noInputSubmitter struct{}

func (noInputSubmitter) Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	return nil, &pipeline.Error{Kind: pipeline.KindNoInputProvided}
}

func testConfig() *config.Config {
	return &config.Config{
		AllowedOrigins:     []string{"https://app.cleanapp.io"},
		RateLimitPerMinute: 2,
		RequestTimeout:     time.Minute,
	}
}

func TestRouterEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.Register()
	router := setupRouter(testConfig(), noInputSubmitter{}, nil)

	for _, path := range []string{EndPointHealth, EndPointVersion, EndPointMetrics} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, EndPointMetrics, nil))
	assert.Contains(t, w.Body.String(), "cleanapp_intake_in_flight")
}

func TestRouterSubmitIsRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := setupRouter(testConfig(), noInputSubmitter{}, nil)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, EndPointSubmit, strings.NewReader(""))
		req.RemoteAddr = "198.51.100.7:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func TestRouterCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := setupRouter(testConfig(), noInputSubmitter{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, EndPointSubmit, nil)
	req.Header.Set("Origin", "https://app.cleanapp.io")
	req.Header.Set("Access-Control-Request-Method", "POST")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.cleanapp.io", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, EndPointHealth, nil)
	req.Header.Set("Origin", "https://evil.example")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
