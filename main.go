package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"report-intake-service/config"
	"report-intake-service/forwarder"
	"report-intake-service/gemini"
	"report-intake-service/handlers"
	"report-intake-service/llm"
	"report-intake-service/metrics"
	"report-intake-service/middleware"
	"report-intake-service/pipeline"
	"report-intake-service/rabbitmq"
	"report-intake-service/speech"
	"report-intake-service/stubllm"
	"report-intake-service/version"

	"github.com/apex/log"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	EndPointHealth  = "/health"
	EndPointVersion = "/version"
	EndPointMetrics = "/metrics"
	EndPointSubmit  = "/submit"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn("Warning: .env file not found, using system environment variables")
	}

	cfg := config.Load()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	info := version.Get()
	log.WithFields(log.Fields{
		"version":  info.Version,
		"git_sha":  info.GitSHA,
		"provider": cfg.LLMProvider,
	}).Info("Starting the report intake service...")

	metrics.Register()

	opts := []pipeline.Option{pipeline.WithMaxUploadBytes(cfg.MaxUploadBytes)}

	var publisher *rabbitmq.Publisher
	if cfg.PublishReports {
		dialCtx, cancelDial := context.WithTimeout(context.Background(), 30*time.Second)
		p, err := rabbitmq.NewPublisher(dialCtx, cfg.RabbitMQ.GetAMQPURL(), cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		cancelDial()
		if err != nil {
			log.WithError(err).Warn("Report publishing disabled, RabbitMQ unavailable")
		} else {
			publisher = p
			opts = append(opts, pipeline.WithPublisher(p))
			log.Infof("Publishing reports to exchange %s with routing key %s", cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		}
	}

	transcriber, summarizer := newLanguageClients(cfg)
	p := pipeline.New(transcriber, summarizer, forwarder.New(cfg.ValidationAgentURL, cfg.HTTPTimeout), opts...)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: setupRouter(cfg, p, fanoutStatus(publisher)),
	}

	go func() {
		log.Infof("Report intake service starting on port %s", cfg.Port)
		log.Infof("Rate limit: %d requests per minute", cfg.RateLimitPerMinute)
		log.Infof("Allowed origins: %v", cfg.AllowedOrigins)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close RabbitMQ publisher")
		}
	}

	log.Info("Server exited")
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.SetHandler(jsonhandler.New(os.Stderr))
	} else {
		log.SetHandler(text.New(os.Stderr))
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func newLanguageClients(cfg *config.Config) (llm.Transcriber, llm.Summarizer) {
	if cfg.LLMProvider == "stub" {
		log.Warn("LLM_PROVIDER=stub, summaries and transcripts are synthetic")
		stub := stubllm.NewClient()
		return stub, stub
	}
	summarizer := gemini.NewClient(gemini.Config{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		Timeout:    cfg.HTTPTimeout,
	})
	transcriber := speech.NewClient(speech.Config{
		APIKey:       cfg.SpeechAPIKey,
		BaseURL:      cfg.SpeechBaseURL,
		Encoding:     cfg.SpeechEncoding,
		SampleRateHz: cfg.SpeechSampleRate,
		LanguageCode: cfg.SpeechLanguage,
		Timeout:      cfg.HTTPTimeout,
	})
	return transcriber, summarizer
}

// fanoutStatus keeps a nil publisher a nil interface.
func fanoutStatus(p *rabbitmq.Publisher) handlers.FanoutStatus {
	if p == nil {
		return nil
	}
	return p
}

func setupRouter(cfg *config.Config, p handlers.Submitter, fanout handlers.FanoutStatus) *gin.Engine {
	router := gin.Default()

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", handlers.HeaderRequestID},
		ExposeHeaders:    []string{handlers.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	router.Use(cors.New(corsConfig))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{EndPointMetrics})))

	router.GET(EndPointHealth, handlers.NewHealthHandler(fanout).Health)
	router.GET(EndPointVersion, handlers.Version)
	router.GET(EndPointMetrics, gin.WrapH(promhttp.Handler()))

	submit := handlers.NewSubmitHandler(p, cfg.RequestTimeout)
	rateLimited := router.Group("/")
	rateLimited.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute, time.Minute))
	{
		rateLimited.POST(EndPointSubmit, submit.Submit)
	}

	return router
}
