package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/webatelier/livechat-server-go/internal/config"
	"github.com/webatelier/livechat-server-go/internal/database"
	"github.com/webatelier/livechat-server-go/internal/fanout"
	"github.com/webatelier/livechat-server-go/internal/handler"
	"github.com/webatelier/livechat-server-go/internal/jobs"
	"github.com/webatelier/livechat-server-go/internal/middleware"
	"github.com/webatelier/livechat-server-go/internal/presence"
	"github.com/webatelier/livechat-server-go/internal/redis"
	"github.com/webatelier/livechat-server-go/internal/repository"
	"github.com/webatelier/livechat-server-go/internal/service"
	"github.com/webatelier/livechat-server-go/internal/sse"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	log.Logger = log.Output(logWriter(cfg.LogFile))
	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	sessionRepo := repository.NewSessionRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	typingPublisher := presence.NewPublisher(redisClient)

	sessionService := service.NewSessionService(db, sessionRepo, messageRepo, broker)
	messageService := service.NewMessageService(sessionRepo, messageRepo, broker)
	dashboardService := service.NewDashboardService(sessionRepo, messageRepo, cfg.PreviewMaxRunes)

	feedManager := fanout.NewManager(broker, messageService)

	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, cfg.RateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	sessionHandler := handler.NewSessionHandler(sessionService, messageService, typingPublisher)
	messageHandler := handler.NewMessageHandler(messageService)
	eventsHandler := handler.NewEventsHandler(broker, redisClient, sessionService, cfg.TypingTimeout())
	wsHandler := handler.NewWSHandler(feedManager, redisClient, sessionService, typingPublisher, cfg.TypingIdle(), cfg.TypingTimeout())
	dashboardHandler := handler.NewDashboardHandler(dashboardService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimitMiddleware.Handler)

		r.Get("/events", eventsHandler.DashboardEvents)
		r.Get("/sessions/{sessionID}/events", eventsHandler.SessionEvents)
		r.Get("/sessions/{sessionID}/ws", wsHandler.ServeHTTP)

		r.Mount("/sessions", sessionHandler.Routes())
		r.Mount("/messages", messageHandler.Routes())
		r.Mount("/dashboard", dashboardHandler.Routes())
	})

	statsJob := jobs.NewStatsRefreshJob(dashboardService, cfg.StatsRefreshInterval())
	statsJob.Start()
	defer statsJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func logWriter(logFile string) io.Writer {
	if logFile == "" {
		return zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100,
		MaxAge:     28,
		MaxBackups: 5,
		Compress:   true,
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
