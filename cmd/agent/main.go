package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"aarambh-client/internal/api"
	"aarambh-client/internal/client"
	"aarambh-client/internal/codelab"
	"aarambh-client/internal/config"
	"aarambh-client/internal/grading"
	"aarambh-client/internal/logger"
	"aarambh-client/internal/notify"
	"aarambh-client/internal/session"
	"aarambh-client/internal/storage"
	"aarambh-client/internal/submission"
	"aarambh-client/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Str("backend", cfg.Backend.BaseURL).Msg("Starting agent")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Restore the session from the configured store
	sess, closeStore, err := session.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session store")
	}
	defer closeStore()
	if err := sess.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to restore session")
	}

	backend := client.New(cfg, sess)

	uploader, err := storage.NewUploader(cfg, backend)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize attachment storage")
	}

	var guard *submission.Guard
	if cfg.Submission.Dedup {
		guard = submission.NewGuard(sess.Store(), cfg.Submission.DedupTTL)
	}

	inbox := &notify.Recorder{}
	toasts := notify.Fanout{inbox, notify.NewLog()}
	poller := worker.NewNotificationPoller(cfg.Notifications, backend, toasts)

	handler := api.NewHandler(cfg, api.Deps{
		Backend:   backend,
		Uploader:  uploader,
		Guard:     guard,
		Assistant: grading.NewAssistant(backend, toasts),
		Runner:    codelab.NewRunner(backend, cfg.CodeLab),
		Poller:    poller,
		Inbox:     inbox,
	})

	// Setup Gin router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.Server.MaxUploadMemory
	router.Use(api.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(api.LoggingMiddleware())
	router.Use(api.RecoveryMiddleware())

	api.SetupRoutes(router, handler)

	server := &http.Server{
		Addr:        fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// Zero keeps progress streams open.
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := poller.Start(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Notification poller stopped")
		}
	}()

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down agent...")
	stop()
	poller.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Agent exited")
}
