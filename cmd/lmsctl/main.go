package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"aarambh-client/internal/client"
	"aarambh-client/internal/config"
	"aarambh-client/internal/logger"
	"aarambh-client/internal/session"
	"aarambh-client/internal/storage"
	"aarambh-client/internal/submission"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries command output
	logger.InitWithWriter(cfg.Logging.Level, "console", os.Stderr)
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, closeStore, err := session.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session store")
	}
	if err := sess.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to restore session")
	}

	backend := client.New(cfg, sess)
	uploader, err := storage.NewUploader(cfg, backend)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize attachment storage")
	}

	cli := commandLine{
		cfg:      cfg,
		api:      backend,
		uploader: uploader,
		out:      os.Stdout,
		in:       os.Stdin,
	}
	if cfg.Submission.Dedup {
		cli.guard = submission.NewGuard(sess.Store(), cfg.Submission.DedupTTL)
	}

	err = cli.run(ctx, os.Args)
	closeStore()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		}
		os.Exit(1)
	}
}
