package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/edgeee/commentsystem/api"
	"github.com/edgeee/commentsystem/api/validator"
	"github.com/edgeee/commentsystem/auth"
	"github.com/edgeee/commentsystem/blob"
	"github.com/edgeee/commentsystem/config"
	"github.com/edgeee/commentsystem/events"
	"github.com/edgeee/commentsystem/memstore"
	"github.com/edgeee/commentsystem/postgres"
	"github.com/edgeee/commentsystem/redis"
	"github.com/edgeee/commentsystem/widget"
	"github.com/microcosm-cc/bluemonday"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

// backend is the set of stores selected by the configuration.
type backend struct {
	store     widget.Store
	directory widget.Directory
	users     api.UserRecorder
	blobs     widget.BlobStore
	// attachments is set when attachments are kept in process.
	attachments api.BlobReader
	close       func() error
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	var b backend
	switch cfg.Store {
	case config.StoreMemory:
		mem := memstore.New(cfg.Server.PublicURL)
		b = backend{store: mem, directory: mem, users: mem, blobs: mem, attachments: mem, close: func() error { return nil }}
		logger.Warn("Using the in-memory store, comments are lost on restart")
	default:
		pg, err := postgres.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		b = backend{store: pg, directory: pg, users: pg, close: pg.Close}
		// Attachments stay in process until a bucket is configured.
		mem := memstore.New(cfg.Server.PublicURL)
		b.blobs, b.attachments = mem, mem
	}

	if cfg.S3.Bucket != "" {
		s3, err := blob.NewS3(ctx, blob.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			b.close()
			return nil, err
		}
		b.blobs, b.attachments = s3, nil
		logger.Info("Attachments stored in S3", "bucket", cfg.S3.Bucket)
	}
	return &b, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			logger.Error("Could not close store", "error", err.Error())
		}
	}()

	var cache widget.PageCache
	if cfg.Redis.URL != "" {
		rdb, err := redis.Connect(ctx, cfg.Redis.URL, cfg.Redis.PageTTL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		cache = rdb
		logger.Info("Page cache enabled", "ttl", cfg.Redis.PageTTL)
	}

	var (
		publisher events.Publisher = events.NoopPublisher{}
		bus       *events.NATS
	)
	if cfg.NATS.URL != "" {
		bus, err = events.Connect(cfg.NATS.URL, logger)
		if err != nil {
			return err
		}
		publisher = bus
		logger.Info("Events enabled", "nats_url", cfg.NATS.URL)
	} else {
		logger.Info("Events disabled (COMMENTS_NATS_URL not set)")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Could not close publisher", "error", err.Error())
		}
	}()

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("COMMENTS_JWT_SECRET not set, every request is signed out")
	}

	assembler := &widget.Assembler{Store: b.store, Cache: cache, Logger: logger}
	coordinator := widget.NewCoordinator(assembler, cache, publisher, logger)

	if bus != nil {
		msgs, cancel, err := bus.Subscribe(events.TopicAll)
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", events.TopicAll, err)
		}
		defer cancel()
		go coordinator.Watch(ctx, msgs)
	}

	// Prime the comment count shown beside the sort options.
	if _, err := coordinator.Load(ctx, widget.Query{}); err != nil {
		logger.Error("Could not load comments", "error", err.Error())
	}

	handler := &api.API{
		Logger:    logger,
		Assembler: assembler,
		Repository: &widget.Repository{
			Store:  b.store,
			Blobs:  b.blobs,
			Logger: logger,
		},
		Coordinator: coordinator,
		Directory:   b.directory,
		Users:       b.users,
		Auth: &auth.Authority{
			Secret: []byte(cfg.Auth.JWTSecret),
			Issuer: cfg.Auth.Issuer,
			Leeway: cfg.Auth.Leeway,
		},
		Val:            validator.New(),
		Sanitizer:      bluemonday.UGCPolicy(),
		Attachments:    b.attachments,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}
	srv.RegisterOnShutdown(handler.CloseStreams)

	errc := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", cfg.Server.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server exited gracefully")
	return nil
}
