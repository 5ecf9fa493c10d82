package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nkiryanov/videotube/internal/handlers"
	"github.com/nkiryanov/videotube/internal/logger"
	"github.com/nkiryanov/videotube/internal/media"
	"github.com/nkiryanov/videotube/internal/media/local"
	"github.com/nkiryanov/videotube/internal/media/minio"
	"github.com/nkiryanov/videotube/internal/repository"
	"github.com/nkiryanov/videotube/internal/repository/memory"
	"github.com/nkiryanov/videotube/internal/repository/mongo"
	"github.com/nkiryanov/videotube/internal/service/auth"
	"github.com/nkiryanov/videotube/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/videotube/internal/service/user"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	storage repository.Storage
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	storage, err := newStorage(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	app, err := newServerApp(ctx, c, logger, storage)
	if err != nil {
		_ = storage.Close(context.Background())
		return nil, err
	}
	return app, nil
}

func newServerApp(ctx context.Context, c *Config, logger logger.Logger, storage repository.Storage) (*ServerApp, error) {
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  c.AccessSecret,
		RefreshSecret: c.RefreshSecret,
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
	}, storage.User())
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	uploader, mediaDir, err := newUploader(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("error while initializing media store. Err: %w", err)
	}
	if err := os.MkdirAll(c.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("error while creating upload dir. Err: %w", err)
	}

	// Initialize services
	authService, err := auth.NewService(auth.Config{}, tokenManager, storage.User())
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	userService := user.NewService(nil, storage.User(), uploader)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := handlers.NewRouter(
		handlers.Config{
			UploadDir:      c.UploadDir,
			MediaDir:       mediaDir,
			RateLimitRPS:   c.RateLimitRPS,
			RateLimitBurst: c.RateLimitBurst,
			Metrics:        registry,
		},
		authService,
		userService,
		storage,
		logger,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     logger,
		storage:    storage,
	}, nil
}

func newStorage(ctx context.Context, c *Config) (repository.Storage, error) {
	if c.MongoURI == memoryStorageURI {
		return memory.NewStorage(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	return mongo.New(ctx, c.MongoURI, c.DBName)
}

// Return uploader and directory to serve media from. Directory is empty if media is hosted elsewhere
func newUploader(ctx context.Context, c *Config) (media.Uploader, string, error) {
	if c.S3.Endpoint == "" {
		uploader, err := local.New(c.MediaDir, c.MediaBaseURL)
		if err != nil {
			return nil, "", err
		}
		return uploader, uploader.Dir(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	uploader, err := minio.New(ctx, minio.Config{
		Endpoint:  c.S3.Endpoint,
		AccessKey: c.S3.AccessKey,
		SecretKey: c.S3.SecretKey,
		Bucket:    c.S3.Bucket,
		PublicURL: c.S3.PublicURL,
	})
	if err != nil {
		return nil, "", err
	}
	return uploader, "", nil
}

// Run starts http server and closes gracefully on context cancellation
// Storage is closed after the server stopped
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if closeErr := s.storage.Close(closeCtx); closeErr != nil {
		s.logger.Error("Failed to close storage", "error", closeErr)
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
