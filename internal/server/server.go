package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"recordimages/internal/images"
	"recordimages/internal/models"
)

// Repository persists records. *storage.Storage implements it.
type Repository interface {
	CreateRecord(ctx context.Context, rec *models.Record) error
	GetRecord(ctx context.Context, id uuid.UUID) (*models.Record, error)
	UpdateRecord(ctx context.Context, rec *models.Record) error
	DeleteRecord(ctx context.Context, id uuid.UUID) error
}

type Server struct {
	cfg    *models.Config
	router *gin.Engine
	repo   Repository
	images *images.Behavior
	logger *slog.Logger
	http   *http.Server
}

func NewServer(cfg *models.Config, repo Repository, b *images.Behavior, logger *slog.Logger) *Server {
	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxUploadBytes()

	s := &Server{
		cfg:    cfg,
		router: r,
		repo:   repo,
		images: b,
		logger: logger.With("system", "server"),
	}

	r.Use(gin.Recovery(), s.requestLogger())
	r.Static(cfg.WebPath, cfg.StoragePath)

	r.POST("/records", s.handleCreate)
	r.GET("/records/:id", s.handleGet)
	r.PUT("/records/:id", s.handleUpdate)
	r.DELETE("/records/:id", s.handleDelete)
	r.GET("/records/:id/images", s.handleListImages)
	r.GET("/records/:id/images/:name", s.handleGetImage)

	s.http = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.cfg.ServerAddr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
