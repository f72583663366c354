// Package server exposes batch control and image records over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"photoingest/internal/models"
)

// Batches is the orchestrator surface the HTTP layer drives.
type Batches interface {
	Start(ctx context.Context, folder string, opts models.Options) (string, error)
	Status(id string) (models.Batch, bool)
	List() []models.BatchSummary
	Delete(id string) bool
	ClearTerminal() int
	Upload(ctx context.Context, filename string, r io.Reader, opts models.Options) (*models.Image, error)
	Reanalyze(ctx context.Context, imageID int64, useFallback bool) error
}

// Records is the read side of the record store.
type Records interface {
	GetImage(ctx context.Context, id int64) (*models.Image, error)
	GetAnalysis(ctx context.Context, imageID int64) (*models.Analysis, error)
	GetMetadata(ctx context.Context, imageID int64) (*models.Metadata, error)
}

type Server struct {
	cfg     *models.Config
	router  *gin.Engine
	http    *http.Server
	batches Batches
	records Records
	log     *slog.Logger
}

func NewServer(cfg *models.Config, batches Batches, records Records, log *slog.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery(), LoggingMiddleware(log))
	r.Static("/files", cfg.UploadDir)
	r.Static("/thumbnails", cfg.ThumbnailDir)

	s := &Server{
		cfg:     cfg,
		router:  r,
		batches: batches,
		records: records,
		log:     log,
		http:    &http.Server{Addr: cfg.ServerAddr, Handler: r},
	}

	r.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/batches", s.handleStartBatch)
	api.GET("/batches", s.handleListBatches)
	api.DELETE("/batches", s.handleClearBatches)
	api.GET("/batches/:id", s.handleGetBatch)
	api.DELETE("/batches/:id", s.handleDeleteBatch)

	api.POST("/images", s.handleUpload)
	api.GET("/images/:id", s.handleGetImage)
	api.POST("/images/:id/analyze", s.handleAnalyze)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.cfg.ServerAddr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
