package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"photoingest/internal/batch"
	"photoingest/internal/format"
	"photoingest/internal/models"
	"photoingest/internal/storage"
	"photoingest/internal/transform"
)

type optionsRequest struct {
	ThumbnailSize     int   `json:"thumbnail_size" form:"thumbnail_size" binding:"omitempty,min=100,max=800"`
	AnalysisImageSize int   `json:"analysis_image_size" form:"analysis_image_size" binding:"omitempty,min=512,max=2048"`
	Quality           int   `json:"quality" form:"quality" binding:"omitempty,min=50,max=100"`
	SkipDuplicates    *bool `json:"skip_duplicates" form:"skip_duplicates"`
}

func (r optionsRequest) options() models.Options {
	return models.Options{
		ThumbnailSize:     r.ThumbnailSize,
		AnalysisImageSize: r.AnalysisImageSize,
		Quality:           r.Quality,
		SkipDuplicates:    r.SkipDuplicates,
	}
}

type startBatchRequest struct {
	FolderPath string `json:"folder_path" binding:"required"`
	optionsRequest
}

func (s *Server) handleStartBatch(c *gin.Context) {
	const op = "server.handleStartBatch"

	var req startBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	id, err := s.batches.Start(c.Request.Context(), req.FolderPath, req.options())
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, batch.ErrInvalidPath):
			status = http.StatusBadRequest
		case errors.Is(err, batch.ErrShutdown):
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"batch_id": id})
}

func (s *Server) handleListBatches(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"batches": s.batches.List()})
}

func (s *Server) handleGetBatch(c *gin.Context) {
	b, ok := s.batches.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) handleDeleteBatch(c *gin.Context) {
	if !s.batches.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearBatches(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"removed": s.batches.ClearTerminal()})
}

func (s *Server) handleUpload(c *gin.Context) {
	const op = "server.handleUpload"

	var req optionsRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	defer src.Close()

	detected, err := mimetype.DetectReader(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	if !detected.Is("image/jpeg") && !detected.Is("image/png") && !detected.Is("image/tiff") && !format.IsRaw(file.Filename) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error":     fmt.Sprintf("unsupported content type %s", detected.String()),
			"supported": format.Extensions(),
		})
		return
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	img, err := s.batches.Upload(c.Request.Context(), file.Filename, src, req.options())
	if err != nil {
		var dup *batch.DuplicateError
		var terr *transform.Error
		switch {
		case errors.As(err, &dup):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "image": dup.Existing})
		case errors.Is(err, batch.ErrUnsupported):
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error(), "supported": format.Extensions()})
		case errors.As(err, &terr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, img)
}

func (s *Server) handleGetImage(c *gin.Context) {
	const op = "server.handleGetImage"

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	ctx := c.Request.Context()
	img, err := s.records.GetImage(ctx, id)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"image": img}
	if a, err := s.records.GetAnalysis(ctx, id); err == nil {
		resp["analysis"] = a
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("failed to load analysis", "image_id", id, "error", err)
	}
	if m, err := s.records.GetMetadata(ctx, id); err == nil {
		resp["metadata"] = m
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("failed to load metadata", "image_id", id, "error", err)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAnalyze(c *gin.Context) {
	const op = "server.handleAnalyze"

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	fallback, _ := strconv.ParseBool(c.DefaultQuery("fallback", "false"))

	if err := s.batches.Reanalyze(c.Request.Context(), id, fallback); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"image_id": id, "fallback": fallback})
}

func errorStatus(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
