package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"recordimages/internal/images"
	"recordimages/internal/models"
	"recordimages/internal/storage"
)

func (s *Server) handleCreate(c *gin.Context) {
	const op = "server.handleCreate"

	files, err := s.readUploads(c)
	if err != nil {
		s.fail(c, op, err)
		return
	}

	rec := &models.Record{
		Title: c.PostForm("title"),
		Files: files,
	}
	if err := s.repo.CreateRecord(c.Request.Context(), rec); err != nil {
		s.fail(c, op, err)
		return
	}
	if err := s.images.Ingest(c.Request.Context(), rec); err != nil {
		s.fail(c, op, err)
		return
	}

	c.JSON(http.StatusCreated, s.recordView(c.Request.Context(), rec))
}

func (s *Server) handleGet(c *gin.Context) {
	const op = "server.handleGet"

	rec, err := s.loadRecord(c)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, s.recordView(c.Request.Context(), rec))
}

func (s *Server) handleUpdate(c *gin.Context) {
	const op = "server.handleUpdate"

	rec, err := s.loadRecord(c)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	files, err := s.readUploads(c)
	if err != nil {
		s.fail(c, op, err)
		return
	}

	if title, ok := c.GetPostForm("title"); ok {
		rec.Title = title
	}
	rec.Files = files
	if err := s.repo.UpdateRecord(c.Request.Context(), rec); err != nil {
		s.fail(c, op, err)
		return
	}
	if err := s.images.Ingest(c.Request.Context(), rec); err != nil {
		s.fail(c, op, err)
		return
	}

	c.JSON(http.StatusOK, s.recordView(c.Request.Context(), rec))
}

func (s *Server) handleDelete(c *gin.Context) {
	const op = "server.handleDelete"

	rec, err := s.loadRecord(c)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	if err := s.images.Cleanup(c.Request.Context(), rec); err != nil {
		s.fail(c, op, err)
		return
	}
	if err := s.repo.DeleteRecord(c.Request.Context(), rec.ID); err != nil {
		s.fail(c, op, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetImage(c *gin.Context) {
	const op = "server.handleGetImage"

	rec, err := s.loadRecord(c)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	v, err := parseVariant(c)
	if err != nil {
		s.fail(c, op, err)
		return
	}

	a, err := s.images.For(rec)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	link, ok, err := a.Resolve(c.Request.Context(), c.Param("name"), v)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	if redirect, _ := strconv.ParseBool(c.Query("redirect")); redirect {
		c.Redirect(http.StatusFound, link)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link})
}

func (s *Server) handleListImages(c *gin.Context) {
	const op = "server.handleListImages"

	rec, err := s.loadRecord(c)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	field := c.Query("field")
	if field == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field query parameter required"})
		return
	}
	v, err := parseVariant(c)
	if err != nil {
		s.fail(c, op, err)
		return
	}

	a, err := s.images.For(rec)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	links, err := a.ResolveAll(c.Request.Context(), field, v)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"urls": links})
}

func (s *Server) loadRecord(c *gin.Context) (*models.Record, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return s.repo.GetRecord(c.Request.Context(), id)
}

// recordView renders a record with the links of every stored original.
func (s *Server) recordView(ctx context.Context, rec *models.Record) gin.H {
	view := gin.H{
		"id":         rec.ID.String(),
		"title":      rec.Title,
		"created_at": rec.CreatedAt,
		"updated_at": rec.UpdatedAt,
		"images":     gin.H{},
	}
	a, err := s.images.For(rec)
	if err != nil {
		return view
	}

	links := gin.H{}
	for _, field := range s.images.Fields() {
		var urls []string
		if link, ok, err := a.Resolve(ctx, field, images.Variant{}); err == nil && ok {
			urls = append(urls, link)
		}
		if all, err := a.ResolveAll(ctx, field, images.Variant{}); err == nil {
			urls = append(urls, all...)
		}
		if len(urls) > 0 {
			links[field] = urls
		}
	}
	view["images"] = links
	return view
}

func parseVariant(c *gin.Context) (images.Variant, error) {
	var (
		v   images.Variant
		err error
	)
	if w := c.Query("w"); w != "" {
		if v.Width, err = strconv.Atoi(w); err != nil {
			return v, fmt.Errorf("%w: width: %v", errBadRequest, err)
		}
	}
	if h := c.Query("h"); h != "" {
		if v.Height, err = strconv.Atoi(h); err != nil {
			return v, fmt.Errorf("%w: height: %v", errBadRequest, err)
		}
	}
	if st := c.Query("stretch"); st != "" {
		if v.Stretch, err = strconv.ParseBool(st); err != nil {
			return v, fmt.Errorf("%w: stretch: %v", errBadRequest, err)
		}
	}
	return v, nil
}

var errBadRequest = errors.New("bad request")

// statusFor maps errors to HTTP status codes.
func statusFor(err error) int {
	var (
		decodeErr *images.DecodeError
		maxErr    *http.MaxBytesError
	)
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, images.ErrInvalidVariant), errors.Is(err, images.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrRecordNotFound), errors.Is(err, images.ErrUnknownField):
		return http.StatusNotFound
	case errors.Is(err, errUnsupportedUpload):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "op", op, "error", err)
	}
	c.JSON(status, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
}
