package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/logger"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/middleware"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/validator"
)

// MaxUploadBytes caps the size of an accepted user file.
const MaxUploadBytes = 32 << 20 // 32MB

// Handler exposes the engine over HTTP.
type Handler struct {
	engine    *Engine
	validator *validator.Validator
}

// NewHandler creates a Handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine, validator: validator.NewValidator()}
}

// CreateUpload handles POST /api/v1/uploads
func (h *Handler) CreateUpload(c *gin.Context) {
	repositoryID := c.PostForm("repository_id")

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	req := &validator.UploadRequest{
		FileName:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		RepositoryID: repositoryID,
	}
	if err := h.validator.ValidateUpload(req); err != nil {
		var fe *domain.FormatError
		if errors.As(err, &fe) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	if len(data) > MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	operator := c.GetHeader("X-Sync-Operator")
	receipt, err := h.engine.SubmitUpload(operator, header.Filename, repositoryID, data)
	if err != nil {
		requestID := middleware.GetRequestID(c)
		logger.WithRequestID(requestID).Error("failed to queue upload", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process upload"})
		return
	}

	c.JSON(http.StatusAccepted, receipt)
}

// GetJob handles GET /api/v1/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	state, err := h.engine.JobState(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetDiff handles GET /api/v1/jobs/:id/diff
func (h *Handler) GetDiff(c *gin.Context) {
	page, size, filter, ok := h.paging(c)
	if !ok {
		return
	}

	result, err := h.engine.ValidationPage(c.Param("id"), page, size, filter)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, ErrJobNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "job not complete"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read result"})
	default:
		c.JSON(http.StatusOK, result)
	}
}

type executeRequestBody struct {
	JobID         string   `json:"job_id"`
	UploadTaskID  string   `json:"upload_task_id"`
	RepositoryID  string   `json:"repository_id"`
	DeleteUserIDs []string `json:"delete_user_ids"`
}

// CreateExecution handles POST /api/v1/executions
func (h *Handler) CreateExecution(c *gin.Context) {
	var body executeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req := &validator.ExecuteRequest{
		JobID:         body.JobID,
		UploadTaskID:  body.UploadTaskID,
		RepositoryID:  body.RepositoryID,
		DeleteUserIDs: body.DeleteUserIDs,
	}
	if err := h.validator.ValidateExecute(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.engine.SubmitExecute(body.JobID, body.UploadTaskID, body.DeleteUserIDs)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
	case errors.Is(err, ErrJobNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "validation not complete"})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, receipt)
	}
}

// GetHistory handles GET /api/v1/history/:id
func (h *Handler) GetHistory(c *gin.Context) {
	page, size, filter, ok := h.paging(c)
	if !ok {
		return
	}

	result, err := h.engine.history.Page(c.Request.Context(), c.Param("id"), page, size, filter)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "history not found"})
	case err != nil:
		requestID := middleware.GetRequestID(c)
		logger.WithRequestID(requestID).Error("failed to read history", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
	default:
		c.JSON(http.StatusOK, result)
	}
}

type cacheRefreshBody struct {
	FQDNs []string `json:"fqdns"`
}

// CreateCacheRefresh handles POST /api/v1/cache-refresh
func (h *Handler) CreateCacheRefresh(c *gin.Context) {
	var body cacheRefreshBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(body.FQDNs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one fqdn is required"})
		return
	}

	if err := h.engine.TriggerCacheRefresh(body.FQDNs); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

// GetCacheTask handles GET /api/v1/cache-refresh/task
func (h *Handler) GetCacheTask(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.CacheTask())
}

// paging parses the shared page/size/categories query parameters.
func (h *Handler) paging(c *gin.Context) (page, size int, filter domain.CategorySet, ok bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a non-negative integer"})
		return 0, 0, nil, false
	}
	size, err = strconv.Atoi(c.DefaultQuery("size", "25"))
	if err != nil || size < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "size must be a positive integer"})
		return 0, 0, nil, false
	}
	filter, err = domain.ParseCategorySet(c.Query("categories"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "categories must be a comma-separated list of known codes"})
		return 0, 0, nil, false
	}
	return page, size, filter, true
}
