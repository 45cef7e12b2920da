package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timmy/recipe-ingest/internal/api/middleware"
	"github.com/timmy/recipe-ingest/internal/domain"
	"github.com/timmy/recipe-ingest/internal/extract"
	"github.com/timmy/recipe-ingest/internal/normalize"
	"github.com/timmy/recipe-ingest/internal/repository"
	"github.com/timmy/recipe-ingest/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Ingestion is the part of the ingestion service the handler drives.
type Ingestion interface {
	Status() service.ServiceStatus
	ListJobs(ctx context.Context, filter repository.JobFilter) ([]domain.IngestionJob, int64, error)
	GetJob(ctx context.Context, id string) (*domain.IngestionJob, error)
	SimilarRecipes(ctx context.Context, jobID string) ([]service.SimilarRecipe, error)
	Review(ctx context.Context, jobID string, decision domain.ReviewDecision, notes string) (*service.ReviewOutcome, error)
	Reprocess(ctx context.Context, jobID string) (domain.ProcessingResult, error)
	Upload(ctx context.Context, filename string, r io.Reader) (domain.ProcessingResult, error)
	Stats(ctx context.Context) (domain.IngestionStats, error)
}

// CatalogReloader swaps in a fresh ingredient catalog.
type CatalogReloader interface {
	Reload(ctx context.Context) (normalize.CatalogCounts, error)
}

// IngestionHandler serves the job, review and upload endpoints.
type IngestionHandler struct {
	svc            Ingestion
	catalog        CatalogReloader
	maxUploadBytes int64
}

// NewIngestionHandler creates a handler. maxUploadBytes <= 0 disables the
// upload size limit.
func NewIngestionHandler(svc Ingestion, catalog CatalogReloader, maxUploadBytes int64) *IngestionHandler {
	return &IngestionHandler{svc: svc, catalog: catalog, maxUploadBytes: maxUploadBytes}
}

// JobListResponse is the body of GET /jobs.
type JobListResponse struct {
	Jobs       []domain.IngestionJob `json:"jobs"`
	TotalCount int64                 `json:"total_count"`
	HasMore    bool                  `json:"has_more"`
}

// ReviewRequest is the body of POST /jobs/:id/review.
type ReviewRequest struct {
	Decision domain.ReviewDecision `json:"decision" binding:"required"`
	Notes    string                `json:"notes"`
}

// ReviewResponse is returned after a review decision.
type ReviewResponse struct {
	Message string               `json:"message"`
	Job     *domain.IngestionJob `json:"job"`
}

// UploadResponse is returned after an upload has been processed.
type UploadResponse struct {
	Filename string                  `json:"filename"`
	Result   domain.ProcessingResult `json:"result"`
}

// Status handles GET /api/v1/ingestion/status.
func (h *IngestionHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status())
}

// ListJobs handles GET /api/v1/ingestion/jobs.
func (h *IngestionHandler) ListJobs(c *gin.Context) {
	filter := repository.JobFilter{Limit: defaultPageSize}
	if s := c.Query("status"); s != "" {
		status := domain.JobStatus(strings.ToUpper(s))
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status: " + s})
			return
		}
		filter.Status = &status
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxPageSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(maxPageSize)})
			return
		}
		filter.Limit = n
	}
	if s := c.Query("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
			return
		}
		filter.Offset = n
	}

	jobs, total, err := h.svc.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "Failed to list jobs", err)
		return
	}
	if jobs == nil {
		jobs = []domain.IngestionJob{}
	}
	c.JSON(http.StatusOK, JobListResponse{
		Jobs:       jobs,
		TotalCount: total,
		HasMore:    int64(filter.Offset+len(jobs)) < total,
	})
}

// GetJob handles GET /api/v1/ingestion/jobs/:id.
func (h *IngestionHandler) GetJob(c *gin.Context) {
	job, err := h.svc.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get job", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// SimilarRecipes handles GET /api/v1/ingestion/jobs/:id/similar.
func (h *IngestionHandler) SimilarRecipes(c *gin.Context) {
	similar, err := h.svc.SimilarRecipes(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to load similar recipes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"similar_recipes": similar})
}

// Review handles POST /api/v1/ingestion/jobs/:id/review.
func (h *IngestionHandler) Review(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	req.Decision = domain.ReviewDecision(strings.ToUpper(string(req.Decision)))
	if !req.Decision.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision must be APPROVED, REJECTED or NEEDS_REVISION"})
		return
	}

	out, err := h.svc.Review(c.Request.Context(), c.Param("id"), req.Decision, req.Notes)
	if err != nil {
		h.fail(c, "Review failed", err)
		return
	}
	c.JSON(http.StatusOK, ReviewResponse{Message: out.Message, Job: out.Job})
}

// Reprocess handles POST /api/v1/ingestion/jobs/:id/reprocess.
func (h *IngestionHandler) Reprocess(c *gin.Context) {
	res, err := h.svc.Reprocess(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Reprocess failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Upload handles POST /api/v1/ingestion/upload. The file is stored in the
// inbox and processed before the response is written.
func (h *IngestionHandler) Upload(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File exceeds the upload limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "A multipart file field named 'file' is required"})
		return
	}

	name := filepath.Base(header.Filename)
	if !extract.IsSupported(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported file type: " + strings.ToLower(filepath.Ext(name))})
		return
	}

	f, err := header.Open()
	if err != nil {
		h.fail(c, "Failed to read upload", err)
		return
	}
	defer f.Close()

	res, err := h.svc.Upload(c.Request.Context(), name, f)
	if err != nil {
		h.fail(c, "Upload failed", err)
		return
	}
	c.JSON(http.StatusOK, UploadResponse{Filename: name, Result: res})
}

// Stats handles GET /api/v1/ingestion/stats.
func (h *IngestionHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to compute stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ReloadCatalog handles POST /api/v1/ingestion/catalog/reload.
func (h *IngestionHandler) ReloadCatalog(c *gin.Context) {
	counts, err := h.catalog.Reload(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to reload catalog", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Catalog reloaded", "counts": counts})
}

// fail writes err with the status its kind maps to.
func (h *IngestionHandler) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		middleware.GetLogger(c).WithError(err).Error(msg)
	}
	c.JSON(status, gin.H{"error": msg + ": " + err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, service.ErrAlreadyQueued):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMissingSnapshot), errors.Is(err, domain.ErrSourceMissing),
		errors.Is(err, service.ErrNotApprovable):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
