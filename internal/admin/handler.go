package admin

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nimbusdesk/backend/internal/consistency"
	"github.com/nimbusdesk/backend/internal/middleware"
	"github.com/nimbusdesk/backend/pkg/queue"
	"github.com/nimbusdesk/backend/pkg/response"
	"github.com/nimbusdesk/backend/pkg/storage"
)

// maxSyncScanLimit caps the synchronous violation scan; larger scans go
// through the worker queue.
const maxSyncScanLimit = 500

// Handler handles administrative consistency tooling endpoints.
type Handler struct {
	queue     *queue.Queue
	validator *consistency.Validator
	s3        *storage.S3
	logger    *zap.Logger
}

// NewHandler creates an admin handler. s3 may be nil when report archiving
// is not configured.
func NewHandler(q *queue.Queue, validator *consistency.Validator, s3 *storage.S3, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{queue: q, validator: validator, s3: s3, logger: logger}
}

// EnqueueSweep handles POST /admin/sweeps: a full-population drift sweep,
// executed by the worker.
func (h *Handler) EnqueueSweep(c *gin.Context) {
	principal := middleware.Principal(c)
	jobID, err := h.queue.EnqueueDriftSweep(c.Request.Context(), queue.DriftSweepPayload{RequestedBy: principal.ID})
	if err != nil {
		h.logger.Error("enqueue sweep failed", zap.Error(err))
		response.Internal(c, "failed to enqueue sweep")
		return
	}
	response.OK(c, gin.H{"job_id": jobID})
}

// ScanRequest is the body for POST /admin/scans.
type ScanRequest struct {
	From       *time.Time  `json:"from"`
	To         *time.Time  `json:"to"`
	ContextIDs []uuid.UUID `json:"context_ids"`
}

// EnqueueScan handles POST /admin/scans: a batch violation scan, executed
// by the worker and archived for audit.
func (h *Handler) EnqueueScan(c *gin.Context) {
	principal := middleware.Principal(c)
	var body ScanRequest
	if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid scan request")
		return
	}
	jobID, err := h.queue.EnqueueViolationScan(c.Request.Context(), queue.ViolationScanPayload{
		RequestedBy: principal.ID,
		From:        body.From,
		To:          body.To,
		ContextIDs:  body.ContextIDs,
	})
	if err != nil {
		h.logger.Error("enqueue scan failed", zap.Error(err))
		response.Internal(c, "failed to enqueue scan")
		return
	}
	response.OK(c, gin.H{"job_id": jobID})
}

// Violations handles GET /admin/violations?from=&to=&limit=: a bounded
// synchronous scan for interactive repair tooling. Detection only; nothing
// is mutated.
func (h *Handler) Violations(c *gin.Context) {
	scope := consistency.ScanScope{Limit: maxSyncScanLimit}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(c, "from must be RFC3339")
			return
		}
		scope.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(c, "to must be RFC3339")
			return
		}
		scope.To = &t
	}

	violations, err := h.validator.ScanForViolations(c.Request.Context(), scope)
	if err != nil {
		h.logger.Error("violation scan failed", zap.Error(err))
		response.Internal(c, "failed to scan for violations")
		return
	}
	if violations == nil {
		violations = []consistency.Result{}
	}
	response.OK(c, violations)
}

// ReportDownloadURL handles GET /admin/reports/download-url?key=: a
// presigned URL for an archived consistency report.
func (h *Handler) ReportDownloadURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "report archive not configured")
		return
	}
	key := c.Query("key")
	if key == "" {
		response.BadRequest(c, "key required")
		return
	}
	url, err := h.s3.PresignDownload(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("presign report failed", zap.Error(err), zap.String("key", key))
		response.Internal(c, "failed to presign report download")
		return
	}
	response.OK(c, gin.H{"url": url})
}
