package handlers

import (
	"context"
	"net/http"

	"triageapp/internal/models"
	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"
	"triageapp/internal/worker"

	"github.com/gin-gonic/gin"
)

// WorkerController is the part of the worker the admin API drives
type WorkerController interface {
	GetStatus() models.WorkerStatus
	GetHistory() []worker.RunRecord
	GetActivityLogs() []worker.ActivityLog
	TriggerManualRun()
	Pause(ctx context.Context)
	Resume(ctx context.Context)
}

// WorkerAdminHandler handles worker administration endpoints
type WorkerAdminHandler struct {
	worker WorkerController
	logger *observability.Logger
}

// NewWorkerAdminHandler creates a new WorkerAdminHandler. w may be nil when the worker failed to start.
func NewWorkerAdminHandler(w WorkerController, logger *observability.Logger) *WorkerAdminHandler {
	return &WorkerAdminHandler{worker: w, logger: logger}
}

func (h *WorkerAdminHandler) available(c *gin.Context) bool {
	if h.worker == nil {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrServiceUnavailable, "worker is not running"))
		return false
	}
	return true
}

// GetWorkerStatus returns the current worker status
func (h *WorkerAdminHandler) GetWorkerStatus(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_worker_status")
	defer observability.FinishSpan(span, nil)
	if !h.available(c) {
		return
	}
	c.JSON(http.StatusOK, h.worker.GetStatus())
}

// GetWorkerDetails returns the status together with the run history
func (h *WorkerAdminHandler) GetWorkerDetails(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_worker_details")
	defer observability.FinishSpan(span, nil)
	if !h.available(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  h.worker.GetStatus(),
		"history": h.worker.GetHistory(),
	})
}

// GetActivityLogs returns recent activity logs from the worker
func (h *WorkerAdminHandler) GetActivityLogs(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_activity_logs")
	defer observability.FinishSpan(span, nil)
	if !h.available(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": h.worker.GetActivityLogs()})
}

// PauseWorker pauses job processing and maintenance
func (h *WorkerAdminHandler) PauseWorker(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "pause_worker")
	defer observability.FinishSpan(span, nil)
	if !h.available(c) {
		return
	}
	h.worker.Pause(ctx)
	c.JSON(http.StatusOK, gin.H{"message": "Worker paused"})
}

// ResumeWorker resumes a paused worker
func (h *WorkerAdminHandler) ResumeWorker(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "resume_worker")
	defer observability.FinishSpan(span, nil)
	if !h.available(c) {
		return
	}
	h.worker.Resume(ctx)
	c.JSON(http.StatusOK, gin.H{"message": "Worker resumed"})
}

// TriggerWorkerRun triggers a manual worker run
func (h *WorkerAdminHandler) TriggerWorkerRun(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "trigger_worker_run")
	defer observability.FinishSpan(span, nil)
	if !h.available(c) {
		return
	}
	h.worker.TriggerManualRun()
	c.JSON(http.StatusAccepted, gin.H{"message": "Worker run triggered"})
}
