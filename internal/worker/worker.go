// Package worker contains the background analysis worker. It consumes job ids
// from the queue, polls the database for pending jobs the queue missed, and
// runs scheduled maintenance (auto-closing resolved reports, failing stale
// jobs, expiring unused uploads). The worker runs independently of the API
// server and can be replicated; job claims are arbitrated by the database.
package worker

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"triageapp/internal/config"
	"triageapp/internal/models"
	"triageapp/internal/observability"
	"triageapp/internal/queue"
	"triageapp/internal/services"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// pendingBatchSize bounds how many pending jobs one poll cycle picks up
	pendingBatchSize = 20
	// maxActivityLength keeps activity strings readable on the admin page
	maxActivityLength = 200
)

// JobProcessor is the part of the analysis service the worker drives
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID string) (bool, error)
	PendingJobs(ctx context.Context, limit int) ([]string, error)
}

// Maintainer runs the periodic housekeeping pass
type Maintainer interface {
	RunFullMaintenance(ctx context.Context) (services.MaintenanceStats, error)
}

// Status represents the current state of the worker
type Status struct {
	IsRunning       bool      `json:"is_running"`
	IsPaused        bool      `json:"is_paused"`
	CurrentActivity string    `json:"current_activity,omitempty"`
	LastRunStart    time.Time `json:"last_run_start"`
	LastRunFinish   time.Time `json:"last_run_finish"`
	LastRunError    string    `json:"last_run_error,omitempty"`
}

// RunRecord tracks individual worker runs
type RunRecord struct {
	Kind      string        `json:"kind"` // poll, maintenance
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"` // Success, Failure
	Details   string        `json:"details"`
}

// ActivityLog represents a single activity log entry
type ActivityLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // INFO, WARN, ERROR
	Message   string    `json:"message"`
	JobID     string    `json:"job_id,omitempty"`
}

// Config holds worker-specific configuration
type Config struct {
	StartWorkerPaused bool
	PollInterval      time.Duration
	Schedule          string
}

// Worker processes analysis jobs in the background
type Worker struct {
	jobs          JobProcessor
	maintenance   Maintainer
	queue         queue.Queue
	instance      string
	status        Status
	history       []RunRecord
	activityLogs  []ActivityLog // Circular buffer for recent activity logs
	mu            sync.RWMutex
	processMu     sync.Mutex // one job at a time per worker
	manualTrigger chan bool
	scheduler     *cron.Cron
	maintenanceID cron.EntryID
	cfg           *config.Config
	workerCfg     Config
	logger        *observability.Logger

	totalProcessed int
	totalFailed    int

	// Time function for testing - defaults to time.Now
	timeNow func() time.Time
	wg      sync.WaitGroup
}

// NewWorker creates a new Worker instance. maintenance and q may be nil.
func NewWorker(jobs JobProcessor, maintenance Maintainer, q queue.Queue, instance string, cfg *config.Config, logger *observability.Logger) *Worker {
	if jobs == nil {
		panic("NewWorker: job processor is required")
	}
	if instance == "" {
		instance = "default"
	}

	pollInterval := cfg.Worker.PollInterval
	if pollInterval <= 0 {
		pollInterval = config.WorkerCheckInterval
	}
	schedule := cfg.Worker.MaintenanceSchedule
	if schedule == "" {
		schedule = "@hourly"
	}
	if cfg.Server.MaxHistory <= 0 {
		cfg.Server.MaxHistory = 50
	}
	if cfg.Server.MaxActivityLogs <= 0 {
		cfg.Server.MaxActivityLogs = 200
	}

	w := &Worker{
		jobs:          jobs,
		maintenance:   maintenance,
		queue:         q,
		instance:      instance,
		status:        Status{IsRunning: false, CurrentActivity: "Initialized"},
		history:       make([]RunRecord, 0, cfg.Server.MaxHistory),
		activityLogs:  make([]ActivityLog, 0, cfg.Server.MaxActivityLogs),
		manualTrigger: make(chan bool, 1),
		scheduler:     cron.New(),
		cfg:           cfg,
		logger:        logger,
		timeNow:       time.Now,
		workerCfg: Config{
			StartWorkerPaused: getEnvBool("WORKER_START_PAUSED", false),
			PollInterval:      pollInterval,
			Schedule:          schedule,
		},
	}
	w.status.IsPaused = w.workerCfg.StartWorkerPaused
	return w
}

// getEnvBool is a helper function to get boolean environment variables
func getEnvBool(key string, defaultValue bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultValue
	}
	return val
}

// Start runs the worker until ctx is cancelled. It returns an error only when
// the maintenance schedule cannot be parsed.
func (w *Worker) Start(ctx context.Context) error {
	if w.maintenance != nil {
		id, err := w.scheduler.AddFunc(w.workerCfg.Schedule, func() { w.runMaintenance(ctx) })
		if err != nil {
			return fmt.Errorf("invalid maintenance schedule %q: %w", w.workerCfg.Schedule, err)
		}
		w.mu.Lock()
		w.maintenanceID = id
		w.mu.Unlock()
		w.scheduler.Start()
	}

	w.mu.Lock()
	w.status.IsRunning = true
	w.mu.Unlock()

	if w.queue != nil {
		w.wg.Add(1)
		go w.consumeQueue(ctx)
	}

	ticker := time.NewTicker(w.workerCfg.PollInterval)
	defer ticker.Stop()

	initialStatus := "running"
	if w.IsPaused() {
		initialStatus = "paused"
	}
	backend := "none"
	if w.queue != nil {
		backend = w.queue.Backend()
	}
	w.logger.Info(ctx, "Worker started", map[string]interface{}{
		"instance":      w.instance,
		"status":        initialStatus,
		"queue_backend": backend,
		"poll_interval": w.workerCfg.PollInterval.String(),
		"schedule":      w.workerCfg.Schedule,
	})
	w.logActivity("INFO", fmt.Sprintf("Worker %s started (%s)", w.instance, initialStatus), "")

	// pick up whatever accumulated while no worker was running
	w.run(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "Worker shutting down", map[string]interface{}{
				"instance": w.instance,
			})
			w.logActivity("INFO", fmt.Sprintf("Worker %s shutting down", w.instance), "")
			w.mu.Lock()
			w.status.IsRunning = false
			w.mu.Unlock()
			return nil

		case <-ticker.C:
			w.run(ctx)

		case <-w.manualTrigger:
			w.logger.Info(ctx, "Worker triggered manually", map[string]interface{}{
				"instance": w.instance,
			})
			w.logActivity("INFO", fmt.Sprintf("Worker %s triggered manually", w.instance), "")
			w.run(ctx)
			w.runMaintenance(ctx)
		}
	}
}

// consumeQueue processes job ids as they arrive on the queue
func (w *Worker) consumeQueue(ctx context.Context) {
	defer w.wg.Done()

	for ctx.Err() == nil {
		if w.IsPaused() {
			if !sleepContext(ctx, config.WorkerQueueBlockTimeout) {
				return
			}
			continue
		}

		jobID, err := w.queue.Dequeue(ctx, config.WorkerQueueBlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn(ctx, "Failed to read analysis queue, relying on polling", map[string]interface{}{
				"instance": w.instance,
				"backend":  w.queue.Backend(),
				"error":    err.Error(),
			})
			if !sleepContext(ctx, w.workerCfg.PollInterval) {
				return
			}
			continue
		}
		if jobID == "" {
			continue
		}
		w.processJob(ctx, jobID)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// run executes a single poll cycle over pending jobs
func (w *Worker) run(ctx context.Context) {
	ctx, span := observability.TraceWorkerFunction(ctx, "run",
		attribute.String("worker.instance", w.instance),
	)
	defer observability.FinishSpan(span, nil)

	if w.IsPaused() {
		span.SetAttributes(attribute.String("pause_reason", "Worker instance paused"))
		w.updateActivity("Paused")
		return
	}

	start := w.timeNow()
	w.mu.Lock()
	w.status.LastRunStart = start
	w.mu.Unlock()

	ids, err := w.jobs.PendingJobs(ctx, pendingBatchSize)
	processed := 0
	if err == nil {
		span.SetAttributes(attribute.Int("pending_jobs", len(ids)))
		for _, id := range ids {
			if ctx.Err() != nil || w.IsPaused() {
				break
			}
			if w.processJob(ctx, id) {
				processed++
			}
		}
	}

	details := fmt.Sprintf("Processed %d of %d pending jobs", processed, len(ids))
	finish := w.timeNow()
	w.mu.Lock()
	w.status.LastRunFinish = finish
	if err != nil {
		w.status.LastRunError = err.Error()
	} else {
		w.status.LastRunError = ""
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error(ctx, "Worker run failed", err, map[string]interface{}{
			"instance": w.instance,
		})
		details = "Failed to list pending jobs"
	}
	w.updateActivity("Idle")
	w.recordRunHistory("poll", start, finish, details, err)
}

// processJob runs one job and reports whether this worker processed it
func (w *Worker) processJob(ctx context.Context, jobID string) bool {
	w.processMu.Lock()
	defer w.processMu.Unlock()

	w.updateActivity("Analyzing job " + jobID)
	defer w.updateActivity("Idle")

	processed, err := w.jobs.ProcessJob(ctx, jobID)
	if err != nil {
		w.mu.Lock()
		w.totalFailed++
		w.mu.Unlock()
		w.logger.Error(ctx, "Failed to process analysis job", err, map[string]interface{}{
			"instance": w.instance,
			"job_id":   jobID,
		})
		w.logActivity("ERROR", fmt.Sprintf("Job %s failed: %v", jobID, err), jobID)
		return false
	}
	if !processed {
		return false
	}

	w.mu.Lock()
	w.totalProcessed++
	w.mu.Unlock()
	w.logActivity("INFO", fmt.Sprintf("Processed analysis job %s", jobID), jobID)
	return true
}

// runMaintenance performs one housekeeping pass; skipped while paused
func (w *Worker) runMaintenance(ctx context.Context) {
	if w.maintenance == nil || ctx.Err() != nil {
		return
	}
	if w.IsPaused() {
		w.logger.Info(ctx, "Skipping maintenance while paused", map[string]interface{}{"instance": w.instance})
		return
	}

	w.updateActivity("Running maintenance")
	defer w.updateActivity("Idle")

	start := w.timeNow()
	stats, err := w.maintenance.RunFullMaintenance(ctx)
	finish := w.timeNow()

	details := fmt.Sprintf("Closed %d reports, failed %d stale jobs, expired %d uploads",
		stats.ReportsClosed, stats.StaleJobsFailed, stats.UploadsExpired)
	if err != nil {
		w.logger.Error(ctx, "Maintenance run failed", err, map[string]interface{}{
			"instance": w.instance,
		})
		w.logActivity("ERROR", "Maintenance failed: "+err.Error(), "")
	} else {
		w.logActivity("INFO", details, "")
	}
	w.recordRunHistory("maintenance", start, finish, details, err)
}

// recordRunHistory records the run in history and trims the slice
func (w *Worker) recordRunHistory(kind string, start, finish time.Time, details string, err error) {
	record := RunRecord{
		Kind:      kind,
		StartTime: start,
		EndTime:   finish,
		Duration:  finish.Sub(start),
		Details:   details,
	}
	if err != nil {
		record.Status = "Failure"
	} else {
		record.Status = "Success"
	}
	w.mu.Lock()
	w.history = append(w.history, record)
	if len(w.history) > w.cfg.Server.MaxHistory {
		w.history = w.history[len(w.history)-w.cfg.Server.MaxHistory:]
	}
	w.mu.Unlock()
}

// GetStatus returns the current worker status
func (w *Worker) GetStatus() models.WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := models.WorkerStatus{
		WorkerInstance:     w.instance,
		IsRunning:          w.status.IsRunning,
		IsPaused:           w.status.IsPaused,
		CurrentActivity:    models.NewNullString(w.status.CurrentActivity),
		LastHeartbeat:      models.NewNullTime(w.timeNow()),
		LastRunStart:       models.NewNullTime(w.status.LastRunStart),
		LastRunFinish:      models.NewNullTime(w.status.LastRunFinish),
		LastRunError:       models.NewNullString(w.status.LastRunError),
		TotalJobsProcessed: w.totalProcessed,
		TotalJobsFailed:    w.totalFailed,
		TotalRuns:          len(w.history),
		QueueBackend:       "none",
	}
	if w.queue != nil {
		status.QueueBackend = w.queue.Backend()
	}
	if w.maintenanceID != 0 {
		status.NextMaintenance = models.NewNullTime(w.scheduler.Entry(w.maintenanceID).Next)
	}
	return status
}

// GetHistory returns the worker's run history
func (w *Worker) GetHistory() []RunRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	history := make([]RunRecord, len(w.history))
	copy(history, w.history)
	return history
}

// GetActivityLogs returns recent activity logs
func (w *Worker) GetActivityLogs() []ActivityLog {
	w.mu.RLock()
	defer w.mu.RUnlock()
	logs := make([]ActivityLog, len(w.activityLogs))
	copy(logs, w.activityLogs)
	return logs
}

// GetInstance returns the worker instance name
func (w *Worker) GetInstance() string {
	return w.instance
}

// IsPaused reports whether the worker is paused
func (w *Worker) IsPaused() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status.IsPaused
}

// TriggerManualRun triggers a poll cycle followed by a maintenance pass
func (w *Worker) TriggerManualRun() {
	ctx := context.Background()
	select {
	case w.manualTrigger <- true:
		w.logger.Info(ctx, "Manual trigger sent to worker", map[string]interface{}{
			"instance": w.instance,
		})
	default:
		w.logger.Info(ctx, "Manual trigger already pending for worker", map[string]interface{}{
			"instance": w.instance,
		})
	}
}

// Pause stops the worker from claiming new jobs. A job already running finishes.
func (w *Worker) Pause(ctx context.Context) {
	w.mu.Lock()
	w.status.IsPaused = true
	w.mu.Unlock()
	w.logger.Info(ctx, "Worker paused", map[string]interface{}{
		"instance": w.instance,
	})
	w.logActivity("INFO", fmt.Sprintf("Worker %s paused", w.instance), "")
}

// Resume resumes the worker
func (w *Worker) Resume(ctx context.Context) {
	w.mu.Lock()
	w.status.IsPaused = false
	w.mu.Unlock()
	w.logger.Info(ctx, "Worker resumed", map[string]interface{}{
		"instance": w.instance,
	})
	w.logActivity("INFO", fmt.Sprintf("Worker %s resumed", w.instance), "")
}

// Shutdown stops the maintenance schedule and waits for the queue consumer and
// any running maintenance job. The caller cancels the context given to Start.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.logger.Info(ctx, "Worker starting shutdown", map[string]interface{}{
		"instance": w.instance,
	})

	cronDone := w.scheduler.Stop()
	consumerDone := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(consumerDone)
	}()

	for _, done := range []<-chan struct{}{cronDone.Done(), consumerDone} {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("worker shutdown: %w", ctx.Err())
		}
	}

	w.logger.Info(ctx, "Worker shutdown completed", map[string]interface{}{
		"instance": w.instance,
	})
	return nil
}

func (w *Worker) updateActivity(activity string) {
	if len(activity) > maxActivityLength {
		activity = activity[:maxActivityLength]
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.CurrentActivity = activity
}

// logActivity adds an activity log entry
func (w *Worker) logActivity(level, message, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.activityLogs = append(w.activityLogs, ActivityLog{
		Timestamp: w.timeNow(),
		Level:     level,
		Message:   message,
		JobID:     jobID,
	})
	if len(w.activityLogs) > w.cfg.Server.MaxActivityLogs {
		w.activityLogs = w.activityLogs[len(w.activityLogs)-w.cfg.Server.MaxActivityLogs:]
	}
}
