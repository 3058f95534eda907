package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// WorkerStatus is the health and activity snapshot a worker reports on its admin API
type WorkerStatus struct {
	WorkerInstance     string         `json:"worker_instance"`
	IsRunning          bool           `json:"is_running"`
	IsPaused           bool           `json:"is_paused"`
	CurrentActivity    sql.NullString `json:"current_activity"`
	LastHeartbeat      sql.NullTime   `json:"last_heartbeat"`
	LastRunStart       sql.NullTime   `json:"last_run_start"`
	LastRunFinish      sql.NullTime   `json:"last_run_finish"`
	LastRunError       sql.NullString `json:"last_run_error"`
	TotalJobsProcessed int            `json:"total_jobs_processed"`
	TotalJobsFailed    int            `json:"total_jobs_failed"`
	TotalRuns          int            `json:"total_runs"`
	QueueBackend       string         `json:"queue_backend"`
	NextMaintenance    sql.NullTime   `json:"next_maintenance"`
}

// MarshalJSON renders the nullable fields as JSON null or their value
func (ws WorkerStatus) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		WorkerInstance     string     `json:"worker_instance"`
		IsRunning          bool       `json:"is_running"`
		IsPaused           bool       `json:"is_paused"`
		CurrentActivity    *string    `json:"current_activity"`
		LastHeartbeat      *time.Time `json:"last_heartbeat"`
		LastRunStart       *time.Time `json:"last_run_start"`
		LastRunFinish      *time.Time `json:"last_run_finish"`
		LastRunError       *string    `json:"last_run_error"`
		TotalJobsProcessed int        `json:"total_jobs_processed"`
		TotalJobsFailed    int        `json:"total_jobs_failed"`
		TotalRuns          int        `json:"total_runs"`
		QueueBackend       string     `json:"queue_backend"`
		NextMaintenance    *time.Time `json:"next_maintenance"`
	}{
		WorkerInstance:     ws.WorkerInstance,
		IsRunning:          ws.IsRunning,
		IsPaused:           ws.IsPaused,
		CurrentActivity:    NullStringToPointer(ws.CurrentActivity),
		LastHeartbeat:      NullTimeToPointer(ws.LastHeartbeat),
		LastRunStart:       NullTimeToPointer(ws.LastRunStart),
		LastRunFinish:      NullTimeToPointer(ws.LastRunFinish),
		LastRunError:       NullStringToPointer(ws.LastRunError),
		TotalJobsProcessed: ws.TotalJobsProcessed,
		TotalJobsFailed:    ws.TotalJobsFailed,
		TotalRuns:          ws.TotalRuns,
		QueueBackend:       ws.QueueBackend,
		NextMaintenance:    NullTimeToPointer(ws.NextMaintenance),
	})
}
