package jobs

import (
	"github.com/google/uuid"
)

const (
	TaskAnalyzeMedia = "analyze:media"

	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Enqueue origins.
const (
	OriginCLI     = "cli"
	OriginSweep   = "sweep"
	OriginWatcher = "watcher"
)

// ──────── Payloads ────────

type AnalyzePayload struct {
	JobID string `json:"job_id"`
}

func AnalyzeTaskID(jobID uuid.UUID) string {
	return "analyze:" + jobID.String()
}

// ──────── Register all handlers ────────

func RegisterHandlers(q *Queue, analyze *AnalyzeHandler) {
	q.RegisterHandler(TaskAnalyzeMedia, analyze)
}
