package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/JustinTDCT/cinescript/internal/metrics"
)

type Queue struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
	log       zerolog.Logger
}

func NewQueue(redisAddr string, concurrency int, logger zerolog.Logger) *Queue {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueLow:      1,
			},
			IsFailure: func(err error) bool {
				return !errors.Is(err, context.Canceled)
			},
		},
	)
	mux := asynq.NewServeMux()
	inspector := asynq.NewInspector(redisOpt)
	return &Queue{client: client, server: server, mux: mux, inspector: inspector, log: logger}
}

// isTaskConflict checks whether the error indicates a task ID conflict,
// using errors.Is for unwrapped sentinel values and a string fallback.
func isTaskConflict(err error) bool {
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "task ID conflicts") || strings.Contains(msg, "duplicate task")
}

// EnqueueUnique enqueues a task with a deterministic TaskID so a job is never
// queued twice. A pending or active task with the same ID is left alone; a
// completed or archived one is deleted first so the job can run again.
func (q *Queue) EnqueueUnique(ctx context.Context, taskType string, payload any, uniqueID string, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	opts = append(opts, asynq.TaskID(uniqueID))
	task := asynq.NewTask(taskType, data, opts...)
	info, err := q.client.EnqueueContext(ctx, task)
	if err == nil {
		return info.ID, nil
	}

	if !isTaskConflict(err) {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	cleared := false
	for _, queueName := range []string{QueueDefault, QueueCritical, QueueLow} {
		if delErr := q.inspector.DeleteTask(queueName, uniqueID); delErr == nil {
			q.log.Debug().Str("task_id", uniqueID).Str("queue", queueName).Msg("cleared finished task")
			cleared = true
			break
		}
	}

	if cleared {
		info, err = q.client.EnqueueContext(ctx, task)
		if err == nil {
			return info.ID, nil
		}
	}

	if isTaskConflict(err) {
		q.log.Debug().Str("task_type", taskType).Str("task_id", uniqueID).Msg("task already active, skipping")
		return uniqueID, nil
	}
	return "", fmt.Errorf("enqueue: %w", err)
}

// EnqueueAnalyze queues analysis of one job. origin labels the enqueue metric.
func (q *Queue) EnqueueAnalyze(ctx context.Context, jobID uuid.UUID, origin string) error {
	_, err := q.EnqueueUnique(ctx, TaskAnalyzeMedia, AnalyzePayload{JobID: jobID.String()}, AnalyzeTaskID(jobID),
		asynq.Queue(QueueDefault), asynq.MaxRetry(3))
	if err != nil {
		return err
	}
	metrics.JobsEnqueuedTotal.WithLabelValues(origin).Inc()
	return nil
}

func (q *Queue) RegisterHandler(taskType string, handler asynq.Handler) {
	q.mux.Handle(taskType, handler)
}

func (q *Queue) Start() error {
	q.log.Info().Msg("job queue worker starting")
	return q.server.Start(q.mux)
}

func (q *Queue) Stop() {
	q.server.Shutdown()
	q.client.Close()
	q.inspector.Close()
}
