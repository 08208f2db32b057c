package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ──────────────────── Time Intervals ────────────────────

// TimeInterval is a half-open range [Start, End) in seconds.
type TimeInterval struct {
	Start float64 `json:"start_seconds"`
	End   float64 `json:"end_seconds"`
}

func (t TimeInterval) Duration() float64 {
	return t.End - t.Start
}

// Valid reports whether the interval is finite, non-negative and non-empty.
func (t TimeInterval) Valid() bool {
	if math.IsNaN(t.Start) || math.IsNaN(t.End) || math.IsInf(t.Start, 0) || math.IsInf(t.End, 0) {
		return false
	}
	return t.Start >= 0 && t.Start < t.End
}

// Contains reports whether ts falls inside the half-open interval.
func (t TimeInterval) Contains(ts float64) bool {
	return ts >= t.Start && ts < t.End
}

func (t TimeInterval) String() string {
	return fmt.Sprintf("[%.3f, %.3f)", t.Start, t.End)
}

// ──────────────────── Chunk Schedule ────────────────────

// ChunkWindow is one slice of the media scheduled for downstream processing.
type ChunkWindow struct {
	Index int     `json:"index"`
	Start float64 `json:"start_seconds"`
	End   float64 `json:"end_seconds"`
}

func (w ChunkWindow) Interval() TimeInterval {
	return TimeInterval{Start: w.Start, End: w.End}
}

// ChunkSegment is the part of a chunk window left after exclusions are cut out.
type ChunkSegment struct {
	Window   int          `json:"window"`
	Interval TimeInterval `json:"interval"`
}

// SceneChange marks a visual discontinuity between two sampled frames.
type SceneChange struct {
	Timestamp float64 `json:"timestamp"`
	Score     float64 `json:"score"`
}

// ──────────────────── Exclusions ────────────────────

type DetectionMethod string

const (
	MethodVisualDarkness DetectionMethod = "visual_darkness"
	MethodAudioSilence   DetectionMethod = "audio_silence"
	MethodManual         DetectionMethod = "manual"
)

func (m DetectionMethod) Valid() bool {
	switch m {
	case MethodVisualDarkness, MethodAudioSilence, MethodManual:
		return true
	}
	return false
}

// Rank orders methods by precedence when merged candidates tie on confidence.
// Higher wins.
func (m DetectionMethod) Rank() int {
	switch m {
	case MethodManual:
		return 3
	case MethodVisualDarkness:
		return 2
	case MethodAudioSilence:
		return 1
	}
	return 0
}

// ParseDetectionMethod converts a stored string back into a DetectionMethod.
func ParseDetectionMethod(s string) (DetectionMethod, error) {
	m := DetectionMethod(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown detection method %q", s)
	}
	return m, nil
}

// ManualConfidence is the confidence carried by every user-declared exclusion.
const ManualConfidence = 1.0

// CandidateExclusion is a detected or declared range proposed for removal.
type CandidateExclusion struct {
	Interval   TimeInterval    `json:"interval"`
	Method     DetectionMethod `json:"method"`
	Confidence float64         `json:"confidence"`
	Note       string          `json:"note,omitempty"`
}

// SkipRange is a user-declared exclusion persisted against a processing job.
type SkipRange struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	JobID     uuid.UUID    `json:"job_id" db:"job_id"`
	Interval  TimeInterval `json:"interval"`
	Reason    *string      `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

func (s *SkipRange) ToCandidate() CandidateExclusion {
	c := CandidateExclusion{
		Interval:   s.Interval,
		Method:     MethodManual,
		Confidence: ManualConfidence,
	}
	if s.Reason != nil {
		c.Note = *s.Reason
	}
	return c
}

// ExclusionTimeline is the merged, sorted, non-overlapping exclusion view.
// It is always recomputed and never stored as rows.
type ExclusionTimeline struct {
	Entries []CandidateExclusion `json:"entries"`
}

func (t ExclusionTimeline) TotalDuration() float64 {
	var total float64
	for _, e := range t.Entries {
		total += e.Interval.Duration()
	}
	return total
}

// Contains reports whether ts falls inside any exclusion.
func (t ExclusionTimeline) Contains(ts float64) bool {
	for _, e := range t.Entries {
		if e.Interval.Start > ts {
			return false
		}
		if e.Interval.Contains(ts) {
			return true
		}
	}
	return false
}

func (t ExclusionTimeline) Intervals() []TimeInterval {
	out := make([]TimeInterval, len(t.Entries))
	for i, e := range t.Entries {
		out[i] = e.Interval
	}
	return out
}

// ──────────────────── Jobs ────────────────────

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is one media file processed start-to-finish by a single worker.
type Job struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	FilePath      string     `json:"file_path" db:"file_path"`
	Status        JobStatus  `json:"status" db:"status"`
	Progress      int        `json:"progress" db:"progress"`
	ErrorMessage  *string    `json:"error_message,omitempty" db:"error_message"`
	FailureDetail *string    `json:"failure_detail,omitempty" db:"failure_detail"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

func NewJob(filePath string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New(),
		FilePath:  filePath,
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (j *Job) MarkRunning() {
	now := time.Now().UTC()
	j.Status = JobRunning
	j.Progress = 0
	j.ErrorMessage = nil
	j.FailureDetail = nil
	j.CompletedAt = nil
	j.StartedAt = &now
	j.UpdatedAt = now
}

func (j *Job) MarkCompleted(failureDetail string) {
	now := time.Now().UTC()
	j.Status = JobCompleted
	j.Progress = 100
	j.CompletedAt = &now
	j.UpdatedAt = now
	if failureDetail != "" {
		j.FailureDetail = &failureDetail
	}
}

func (j *Job) MarkFailed(errMsg, failureDetail string) {
	now := time.Now().UTC()
	j.Status = JobFailed
	j.ErrorMessage = &errMsg
	j.CompletedAt = &now
	j.UpdatedAt = now
	if failureDetail != "" {
		j.FailureDetail = &failureDetail
	}
}

func (j *Job) MarkCancelled() {
	now := time.Now().UTC()
	j.Status = JobCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkRequeued puts an interrupted job back to pending so it runs again.
func (j *Job) MarkRequeued() {
	j.Status = JobPending
	j.Progress = 0
	j.StartedAt = nil
	j.UpdatedAt = time.Now().UTC()
}

// IsDone reports whether the job reached a terminal state.
func (j *Job) IsDone() bool {
	return j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobCancelled
}

// ──────────────────── Analysis Output ────────────────────

// ScanFailure records a scan that aborted without affecting the others.
type ScanFailure struct {
	Scan    string `json:"scan"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AnalysisPlan is everything a downstream transcription driver needs for one file.
type AnalysisPlan struct {
	JobID        uuid.UUID         `json:"job_id"`
	FilePath     string            `json:"file_path"`
	Duration     float64           `json:"duration_seconds"`
	Windows      []ChunkWindow     `json:"windows"`
	SceneChanges []SceneChange     `json:"scene_changes"`
	Timeline     ExclusionTimeline `json:"timeline"`
	Keep         []ChunkSegment    `json:"keep"`
	ScanFailures []ScanFailure     `json:"scan_failures,omitempty"`
}

// FailureDetail joins scan failures into the text stored on the job row.
func (p *AnalysisPlan) FailureDetail() string {
	return JoinScanFailures(p.ScanFailures)
}

func JoinScanFailures(failures []ScanFailure) string {
	var s string
	for i, f := range failures {
		if i > 0 {
			s += "; "
		}
		s += fmt.Sprintf("%s: %s", f.Scan, f.Message)
	}
	return s
}
