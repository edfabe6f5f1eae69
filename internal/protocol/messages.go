package protocol

import "time"

// Subjects for lifecycle events published on the bus. External tooling
// (overlays, moderation dashboards) subscribes to these to mirror what the
// pipeline is doing; the skip subject is the one inbound control surface.
const (
	SubjectTaskAdmitted  = "cheer.task.admitted"
	SubjectTaskCompleted = "cheer.task.completed"
	SubjectTaskDropped   = "cheer.task.dropped"
	SubjectPlaybackSkip  = "cheer.playback.skip"
)

// TaskAnnouncement is published when a cheer passes the admission filter
// and enters the synthesis queue.
type TaskAnnouncement struct {
	TaskID     string    `json:"task_id"`
	Sender     string    `json:"sender"`
	Bits       int       `json:"bits"`
	Bypass     bool      `json:"bypass,omitempty"`
	QueueDepth int       `json:"queue_depth"`
	AdmittedAt time.Time `json:"admitted_at"`
}

// TaskOutcome is published when a task leaves the pipeline, either after
// playback finishes or when every prompt in it was dropped.
type TaskOutcome struct {
	TaskID      string    `json:"task_id"`
	Sender      string    `json:"sender"`
	Outcome     string    `json:"outcome"`
	Prompts     int       `json:"prompts"`
	ClipPath    string    `json:"clip_path,omitempty"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Outcome values carried by TaskOutcome.
const (
	OutcomePlayed    = "played"
	OutcomeSkipped   = "skipped"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)
