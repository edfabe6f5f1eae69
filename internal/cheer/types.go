package cheer

import "github.com/google/uuid"

// Event is one donation notification delivered by the ingestion transport.
type Event struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
	Bits    int    `json:"bits"`
}

// Task is the unit of work carried from admission through playback. It is
// created on admission and never retried or resubmitted.
type Task struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Bits   int    `json:"bits"`
	Sender string `json:"sender"`
	Bypass bool   `json:"bypass"`
}

// NewTaskID returns a time-ordered unique identifier. Version 1 UUIDs keep
// identifiers sortable by creation time; if the clock sequence cannot be
// obtained a random UUID is used instead.
func NewTaskID() string {
	if id, err := uuid.NewUUID(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
