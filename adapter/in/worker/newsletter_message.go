// Package worker implements the background job adapter: message shapes,
// the dispatcher, and the worker pool.
package worker

import (
	"time"

	"newsletter_server/core/domain"

	"github.com/google/uuid"
)

// Priority orders jobs on the stream. Only the default level is produced
// today; the envelope field stays so consumers can dispatch on it.
type Priority int

const PriorityNormal Priority = 1

// JobType identifies what a message asks the worker to do.
type JobType = string

const (
	// JobMailboxSync runs one full mailbox ingestion for a user.
	JobMailboxSync JobType = "mailbox.sync"

	// JobStaleRecovery sweeps abandoned syncing connections.
	JobStaleRecovery JobType = "mailbox.stale_recovery"
)

// Message is the wire envelope carried on the job stream.
type Message struct {
	ID        string         `json:"id"`
	Type      JobType        `json:"type"`
	Payload   map[string]any `json:"payload"`
	Priority  Priority       `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`
	Retries   int            `json:"retries"`
}

func NewMessage(jobType JobType, payload map[string]any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		Priority:  PriorityNormal,
		CreatedAt: time.Now(),
	}
}

// MailboxSyncPayload parameterizes one ingestion run.
type MailboxSyncPayload struct {
	UserID      string             `json:"user_id"`
	Options     domain.SyncOptions `json:"options"`
	RequestedAt string             `json:"requested_at,omitempty"`
}
