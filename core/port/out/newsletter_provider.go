package out

import (
	"context"

	"newsletter_server/core/domain"

	"golang.org/x/oauth2"
)

// ListOptions bounds one mailbox listing.
type ListOptions struct {
	// DaysBack restricts listing to messages received after now - DaysBack.
	DaysBack int
	// MaxResults caps the number of returned messages; listing pages until
	// the cap is reached or the mailbox is exhausted, then truncates.
	MaxResults int
}

// Mailbox is an authenticated session against one remote mailbox.
type Mailbox interface {
	// Address returns the mailbox email address.
	Address() string

	// ListMessages lists and fetches messages in full format. Individual
	// fetch failures are returned alongside the successes; they never
	// abort the batch.
	ListMessages(ctx context.Context, opts ListOptions) ([]*domain.MailMessage, []domain.MessageError, error)
}

// MailboxFactory opens mailbox sessions from OAuth tokens.
type MailboxFactory interface {
	Open(ctx context.Context, token *oauth2.Token) (Mailbox, error)
}

// MailboxSyncJob is the payload published to trigger a background sync.
type MailboxSyncJob struct {
	UserID    string             `json:"user_id"`
	Options   domain.SyncOptions `json:"options"`
	Requested string             `json:"requested_at"`
}

// MessageProducer publishes background jobs.
type MessageProducer interface {
	PublishMailboxSync(ctx context.Context, job *MailboxSyncJob) error
}
