// Package out defines the outbound ports: persistence, provider, and
// messaging interfaces implemented by adapters.
package out

import (
	"context"
	"time"

	"newsletter_server/core/domain"

	"github.com/google/uuid"
)

// ConnectionRepository persists the per-user mailbox connection.
type ConnectionRepository interface {
	// GetByUser returns the user's connection or persistence.ErrNotFound.
	GetByUser(ctx context.Context, userID uuid.UUID) (*domain.MailConnection, error)

	// Upsert creates or replaces the user-singleton connection row.
	Upsert(ctx context.Context, conn *domain.MailConnection) (*domain.MailConnection, error)

	// UpdateStatus sets status and last error message.
	UpdateStatus(ctx context.Context, userID uuid.UUID, status domain.ConnectionStatus, lastError string) error

	// BeginSync transitions connected/error/expired -> syncing atomically.
	// Returns false when the connection is absent, disconnected, or a sync
	// is already running (single-flight guard).
	BeginSync(ctx context.Context, userID uuid.UUID) (bool, error)

	// FinishSync transitions syncing -> connected and records the sync time.
	FinishSync(ctx context.Context, userID uuid.UUID, syncedAt time.Time) error

	// UpdateTokens stores a refreshed token set.
	UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiry *time.Time) error

	// Disconnect clears tokens and sets status disconnected. Returns false
	// when no connection exists.
	Disconnect(ctx context.Context, userID uuid.UUID) (bool, error)

	// ListStaleSyncing returns connections stuck in syncing since before
	// the cutoff (abandoned runs after a crash or restart).
	ListStaleSyncing(ctx context.Context, cutoff time.Time) ([]*domain.MailConnection, error)
}

// NewsletterRepository persists the sender-keyed newsletter catalog.
type NewsletterRepository interface {
	// UpsertBySender creates the newsletter on first sighting of a sender
	// or updates counters on subsequent ones. Name/description/category
	// are fill-in only: never overwritten once set.
	UpsertBySender(ctx context.Context, meta *domain.NewsletterMetadata, receivedAt time.Time) (*domain.Newsletter, error)

	GetByID(ctx context.Context, id int64) (*domain.Newsletter, error)
	Search(ctx context.Context, query string, limit int) ([]*domain.Newsletter, error)
}

// SubscriptionRepository persists user-newsletter subscriptions.
type SubscriptionRepository interface {
	// Ensure creates the subscription at the default base relevance or
	// reactivates a deactivated one. Returns true only when a new row was
	// created.
	Ensure(ctx context.Context, userID uuid.UUID, newsletterID int64) (bool, error)

	// Unsubscribe deactivates; returns false when no subscription exists.
	Unsubscribe(ctx context.Context, userID uuid.UUID, newsletterID int64) (bool, error)

	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Subscription, error)

	// RecordEmail bumps the received counter and last-email timestamp.
	RecordEmail(ctx context.Context, userID uuid.UUID, newsletterID int64, receivedAt time.Time) error
}

// EmailRepository persists ingested newsletter emails.
type EmailRepository interface {
	// Insert stores an email; returns false when the (user, external id)
	// pair already exists (idempotent dedup).
	Insert(ctx context.Context, email *domain.NewsletterEmail) (bool, error)

	// ListByUser returns emails, optionally restricted to one newsletter.
	ListByUser(ctx context.Context, userID uuid.UUID, newsletterID *int64, limit, offset int) ([]*domain.NewsletterEmail, error)

	// UpdateInteraction records engagement; returns false when the email
	// does not exist or belongs to another user.
	UpdateInteraction(ctx context.Context, emailID int64, userID uuid.UUID, in domain.Interaction) (bool, error)
}

// StatsRepository aggregates reporting queries.
type StatsRepository interface {
	GetStats(ctx context.Context, userID uuid.UUID) (*domain.Stats, error)
}

// BodyStore archives full decoded message bodies (document store).
type BodyStore interface {
	Save(ctx context.Context, userID uuid.UUID, externalID, text, html string) error
}
