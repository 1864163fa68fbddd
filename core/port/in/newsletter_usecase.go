// Package in defines the inbound ports: use-case interfaces consumed by the
// HTTP and worker adapters.
package in

import (
	"context"
	"time"

	"newsletter_server/core/domain"

	"github.com/google/uuid"
)

// ConnectionUseCase manages the OAuth lifecycle of a mailbox connection.
type ConnectionUseCase interface {
	// AuthURL builds the provider authorization URL for a prepared state.
	AuthURL(state string) string

	// HandleCallback exchanges the authorization code, resolves the
	// mailbox address, and creates/updates the user's connection.
	HandleCallback(ctx context.Context, userID uuid.UUID, code string) (*domain.MailConnection, error)

	// GetConnection returns the user's connection or a not-found error.
	GetConnection(ctx context.Context, userID uuid.UUID) (*domain.MailConnection, error)

	// Disconnect clears tokens and marks the connection disconnected.
	Disconnect(ctx context.Context, userID uuid.UUID) error
}

// SyncUseCase drives ingestion runs.
type SyncUseCase interface {
	// Start validates the connection, claims the single-flight slot, and
	// schedules a background run. Returns the start timestamp.
	Start(ctx context.Context, userID uuid.UUID, opts domain.SyncOptions) (time.Time, error)

	// Run executes one full ingestion run. Called by the worker.
	Run(ctx context.Context, userID uuid.UUID, opts domain.SyncOptions) (*domain.SyncRun, error)

	// RecoverStale forces abandoned syncing connections back to error so
	// they can be retried. Returns the number recovered.
	RecoverStale(ctx context.Context) (int, error)
}

// CatalogUseCase exposes newsletters, subscriptions, and ingested emails.
type CatalogUseCase interface {
	ListSubscriptions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Subscription, error)
	Subscribe(ctx context.Context, userID uuid.UUID, newsletterID int64) (bool, error)
	Unsubscribe(ctx context.Context, userID uuid.UUID, newsletterID int64) error
	ListEmails(ctx context.Context, userID uuid.UUID, newsletterID *int64, limit, offset int) ([]*domain.NewsletterEmail, error)
	TrackInteraction(ctx context.Context, userID uuid.UUID, emailID int64, in domain.Interaction) error
	Search(ctx context.Context, query string, limit int) ([]*domain.Newsletter, error)
}

// StatsUseCase computes the reporting summary.
type StatsUseCase interface {
	Stats(ctx context.Context, userID uuid.UUID) (*domain.Stats, error)
}
