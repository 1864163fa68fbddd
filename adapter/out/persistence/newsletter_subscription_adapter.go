package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"newsletter_server/core/domain"
	"newsletter_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SubscriptionRepository implements out.SubscriptionRepository.
type SubscriptionRepository struct {
	db *sqlx.DB
}

func NewSubscriptionRepository(db *sqlx.DB) out.SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

type subscriptionRow struct {
	ID             int64        `db:"id"`
	UserID         uuid.UUID    `db:"user_id"`
	NewsletterID   int64        `db:"newsletter_id"`
	IsActive       bool         `db:"is_active"`
	IsFavorite     bool         `db:"is_favorite"`
	BaseRelevance  int          `db:"base_relevance"`
	Relevance      int          `db:"relevance"`
	EmailsReceived int          `db:"emails_received"`
	SubscribedAt   time.Time    `db:"subscribed_at"`
	UnsubscribedAt sql.NullTime `db:"unsubscribed_at"`
	LastEmailAt    sql.NullTime `db:"last_email_at"`
}

func (r *subscriptionRow) toEntity() *domain.Subscription {
	sub := &domain.Subscription{
		ID:             r.ID,
		UserID:         r.UserID,
		NewsletterID:   r.NewsletterID,
		IsActive:       r.IsActive,
		IsFavorite:     r.IsFavorite,
		BaseRelevance:  r.BaseRelevance,
		Relevance:      r.Relevance,
		EmailsReceived: r.EmailsReceived,
		SubscribedAt:   r.SubscribedAt,
	}
	if r.UnsubscribedAt.Valid {
		t := r.UnsubscribedAt.Time
		sub.UnsubscribedAt = &t
	}
	if r.LastEmailAt.Valid {
		t := r.LastEmailAt.Time
		sub.LastEmailAt = &t
	}
	return sub
}

// Ensure creates the subscription at the default base relevance or
// reactivates a deactivated one. xmax = 0 distinguishes a fresh insert
// from a conflict update.
func (r *SubscriptionRepository) Ensure(ctx context.Context, userID uuid.UUID, newsletterID int64) (bool, error) {
	query := `
		INSERT INTO user_newsletters (
			user_id, newsletter_id, is_active, base_relevance, relevance, subscribed_at
		) VALUES ($1, $2, TRUE, $3, $3, NOW())
		ON CONFLICT (user_id, newsletter_id) DO UPDATE SET
			is_active = TRUE,
			unsubscribed_at = NULL
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	err := r.db.GetContext(ctx, &inserted, query, userID, newsletterID, domain.DefaultBaseRelevance)
	if err != nil {
		return false, fmt.Errorf("ensure subscription: %w", err)
	}
	return inserted, nil
}

func (r *SubscriptionRepository) Unsubscribe(ctx context.Context, userID uuid.UUID, newsletterID int64) (bool, error) {
	query := `
		UPDATE user_newsletters
		SET is_active = FALSE, unsubscribed_at = NOW()
		WHERE user_id = $1 AND newsletter_id = $2 AND is_active`

	result, err := r.db.ExecContext(ctx, query, userID, newsletterID)
	if err != nil {
		return false, fmt.Errorf("unsubscribe: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unsubscribe rows: %w", err)
	}
	return affected > 0, nil
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Subscription, error) {
	query := `
		SELECT un.id, un.user_id, un.newsletter_id, un.is_active, un.is_favorite,
		       un.base_relevance, un.relevance, un.emails_received,
		       un.subscribed_at, un.unsubscribed_at, un.last_email_at,
		       n.id AS n_id, n.name AS n_name, n.description AS n_description,
		       n.sender_email AS n_sender_email, n.sender_name AS n_sender_name,
		       n.website_url AS n_website_url, n.category AS n_category,
		       n.cadence AS n_cadence, n.email_count AS n_email_count,
		       n.last_received_at AS n_last_received_at
		FROM user_newsletters un
		JOIN newsletters n ON n.id = un.newsletter_id
		WHERE un.user_id = $1 AND un.is_active
		ORDER BY un.relevance DESC, n.name
		LIMIT $2 OFFSET $3`

	type joinedRow struct {
		subscriptionRow
		NID             int64          `db:"n_id"`
		NName           sql.NullString `db:"n_name"`
		NDescription    sql.NullString `db:"n_description"`
		NSenderEmail    string         `db:"n_sender_email"`
		NSenderName     sql.NullString `db:"n_sender_name"`
		NWebsiteURL     sql.NullString `db:"n_website_url"`
		NCategory       sql.NullString `db:"n_category"`
		NCadence        sql.NullString `db:"n_cadence"`
		NEmailCount     int            `db:"n_email_count"`
		NLastReceivedAt sql.NullTime   `db:"n_last_received_at"`
	}

	var rows []joinedRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	subs := make([]*domain.Subscription, len(rows))
	for i := range rows {
		sub := rows[i].toEntity()
		nl := &domain.Newsletter{
			ID:          rows[i].NID,
			Name:        rows[i].NName.String,
			Description: rows[i].NDescription.String,
			SenderEmail: rows[i].NSenderEmail,
			SenderName:  rows[i].NSenderName.String,
			WebsiteURL:  rows[i].NWebsiteURL.String,
			Category:    rows[i].NCategory.String,
			Cadence:     domain.Cadence(rows[i].NCadence.String),
			EmailCount:  rows[i].NEmailCount,
		}
		if rows[i].NLastReceivedAt.Valid {
			t := rows[i].NLastReceivedAt.Time
			nl.LastReceivedAt = &t
		}
		sub.Newsletter = nl
		subs[i] = sub
	}
	return subs, nil
}

func (r *SubscriptionRepository) RecordEmail(ctx context.Context, userID uuid.UUID, newsletterID int64, receivedAt time.Time) error {
	query := `
		UPDATE user_newsletters
		SET emails_received = emails_received + 1,
		    last_email_at = GREATEST(COALESCE(last_email_at, $3), $3)
		WHERE user_id = $1 AND newsletter_id = $2`

	if _, err := r.db.ExecContext(ctx, query, userID, newsletterID, receivedAt); err != nil {
		return fmt.Errorf("record email: %w", err)
	}
	return nil
}
