package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsletter_server/core/domain"
	"newsletter_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// NewsletterRepository implements out.NewsletterRepository.
type NewsletterRepository struct {
	db *sqlx.DB
}

func NewNewsletterRepository(db *sqlx.DB) out.NewsletterRepository {
	return &NewsletterRepository{db: db}
}

type newsletterRow struct {
	ID              int64          `db:"id"`
	Name            sql.NullString `db:"name"`
	Description     sql.NullString `db:"description"`
	SenderEmail     string         `db:"sender_email"`
	SenderName      sql.NullString `db:"sender_name"`
	WebsiteURL      sql.NullString `db:"website_url"`
	Category        sql.NullString `db:"category"`
	Cadence         sql.NullString `db:"cadence"`
	Language        sql.NullString `db:"language"`
	IsVerified      bool           `db:"is_verified"`
	IsActive        bool           `db:"is_active"`
	SubscriberCount int            `db:"subscriber_count"`
	EmailCount      int            `db:"email_count"`
	AverageLength   sql.NullInt64  `db:"average_length"`
	LastReceivedAt  sql.NullTime   `db:"last_received_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

const newsletterColumns = `
	id, name, description, sender_email, sender_name, website_url, category,
	cadence, language, is_verified, is_active, subscriber_count, email_count,
	average_length, last_received_at, created_at, updated_at`

func (r *newsletterRow) toEntity() *domain.Newsletter {
	nl := &domain.Newsletter{
		ID:              r.ID,
		Name:            r.Name.String,
		Description:     r.Description.String,
		SenderEmail:     r.SenderEmail,
		SenderName:      r.SenderName.String,
		WebsiteURL:      r.WebsiteURL.String,
		Category:        r.Category.String,
		Cadence:         domain.Cadence(r.Cadence.String),
		Language:        r.Language.String,
		IsVerified:      r.IsVerified,
		IsActive:        r.IsActive,
		SubscriberCount: r.SubscriberCount,
		EmailCount:      r.EmailCount,
		AverageLength:   int(r.AverageLength.Int64),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.LastReceivedAt.Valid {
		t := r.LastReceivedAt.Time
		nl.LastReceivedAt = &t
	}
	return nl
}

// UpsertBySender creates the newsletter on first sighting or bumps its
// counters. Descriptive fields are fill-in only: NULLIF/COALESCE keeps any
// value that was already set.
func (r *NewsletterRepository) UpsertBySender(ctx context.Context, meta *domain.NewsletterMetadata, receivedAt time.Time) (*domain.Newsletter, error) {
	query := `
		INSERT INTO newsletters (
			name, description, sender_email, sender_name, website_url,
			category, cadence, is_active, email_count, last_received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, 1, $8)
		ON CONFLICT (sender_email) DO UPDATE SET
			name = COALESCE(NULLIF(newsletters.name, ''), EXCLUDED.name),
			description = COALESCE(NULLIF(newsletters.description, ''), EXCLUDED.description),
			sender_name = COALESCE(NULLIF(newsletters.sender_name, ''), EXCLUDED.sender_name),
			website_url = COALESCE(NULLIF(newsletters.website_url, ''), EXCLUDED.website_url),
			category = COALESCE(NULLIF(newsletters.category, ''), EXCLUDED.category),
			cadence = CASE
				WHEN newsletters.cadence IS NULL OR newsletters.cadence IN ('', 'unknown')
				THEN EXCLUDED.cadence ELSE newsletters.cadence
			END,
			email_count = newsletters.email_count + 1,
			last_received_at = GREATEST(newsletters.last_received_at, EXCLUDED.last_received_at),
			updated_at = NOW()
		RETURNING ` + newsletterColumns

	var row newsletterRow
	err := r.db.GetContext(ctx, &row, query,
		meta.Name, meta.Description, meta.SenderEmail, meta.SenderName,
		meta.WebsiteURL, meta.Category, meta.Cadence, receivedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert newsletter: %w", err)
	}
	return row.toEntity(), nil
}

func (r *NewsletterRepository) GetByID(ctx context.Context, id int64) (*domain.Newsletter, error) {
	query := `SELECT ` + newsletterColumns + ` FROM newsletters WHERE id = $1`

	var row newsletterRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get newsletter: %w", err)
	}
	return row.toEntity(), nil
}

func (r *NewsletterRepository) Search(ctx context.Context, query string, limit int) ([]*domain.Newsletter, error) {
	sqlQuery := `
		SELECT ` + newsletterColumns + `
		FROM newsletters
		WHERE is_active
		  AND (name ILIKE $1 OR description ILIKE $1 OR sender_email ILIKE $1 OR category ILIKE $1)
		ORDER BY email_count DESC, name
		LIMIT $2`

	var rows []newsletterRow
	if err := r.db.SelectContext(ctx, &rows, sqlQuery, "%"+query+"%", limit); err != nil {
		return nil, fmt.Errorf("search newsletters: %w", err)
	}

	results := make([]*domain.Newsletter, len(rows))
	for i := range rows {
		results[i] = rows[i].toEntity()
	}
	return results, nil
}
