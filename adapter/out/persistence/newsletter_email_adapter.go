package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"newsletter_server/core/domain"
	"newsletter_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// EmailRepository implements out.EmailRepository.
type EmailRepository struct {
	db *sqlx.DB
}

func NewEmailRepository(db *sqlx.DB) out.EmailRepository {
	return &EmailRepository{db: db}
}

type emailRow struct {
	ID            int64          `db:"id"`
	UserID        uuid.UUID      `db:"user_id"`
	NewsletterID  int64          `db:"newsletter_id"`
	ExternalID    string         `db:"external_id"`
	ThreadID      sql.NullString `db:"thread_id"`
	Subject       string         `db:"subject"`
	SenderEmail   string         `db:"sender_email"`
	SenderName    sql.NullString `db:"sender_name"`
	Snippet       sql.NullString `db:"snippet"`
	ContentLength int            `db:"content_length"`
	Labels        pq.StringArray `db:"labels"`
	ReceivedAt    time.Time      `db:"received_at"`
	IsOpened      bool           `db:"is_opened"`
	IsClicked     bool           `db:"is_clicked"`
	ReadAt        sql.NullTime   `db:"read_at"`
	ReadingTime   int            `db:"reading_time_sec"`
	Engagement    int            `db:"engagement_score"`
	Relevance     int            `db:"relevance_score"`

	SummaryGenerated bool           `db:"summary_generated"`
	KeyTakeaways     sql.NullString `db:"key_takeaways"`
	ExtractedLinks   sql.NullString `db:"extracted_links"`

	CreatedAt time.Time `db:"created_at"`
}

const emailColumns = `
	id, user_id, newsletter_id, external_id, thread_id, subject, sender_email,
	sender_name, snippet, content_length, labels, received_at, is_opened,
	is_clicked, read_at, reading_time_sec, engagement_score, relevance_score,
	summary_generated, key_takeaways, extracted_links, created_at`

func (r *emailRow) toEntity() *domain.NewsletterEmail {
	email := &domain.NewsletterEmail{
		ID:            r.ID,
		UserID:        r.UserID,
		NewsletterID:  r.NewsletterID,
		ExternalID:    r.ExternalID,
		ThreadID:      r.ThreadID.String,
		Subject:       r.Subject,
		SenderEmail:   r.SenderEmail,
		SenderName:    r.SenderName.String,
		Snippet:       r.Snippet.String,
		ContentLength: r.ContentLength,
		Labels:        r.Labels,
		ReceivedAt:    r.ReceivedAt,
		IsOpened:      r.IsOpened,
		IsClicked:     r.IsClicked,
		ReadingTime:   r.ReadingTime,
		Engagement:    r.Engagement,
		Relevance:     r.Relevance,

		SummaryGenerated: r.SummaryGenerated,
		KeyTakeaways:     r.KeyTakeaways.String,
		ExtractedLinks:   r.ExtractedLinks.String,

		CreatedAt: r.CreatedAt,
	}
	if r.ReadAt.Valid {
		t := r.ReadAt.Time
		email.ReadAt = &t
	}
	return email
}

// Insert stores an email; the (user, external id) conflict target makes
// repeated syncs idempotent.
func (r *EmailRepository) Insert(ctx context.Context, email *domain.NewsletterEmail) (bool, error) {
	query := `
		INSERT INTO newsletter_emails (
			user_id, newsletter_id, external_id, thread_id, subject,
			sender_email, sender_name, snippet, content_length, labels,
			received_at, relevance_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id, external_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		email.UserID, email.NewsletterID, email.ExternalID, email.ThreadID,
		email.Subject, email.SenderEmail, email.SenderName, email.Snippet,
		email.ContentLength, pq.Array(email.Labels), email.ReceivedAt,
		email.Relevance,
	)
	if err != nil {
		return false, fmt.Errorf("insert email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert email rows: %w", err)
	}
	return affected > 0, nil
}

func (r *EmailRepository) ListByUser(ctx context.Context, userID uuid.UUID, newsletterID *int64, limit, offset int) ([]*domain.NewsletterEmail, error) {
	conditions := []string{"user_id = $1"}
	args := []interface{}{userID}

	if newsletterID != nil {
		conditions = append(conditions, fmt.Sprintf("newsletter_id = $%d", len(args)+1))
		args = append(args, *newsletterID)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM newsletter_emails
		WHERE %s
		ORDER BY received_at DESC
		LIMIT $%d OFFSET $%d`,
		emailColumns, strings.Join(conditions, " AND "), len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var rows []emailRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}

	emails := make([]*domain.NewsletterEmail, len(rows))
	for i := range rows {
		emails[i] = rows[i].toEntity()
	}
	return emails, nil
}

// UpdateInteraction applies only the interaction fields that are present.
// Opening an email also stamps read_at on the first open.
func (r *EmailRepository) UpdateInteraction(ctx context.Context, emailID int64, userID uuid.UUID, in domain.Interaction) (bool, error) {
	sets := []string{}
	args := []interface{}{emailID, userID}

	if in.Opened != nil {
		sets = append(sets, fmt.Sprintf("is_opened = $%d", len(args)+1))
		args = append(args, *in.Opened)
		if *in.Opened {
			sets = append(sets, "read_at = COALESCE(read_at, NOW())")
		}
	}
	if in.Clicked != nil {
		sets = append(sets, fmt.Sprintf("is_clicked = $%d", len(args)+1))
		args = append(args, *in.Clicked)
	}
	if in.ReadingTime != nil {
		sets = append(sets, fmt.Sprintf("reading_time_sec = $%d", len(args)+1))
		args = append(args, *in.ReadingTime)
	}
	if len(sets) == 0 {
		return false, ErrInvalidInput
	}

	query := fmt.Sprintf(`
		UPDATE newsletter_emails
		SET %s
		WHERE id = $1 AND user_id = $2`, strings.Join(sets, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update interaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update interaction rows: %w", err)
	}
	return affected > 0, nil
}
