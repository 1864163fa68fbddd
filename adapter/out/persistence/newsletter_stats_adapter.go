package persistence

import (
	"context"
	"fmt"

	"newsletter_server/core/domain"
	"newsletter_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const topCategoryLimit = 5

// StatsRepository implements out.StatsRepository.
type StatsRepository struct {
	db *sqlx.DB
}

func NewStatsRepository(db *sqlx.DB) out.StatsRepository {
	return &StatsRepository{db: db}
}

// GetStats runs the aggregation queries. Any failure is returned as an
// error; callers must never substitute zeroes for a failed aggregation.
func (r *StatsRepository) GetStats(ctx context.Context, userID uuid.UUID) (*domain.Stats, error) {
	stats := &domain.Stats{}

	summaryQuery := `
		SELECT
			COUNT(DISTINCT un.newsletter_id) AS total_newsletters,
			COUNT(DISTINCT un.newsletter_id) FILTER (WHERE un.is_active) AS active_subscriptions,
			COALESCE(AVG(un.relevance) FILTER (WHERE un.is_active), 0) AS avg_relevance
		FROM user_newsletters un
		WHERE un.user_id = $1`

	var summary struct {
		TotalNewsletters    int     `db:"total_newsletters"`
		ActiveSubscriptions int     `db:"active_subscriptions"`
		AvgRelevance        float64 `db:"avg_relevance"`
	}
	if err := r.db.GetContext(ctx, &summary, summaryQuery, userID); err != nil {
		return nil, fmt.Errorf("stats summary: %w", err)
	}
	stats.TotalNewsletters = summary.TotalNewsletters
	stats.ActiveSubscriptions = summary.ActiveSubscriptions
	stats.AvgRelevance = summary.AvgRelevance

	emailQuery := `
		SELECT
			COUNT(*) AS total_emails,
			COUNT(*) FILTER (WHERE received_at > NOW() - INTERVAL '7 days') AS emails_7d,
			COUNT(*) FILTER (WHERE received_at > NOW() - INTERVAL '30 days') AS emails_30d,
			COALESCE(AVG(CASE WHEN is_opened THEN 1.0 ELSE 0.0 END), 0) AS open_rate,
			COALESCE(AVG(CASE WHEN is_clicked THEN 1.0 ELSE 0.0 END), 0) AS click_rate
		FROM newsletter_emails
		WHERE user_id = $1`

	var emails struct {
		TotalEmails int     `db:"total_emails"`
		Emails7D    int     `db:"emails_7d"`
		Emails30D   int     `db:"emails_30d"`
		OpenRate    float64 `db:"open_rate"`
		ClickRate   float64 `db:"click_rate"`
	}
	if err := r.db.GetContext(ctx, &emails, emailQuery, userID); err != nil {
		return nil, fmt.Errorf("stats emails: %w", err)
	}
	stats.TotalEmails = emails.TotalEmails
	stats.EmailsLast7Days = emails.Emails7D
	stats.EmailsLast30Days = emails.Emails30D
	stats.OpenRate = emails.OpenRate
	stats.ClickRate = emails.ClickRate

	// Top categories are ranked by received email volume, not by how many
	// subscriptions a category has.
	categoryQuery := `
		SELECT COALESCE(NULLIF(n.category, ''), 'General') AS category,
		       COUNT(ne.id) AS count
		FROM newsletter_emails ne
		JOIN newsletters n ON n.id = ne.newsletter_id
		WHERE ne.user_id = $1
		GROUP BY 1
		ORDER BY count DESC, category
		LIMIT $2`

	var categories []struct {
		Category string `db:"category"`
		Count    int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &categories, categoryQuery, userID, topCategoryLimit); err != nil {
		return nil, fmt.Errorf("stats categories: %w", err)
	}
	for _, c := range categories {
		stats.TopCategories = append(stats.TopCategories, domain.CategoryCount{
			Category: c.Category,
			Count:    c.Count,
		})
	}

	return stats, nil
}
