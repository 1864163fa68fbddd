package domain

import (
	"time"

	"github.com/google/uuid"
)

// Cadence is the inferred publication frequency of a newsletter.
type Cadence string

const (
	CadenceDaily     Cadence = "daily"
	CadenceWeekly    Cadence = "weekly"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceUnknown   Cadence = "unknown"
)

// Newsletter is a recurring-sender identity inferred from message traffic,
// independent of any one user. Identity is keyed by sender email.
type Newsletter struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	SenderEmail     string    `json:"sender_email"`
	SenderName      string    `json:"sender_name,omitempty"`
	WebsiteURL      string    `json:"website_url,omitempty"`
	Category        string    `json:"category,omitempty"`
	Cadence         Cadence   `json:"cadence,omitempty"`
	Language        string    `json:"language,omitempty"`
	IsVerified      bool      `json:"is_verified"`
	IsActive        bool      `json:"is_active"`
	SubscriberCount int       `json:"subscriber_count"`
	EmailCount      int       `json:"email_count"`
	AverageLength   int       `json:"average_length,omitempty"`
	LastReceivedAt  *time.Time `json:"last_received_at,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewsletterMetadata is what the metadata extractor derives from a single
// classified message. Empty fields mean "unknown"; persisted fill-in only.
type NewsletterMetadata struct {
	Name        string
	Description string
	SenderEmail string
	SenderName  string
	Domain      string
	WebsiteURL  string
	Category    string
	Cadence     Cadence
}

// DefaultBaseRelevance is the base relevance score assigned to a freshly
// detected subscription.
const DefaultBaseRelevance = 50

// Subscription links a user to a Newsletter. At most one live row exists
// per (user, newsletter) pair; re-subscribing reactivates.
type Subscription struct {
	ID             int64      `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	NewsletterID   int64      `json:"newsletter_id"`
	IsActive       bool       `json:"is_active"`
	IsFavorite     bool       `json:"is_favorite"`
	BaseRelevance  int        `json:"base_relevance"`
	Relevance      int        `json:"relevance"`
	EmailsReceived int        `json:"emails_received"`
	SubscribedAt   time.Time  `json:"subscribed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`
	LastEmailAt    *time.Time `json:"last_email_at,omitempty"`

	// Populated on joined reads
	Newsletter *Newsletter `json:"newsletter,omitempty"`
}
