package domain

import (
	"time"

	"github.com/google/uuid"
)

// MailMessage is a provider message after content extraction: headers of
// interest, decoded body parts, and listing metadata.
type MailMessage struct {
	ExternalID string
	ThreadID   string
	Subject    string
	FromName   string
	FromEmail  string
	Snippet    string
	Labels     []string
	ReceivedAt time.Time

	// Lowercased header name -> first value. Only headers the classifier
	// cares about are guaranteed present.
	Headers map[string]string

	// First-wins extracted content; either may be empty.
	BodyText string
	BodyHTML string
}

// Header returns a header value by case-insensitive name.
func (m *MailMessage) Header(name string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[normalizeHeaderKey(name)]
}

func normalizeHeaderKey(name string) string {
	b := []byte(name)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// NewsletterEmail is one ingested message, deduplicated on
// (user, external id).
type NewsletterEmail struct {
	ID            int64      `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	NewsletterID  int64      `json:"newsletter_id"`
	ExternalID    string     `json:"external_id"`
	ThreadID      string     `json:"thread_id,omitempty"`
	Subject       string     `json:"subject"`
	SenderEmail   string     `json:"sender_email"`
	SenderName    string     `json:"sender_name,omitempty"`
	Snippet       string     `json:"snippet,omitempty"`
	ContentLength int        `json:"content_length"`
	Labels        []string   `json:"labels,omitempty"`
	ReceivedAt    time.Time  `json:"received_at"`
	IsOpened      bool       `json:"is_opened"`
	IsClicked     bool       `json:"is_clicked"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	ReadingTime   int        `json:"reading_time_sec"`
	Engagement    int        `json:"engagement_score"`
	Relevance     int        `json:"relevance_score"`

	// Analysis output, filled in after ingestion. KeyTakeaways and
	// ExtractedLinks hold JSON documents produced by the analysis step.
	SummaryGenerated bool   `json:"summary_generated"`
	KeyTakeaways     string `json:"key_takeaways,omitempty"`
	ExtractedLinks   string `json:"extracted_links,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Interaction records a user's engagement with an ingested email.
type Interaction struct {
	Opened      *bool `json:"opened,omitempty"`
	Clicked     *bool `json:"clicked,omitempty"`
	ReadingTime *int  `json:"reading_time,omitempty"`
}
