package detect

import (
	"testing"

	"newsletter_server/core/domain"
)

func msg(subject, fromEmail, body string, headers map[string]string) *domain.MailMessage {
	return &domain.MailMessage{
		Subject:   subject,
		FromEmail: fromEmail,
		BodyText:  body,
		Headers:   headers,
	}
}

func TestClassifierScore(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name      string
		msg       *domain.MailMessage
		wantScore int
		wantIs    bool
	}{
		{
			name:      "List-Unsubscribe alone crosses the threshold",
			msg:       msg("Hello", "friend@gmail.com", "just catching up", map[string]string{"list-unsubscribe": "<mailto:u@x.com>"}),
			wantScore: 3,
			wantIs:    true,
		},
		{
			name:      "unsubscribe content plus sender pattern is exactly 3",
			msg:       msg("Hello", "noreply@shop.com", "click here to unsubscribe", nil),
			wantScore: 3,
			wantIs:    true,
		},
		{
			name:      "exactly 2 points is not a newsletter",
			msg:       msg("Hello", "friend@gmail.com", "you can unsubscribe anytime", nil),
			wantScore: 2,
			wantIs:    false,
		},
		{
			name:      "plain personal mail scores zero",
			msg:       msg("Lunch tomorrow?", "colleague@work.com", "see you at noon", nil),
			wantScore: 0,
			wantIs:    false,
		},
		{
			name: "all indicators stack",
			msg: msg("Weekly Update - Issue 42", "newsletter@daily.dev", "unsubscribe here", map[string]string{
				"list-unsubscribe": "<https://x/u>",
				"list-id":          "<news.daily.dev>",
				"list-post":        "NO",
			}),
			// 2 (content) + 3 (list-unsubscribe) + 2 (list-id, list-post) + 1 (sender) + 1 (subject)
			wantScore: 9,
			wantIs:    true,
		},
		{
			name:      "multiple unsubscribe phrases count once",
			msg:       msg("Hello", "friend@gmail.com", "unsubscribe or opt-out or remove me", nil),
			wantScore: 2,
			wantIs:    false,
		},
		{
			name:      "subject pattern alone is one point",
			msg:       msg("ACME Newsletter", "a@acme.com", "", nil),
			wantScore: 1,
			wantIs:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, _ := c.Score(tt.msg)
			if score != tt.wantScore {
				t.Errorf("Score() = %d, want %d", score, tt.wantScore)
			}
			if got := c.IsNewsletter(tt.msg); got != tt.wantIs {
				t.Errorf("IsNewsletter() = %v, want %v", got, tt.wantIs)
			}
		})
	}
}

func TestClassifierDeterminism(t *testing.T) {
	c := NewClassifier()
	m := msg("Tech Digest - Issue 7", "digest@techmail.io", "manage preferences at the link below", map[string]string{
		"list-unsubscribe": "<https://techmail.io/u>",
	})

	first, _ := c.Score(m)
	for i := 0; i < 50; i++ {
		score, _ := c.Score(m)
		if score != first {
			t.Fatalf("score changed between runs: %d vs %d", first, score)
		}
	}
}

func TestClassifierScansTextAndHTMLTogether(t *testing.T) {
	c := NewClassifier()

	// The opt-out language lives only in the HTML part while the text part
	// is present and harmless; both parts must be scanned.
	m := &domain.MailMessage{
		Subject:   "Offers",
		FromEmail: "noreply@shop.example.com",
		BodyText:  "Here is what is new this month at our shop.",
		BodyHTML:  `<a href="https://shop.example.com/unsubscribe">Unsubscribe</a>`,
	}
	score, _ := c.Score(m)
	// 2 (content, from HTML) + 1 (sender)
	if score != 3 {
		t.Fatalf("Score() = %d, want 3", score)
	}
	if !c.IsNewsletter(m) {
		t.Fatal("IsNewsletter() = false, want true")
	}
}

func TestClassifierUnsubscribeSpellings(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		body string
		want int
	}{
		{"click to opt-out", 2},
		{"click to opt out", 2},
		{"click to optout", 2},
		{"remove me from this list", 2},
		{"remove-me from this list", 2},
		{"removeme link below", 2},
		{"manage preferences here", 2},
		{"manage-preferences here", 2},
		{"email preferences page", 2},
		{"no opt language at all", 0},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			score, _ := c.Score(msg("Hello", "friend@gmail.com", tt.body, nil))
			if score != tt.want {
				t.Errorf("Score() = %d, want %d", score, tt.want)
			}
		})
	}
}
