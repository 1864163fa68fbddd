package detect

import (
	"testing"

	"newsletter_server/core/domain"
)

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name        string
		subject     string
		senderName  string
		senderEmail string
		want        string
	}{
		{"newsletter suffix", "Morning Brew Newsletter", "", "crew@morningbrew.com", "Morning Brew"},
		{"digest suffix", "Hacker Digest #12", "", "x@hn.io", "Hacker"},
		{"the report pattern", "The Pragmatic Report", "", "x@pragmatic.dev", "Pragmatic"},
		{"pattern order: newsletter before update", "Acme Newsletter Update", "", "a@acme.com", "Acme"},
		{"fallback to sender display name", "Random subject line", "Benedict's Notes", "ben@notes.io", "Benedict's Notes"},
		{"display name equal to address is skipped", "Random subject", "ben@notes.io", "ben@notes.io", "Notes"},
		{"fallback to capitalized domain label", "Random subject", "", "team@substack.com", "Substack"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractTitle(tt.subject, tt.senderName, tt.senderEmail)
			if got != tt.want {
				t.Errorf("ExtractTitle(%q) = %q, want %q", tt.subject, got, tt.want)
			}
		})
	}
}

func TestExtractCadence(t *testing.T) {
	tests := []struct {
		subject string
		want    domain.Cadence
	}{
		{"Your Daily Briefing", domain.CadenceDaily},
		{"What happened today", domain.CadenceDaily},
		{"This Week in Rust", domain.CadenceWeekly},
		{"Monthly Roundup", domain.CadenceMonthly},
		{"Quarterly Outlook", domain.CadenceQuarterly},
		{"Just a subject", domain.CadenceUnknown},
	}

	for _, tt := range tests {
		if got := ExtractCadence(tt.subject); got != tt.want {
			t.Errorf("ExtractCadence(%q) = %q, want %q", tt.subject, got, tt.want)
		}
	}
}

func TestExtractCategory(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		body    string
		want    string
	}{
		{"clear technology", "AI software roundup", "programming and developer news", "Technology"},
		{"clear finance", "Market watch", "stock picks and crypto and investing tips", "Finance"},
		{"no keywords yields General", "Hello there", "nothing relevant in here", "General"},
		{
			// "tech" and "finance" each occur exactly once; Technology is
			// earlier in the table and must win the tie.
			name:    "tie resolves to earlier category",
			subject: "tech meets finance",
			body:    "",
			want:    "Technology",
		},
		{
			name:    "higher count beats earlier position",
			subject: "money trouble",
			body:    "trading stock and crypto",
			want:    "Finance",
		},
		{
			name:    "startup is a business keyword",
			subject: "Startup funding roundup",
			body:    "the startup closed another funding round",
			want:    "Business",
		},
		{
			name:    "strategy is a business keyword",
			subject: "Go-to-market strategy notes",
			body:    "sales and marketing playbook",
			want:    "Business",
		},
		{
			name:    "keywords count once per category regardless of repeats",
			subject: "money money money",
			body:    "business startup entrepreneur",
			want:    "Business",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCategory(tt.subject, tt.body)
			if got != tt.want {
				t.Errorf("ExtractCategory() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractCategoryDeterministicTieBreak(t *testing.T) {
	// Repeated runs over a tied input must always resolve identically.
	for i := 0; i < 100; i++ {
		if got := ExtractCategory("science education", ""); got != "Science" {
			t.Fatalf("run %d: got %q, want Science", i, got)
		}
	}
}

func TestExtractorExtract(t *testing.T) {
	e := NewExtractor()
	m := &domain.MailMessage{
		Subject:   "TLDR Newsletter - Issue 101",
		FromName:  "TLDR",
		FromEmail: "Dan@tldrnewsletter.com",
		BodyText:  "ai startup software news, unsubscribe below",
	}

	meta := e.Extract(m)
	if meta.Name != "TLDR" {
		t.Errorf("Name = %q, want TLDR", meta.Name)
	}
	if meta.SenderEmail != "dan@tldrnewsletter.com" {
		t.Errorf("SenderEmail = %q, want lowercased", meta.SenderEmail)
	}
	if meta.Domain != "tldrnewsletter.com" {
		t.Errorf("Domain = %q", meta.Domain)
	}
	if meta.WebsiteURL != "https://tldrnewsletter.com" {
		t.Errorf("WebsiteURL = %q", meta.WebsiteURL)
	}
	if meta.Category != "Technology" {
		t.Errorf("Category = %q, want Technology", meta.Category)
	}
	if meta.Description == "" {
		t.Error("Description is empty")
	}
}
