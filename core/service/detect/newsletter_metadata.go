package detect

import (
	"regexp"
	"strings"

	"newsletter_server/core/domain"
)

// =============================================================================
// Title extraction
// =============================================================================

// titlePatterns are tried in order against the subject; the first pattern
// that matches wins and its captured prefix becomes the title.
var titlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(.*?)\s+newsletter\b`),
	regexp.MustCompile(`(?i)^(.*?)\s+digest\b`),
	regexp.MustCompile(`(?i)^(.*?)\s+weekly\b`),
	regexp.MustCompile(`(?i)^(.*?)\s+daily\b`),
	regexp.MustCompile(`(?i)^(.*?)\s+update\b`),
	regexp.MustCompile(`(?i)^the\s+(.*?)\s+report\b`),
	regexp.MustCompile(`(?i)^(.*?)\s+bulletin\b`),
}

// =============================================================================
// Category table
// =============================================================================

// categoryEntry pairs a category with its keyword set. The slice order is
// the tie-break order: on equal keyword counts the earlier entry wins.
type categoryEntry struct {
	name     string
	keywords []string
}

var categoryTable = []categoryEntry{
	{"Technology", []string{"tech", "software", "ai", "machine learning", "programming", "coding", "developer"}},
	{"Business", []string{"business", "startup", "entrepreneur", "marketing", "sales", "strategy"}},
	{"Finance", []string{"finance", "investment", "crypto", "stock", "trading", "money", "economy"}},
	{"News", []string{"news", "politics", "world", "breaking", "update", "current events"}},
	{"Health", []string{"health", "wellness", "fitness", "medical", "nutrition", "exercise"}},
	{"Science", []string{"science", "research", "study", "discovery", "experiment", "academic"}},
	{"Education", []string{"education", "learning", "course", "training", "skill", "knowledge"}},
	{"Lifestyle", []string{"lifestyle", "travel", "food", "culture", "entertainment", "fashion"}},
}

// DefaultCategory is used when no keyword matches at all.
const DefaultCategory = "General"

// Extractor derives newsletter metadata from classified messages.
// Stateless; safe for concurrent use.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract derives the newsletter metadata for a message already classified
// as a newsletter.
func (e *Extractor) Extract(msg *domain.MailMessage) *domain.NewsletterMetadata {
	dom := senderDomain(msg.FromEmail)

	meta := &domain.NewsletterMetadata{
		SenderEmail: strings.ToLower(msg.FromEmail),
		SenderName:  msg.FromName,
		Domain:      dom,
		Category:    ExtractCategory(msg.Subject, msg.BodyText),
		Cadence:     ExtractCadence(msg.Subject),
	}
	if dom != "" {
		meta.WebsiteURL = "https://" + dom
	}

	meta.Name = ExtractTitle(msg.Subject, msg.FromName, msg.FromEmail)
	if meta.Name != "" {
		meta.Description = "Newsletter from " + meta.Name
	} else if msg.FromName != "" {
		meta.Description = "Newsletter from " + msg.FromName
	} else {
		meta.Description = "Newsletter from " + meta.SenderEmail
	}

	return meta
}

// ExtractTitle tries the ordered subject patterns first, then falls back
// to the sender display name, then to the capitalized first domain label.
// May return empty.
func ExtractTitle(subject, senderName, senderEmail string) string {
	for _, re := range titlePatterns {
		if m := re.FindStringSubmatch(subject); m != nil {
			if title := strings.TrimSpace(m[1]); title != "" {
				return title
			}
		}
	}

	if senderName != "" && !strings.EqualFold(senderName, senderEmail) {
		return senderName
	}

	if dom := senderDomain(senderEmail); dom != "" {
		label := dom
		if i := strings.Index(dom, "."); i > 0 {
			label = dom[:i]
		}
		if label != "" {
			return strings.ToUpper(label[:1]) + label[1:]
		}
	}
	return ""
}

// ExtractCadence scans the subject for frequency keywords.
func ExtractCadence(subject string) domain.Cadence {
	s := strings.ToLower(subject)
	switch {
	case strings.Contains(s, "daily") || strings.Contains(s, "today"):
		return domain.CadenceDaily
	case strings.Contains(s, "weekly") || strings.Contains(s, "week"):
		return domain.CadenceWeekly
	case strings.Contains(s, "monthly") || strings.Contains(s, "month"):
		return domain.CadenceMonthly
	case strings.Contains(s, "quarterly") || strings.Contains(s, "quarter"):
		return domain.CadenceQuarterly
	default:
		return domain.CadenceUnknown
	}
}

// ExtractCategory scores each category by how many of its keywords appear
// in subject + body text (each keyword counts once) and picks the
// highest-scoring category. Ties resolve to the earliest entry in the
// fixed table order; no match at all yields DefaultCategory.
func ExtractCategory(subject, bodyText string) string {
	text := strings.ToLower(subject + " " + bodyText)

	best := DefaultCategory
	bestCount := 0
	for _, entry := range categoryTable {
		count := 0
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				count++
			}
		}
		// strictly greater: earlier entries win ties
		if count > bestCount {
			best = entry.name
			bestCount = count
		}
	}
	return best
}

func senderDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 && i+1 < len(email) {
		return strings.ToLower(email[i+1:])
	}
	return ""
}
