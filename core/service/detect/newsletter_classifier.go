// Package detect implements the heuristic newsletter classifier and the
// metadata extractor. Both are pure functions over parsed messages.
package detect

import (
	"regexp"
	"strings"

	"newsletter_server/core/domain"
)

// =============================================================================
// Indicator weights
// =============================================================================

// Newsletter decision threshold: a message with an accumulated indicator
// score of at least this value is a newsletter.
const NewsletterThreshold = 3

const (
	scoreUnsubscribeContent = 2 // counted once, first match wins
	scoreListUnsubscribe    = 3
	scoreListHeader         = 1 // per header
	scoreSenderPattern      = 1
	scoreSubjectPattern     = 1
)

// Indicator names reported in run summaries.
const (
	IndicatorUnsubscribeContent = "unsubscribe_content"
	IndicatorListUnsubscribe    = "list_unsubscribe_header"
	IndicatorSenderPattern      = "sender_pattern"
	IndicatorSubjectPattern     = "subject_pattern"
)

// unsubscribePatterns match opt-out language in the message content.
// Checked once; the first hit scores and stops the scan. The `.?` forms
// cover hyphenated, spaced, and joined spellings (opt-out, opt out, optout).
var unsubscribePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)unsubscribe`),
	regexp.MustCompile(`(?i)opt.?out`),
	regexp.MustCompile(`(?i)remove.?me`),
	regexp.MustCompile(`(?i)manage.?preferences`),
	regexp.MustCompile(`(?i)email.?preferences`),
}

// listHeaders are the RFC mailing-list headers scored individually.
var listHeaders = []string{
	"list-id",
	"list-post",
	"list-help",
	"mailing-list",
}

// senderPatterns match newsletter-ish sender addresses.
var senderPatterns = []string{
	"newsletter",
	"noreply",
	"no-reply",
	"digest",
	"update",
	"notification",
	"alert",
}

// subjectPatterns match newsletter-ish subjects.
var subjectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bnewsletter\b`),
	regexp.MustCompile(`(?i)\bdigest\b`),
	regexp.MustCompile(`(?i)\b(weekly|daily|monthly)\s+update\b`),
	regexp.MustCompile(`(?i)\bissue\s+#?\d+`),
	regexp.MustCompile(`(?i)\bedition\s+#?\d+`),
	regexp.MustCompile(`(?i)\bvol\.?\s*\d+`),
}

// Classifier scores messages for newsletter likelihood. Stateless; safe
// for concurrent use.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Score computes the indicator score for a message and returns the names
// of the indicators that fired.
func (c *Classifier) Score(msg *domain.MailMessage) (int, []string) {
	score := 0
	var indicators []string

	// Unsubscribe language in content (+2, once). Text and HTML bodies are
	// scanned together; an unsubscribe link present only in the HTML part
	// still counts.
	content := msg.BodyText + msg.BodyHTML
	for _, re := range unsubscribePatterns {
		if re.MatchString(content) {
			score += scoreUnsubscribeContent
			indicators = append(indicators, IndicatorUnsubscribeContent)
			break
		}
	}

	// List-Unsubscribe header (+3)
	if msg.Header("list-unsubscribe") != "" {
		score += scoreListUnsubscribe
		indicators = append(indicators, IndicatorListUnsubscribe)
	}

	// Mailing-list headers (+1 each)
	for _, header := range listHeaders {
		if msg.Header(header) != "" {
			score += scoreListHeader
			indicators = append(indicators, "header:"+header)
		}
	}

	// Sender address pattern (+1)
	sender := strings.ToLower(msg.FromEmail)
	for _, pattern := range senderPatterns {
		if strings.Contains(sender, pattern) {
			score += scoreSenderPattern
			indicators = append(indicators, IndicatorSenderPattern)
			break
		}
	}

	// Subject pattern (+1)
	for _, re := range subjectPatterns {
		if re.MatchString(msg.Subject) {
			score += scoreSubjectPattern
			indicators = append(indicators, IndicatorSubjectPattern)
			break
		}
	}

	return score, indicators
}

// IsNewsletter reports whether the message crosses the decision threshold.
func (c *Classifier) IsNewsletter(msg *domain.MailMessage) bool {
	score, _ := c.Score(msg)
	return score >= NewsletterThreshold
}
