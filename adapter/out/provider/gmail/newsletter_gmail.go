// Package gmail implements the mailbox provider port against the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	"newsletter_server/core/domain"
	"newsletter_server/core/port/out"
	"newsletter_server/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	// providerPageCap is Gmail's hard page size limit.
	providerPageCap = 500

	// fetchConcurrency bounds parallel message fetches within a run.
	fetchConcurrency = 5

	// callTimeout bounds every single Gmail API call.
	callTimeout = 30 * time.Second
)

// headers of interest carried into domain.MailMessage
var interestingHeaders = map[string]bool{
	"list-unsubscribe": true,
	"list-id":          true,
	"list-post":        true,
	"list-help":        true,
	"mailing-list":     true,
	"from":             true,
	"subject":          true,
	"date":             true,
}

// Factory opens authenticated Gmail sessions. One circuit breaker guards
// all sessions against a misbehaving upstream.
type Factory struct {
	oauth   *oauth2.Config
	breaker *gobreaker.CircuitBreaker
}

func NewFactory(oauthConfig *oauth2.Config) *Factory {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return &Factory{oauth: oauthConfig, breaker: breaker}
}

// Open builds a Gmail service for the token and resolves the mailbox
// address from the profile.
func (f *Factory) Open(ctx context.Context, token *oauth2.Token) (out.Mailbox, error) {
	client := f.oauth.Client(ctx, token)
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	var profile *gmail.Profile
	err = f.call(ctx, func(callCtx context.Context) error {
		var callErr error
		profile, callErr = svc.Users.GetProfile("me").Context(callCtx).Do()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gmail profile: %w", err)
	}

	return &Mailbox{svc: svc, address: profile.EmailAddress, factory: f}, nil
}

// call runs one Gmail API call through the breaker with a timeout.
func (f *Factory) call(ctx context.Context, fn func(context.Context) error) error {
	_, err := f.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		return nil, fn(callCtx)
	})
	return err
}

// Mailbox is one authenticated Gmail session.
type Mailbox struct {
	svc     *gmail.Service
	address string
	factory *Factory
}

func (m *Mailbox) Address() string {
	return m.address
}

// ListMessages lists ids within the window and fetches each message in
// full format with bounded concurrency. Per-message fetch failures are
// collected, not fatal.
func (m *Mailbox) ListMessages(ctx context.Context, opts out.ListOptions) ([]*domain.MailMessage, []domain.MessageError, error) {
	query := BuildQuery(opts.DaysBack, time.Now())

	ids, err := m.listIDs(ctx, query, opts.MaxResults)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list messages: %w", err)
	}

	// Indexed results preserve listing order across parallel fetches
	results := make([]*domain.MailMessage, len(ids))
	failures := make([]domain.MessageError, 0)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, fetchConcurrency)
	)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			msg, err := m.fetchMessage(ctx, id)
			if err != nil {
				mu.Lock()
				failures = append(failures, domain.MessageError{
					ExternalID: id,
					Stage:      "fetch",
					Reason:     err.Error(),
				})
				mu.Unlock()
				return
			}
			results[i] = msg
		}(i, id)
	}
	wg.Wait()

	messages := make([]*domain.MailMessage, 0, len(ids))
	for _, msg := range results {
		if msg != nil {
			messages = append(messages, msg)
		}
	}
	return messages, failures, nil
}

// listIDs pages through the listing until maxResults ids are collected or
// the mailbox is exhausted, then truncates to exactly maxResults.
func (m *Mailbox) listIDs(ctx context.Context, query string, maxResults int) ([]string, error) {
	var (
		ids       []string
		pageToken string
	)
	for len(ids) < maxResults {
		size := PageSize(maxResults - len(ids))

		var resp *gmail.ListMessagesResponse
		err := m.factory.call(ctx, func(callCtx context.Context) error {
			call := m.svc.Users.Messages.List("me").
				Q(query).
				MaxResults(size).
				Context(callCtx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var callErr error
			resp, callErr = call.Do()
			return callErr
		})
		if err != nil {
			return nil, err
		}

		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	if len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

func (m *Mailbox) fetchMessage(ctx context.Context, id string) (*domain.MailMessage, error) {
	var raw *gmail.Message
	err := m.factory.call(ctx, func(callCtx context.Context) error {
		var callErr error
		raw, callErr = m.svc.Users.Messages.Get("me", id).Format("full").Context(callCtx).Do()
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return convertMessage(raw), nil
}

// convertMessage maps a raw Gmail message into the domain shape, running
// content extraction on the payload tree.
func convertMessage(raw *gmail.Message) *domain.MailMessage {
	msg := &domain.MailMessage{
		ExternalID: raw.Id,
		ThreadID:   raw.ThreadId,
		Snippet:    raw.Snippet,
		Labels:     raw.LabelIds,
		Headers:    make(map[string]string),
		ReceivedAt: time.UnixMilli(raw.InternalDate),
	}

	if raw.Payload != nil {
		for _, h := range raw.Payload.Headers {
			name := strings.ToLower(h.Name)
			if !interestingHeaders[name] {
				continue
			}
			if _, exists := msg.Headers[name]; !exists {
				msg.Headers[name] = h.Value
			}
		}

		msg.Subject = msg.Headers["subject"]
		msg.FromName, msg.FromEmail = ParseAddress(msg.Headers["from"])

		text, htmlBody := ExtractBody(raw.Payload)
		msg.BodyText = text
		msg.BodyHTML = htmlBody
		if msg.BodyText == "" && msg.BodyHTML != "" {
			msg.BodyText = HTMLToText(msg.BodyHTML)
		}
	}
	return msg
}

// BuildQuery restricts listing to messages received after now - daysBack.
func BuildQuery(daysBack int, now time.Time) string {
	after := now.AddDate(0, 0, -daysBack).Format("2006/01/02")
	return "after:" + after
}

// PageSize returns the next page size: the provider cap or whatever is
// still needed, whichever is smaller.
func PageSize(remaining int) int64 {
	if remaining > providerPageCap {
		return providerPageCap
	}
	return int64(remaining)
}

// ExtractBody walks the part tree depth-first. The first text/plain leaf
// wins for text, the first text/html leaf wins for HTML; later matches of
// the same kind are ignored.
func ExtractBody(part *gmail.MessagePart) (text, html string) {
	if part == nil {
		return "", ""
	}

	if part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if text == "" {
				text = decodeBody(part.Body.Data)
			}
		case "text/html":
			if html == "" {
				html = decodeBody(part.Body.Data)
			}
		}
	}

	for _, child := range part.Parts {
		childText, childHTML := ExtractBody(child)
		if text == "" {
			text = childText
		}
		if html == "" {
			html = childHTML
		}
		if text != "" && html != "" {
			break
		}
	}
	return text, html
}

func decodeBody(data string) string {
	decoded, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		// some payloads arrive padded
		decoded, err = base64.URLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe         = regexp.MustCompile(`<[^>]*>`)
)

// HTMLToText synthesizes plain text from HTML: tags and script/style
// blocks removed, entities unescaped, whitespace normalized.
func HTMLToText(htmlBody string) string {
	stripped := scriptStyleRe.ReplaceAllString(htmlBody, " ")
	stripped = tagRe.ReplaceAllString(stripped, " ")
	stripped = html.UnescapeString(stripped)
	return strings.Join(strings.Fields(stripped), " ")
}

// ParseAddress splits a From header into display name and address.
func ParseAddress(from string) (name, email string) {
	if from == "" {
		return "", ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Name, addr.Address
	}
	// bare address or malformed header
	return "", strings.Trim(strings.TrimSpace(from), "<>")
}

var _ out.MailboxFactory = (*Factory)(nil)
var _ out.Mailbox = (*Mailbox)(nil)
