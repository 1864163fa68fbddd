package gmail

import (
	"encoding/base64"
	"testing"
	"time"

	"google.golang.org/api/gmail/v1"
)

func encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestBuildQuery(t *testing.T) {
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		daysBack int
		want     string
	}{
		{7, "after:2025/03/08"},
		{30, "after:2025/02/13"},
		{1, "after:2025/03/14"},
	}

	for _, tt := range tests {
		if got := BuildQuery(tt.daysBack, now); got != tt.want {
			t.Errorf("BuildQuery(%d) = %q, want %q", tt.daysBack, got, tt.want)
		}
	}
}

func TestPageSize(t *testing.T) {
	tests := []struct {
		remaining int
		want      int64
	}{
		{1000, 500},
		{500, 500},
		{501, 500},
		{37, 37},
		{1, 1},
	}

	for _, tt := range tests {
		if got := PageSize(tt.remaining); got != tt.want {
			t.Errorf("PageSize(%d) = %d, want %d", tt.remaining, got, tt.want)
		}
	}
}

func TestExtractBodyFirstWins(t *testing.T) {
	// multipart/alternative nested inside multipart/mixed; the first
	// text/plain and first text/html leaves must win over later ones.
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("first text")}},
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<p>first html</p>")}},
				},
			},
			{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("second text")}},
			{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<p>second html</p>")}},
		},
	}

	text, html := ExtractBody(payload)
	if text != "first text" {
		t.Errorf("text = %q, want first text", text)
	}
	if html != "<p>first html</p>" {
		t.Errorf("html = %q, want first html", html)
	}
}

func TestExtractBodySingleLeaf(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: encode("hello")},
	}

	text, html := ExtractBody(payload)
	if text != "hello" || html != "" {
		t.Errorf("got (%q, %q), want (hello, empty)", text, html)
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"tags stripped and whitespace normalized",
			"<div><p>Hello   <b>world</b></p>\n\n<p>bye</p></div>",
			"Hello world bye",
		},
		{
			"script and style blocks removed",
			"<style>p{color:red}</style><script>alert(1)</script><p>kept</p>",
			"kept",
		},
		{
			"entities unescaped",
			"<p>fish &amp; chips &ndash; tonight</p>",
			"fish & chips – tonight",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTMLToText(tt.in); got != tt.want {
				t.Errorf("HTMLToText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTMLOnlyMessageGetsSynthesizedText(t *testing.T) {
	raw := &gmail.Message{
		Id: "m1",
		Payload: &gmail.MessagePart{
			MimeType: "text/html",
			Body:     &gmail.MessagePartBody{Data: encode("<p>Unsubscribe <a href='x'>here</a></p>")},
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Offers"},
				{Name: "From", Value: "Promo <promo@store.com>"},
			},
		},
	}

	msg := convertMessage(raw)
	if msg.BodyHTML == "" {
		t.Fatal("BodyHTML is empty")
	}
	if msg.BodyText != "Unsubscribe here" {
		t.Errorf("BodyText = %q, want synthesized text", msg.BodyText)
	}
	if msg.FromName != "Promo" || msg.FromEmail != "promo@store.com" {
		t.Errorf("from = (%q, %q)", msg.FromName, msg.FromEmail)
	}
}

func TestConvertMessageHeadersLowercased(t *testing.T) {
	raw := &gmail.Message{
		Id:           "m2",
		ThreadId:     "t2",
		InternalDate: 1700000000000,
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "List-Unsubscribe", Value: "<mailto:u@x.com>"},
				{Name: "List-ID", Value: "<news.x.com>"},
				{Name: "X-Irrelevant", Value: "dropped"},
			},
		},
	}

	msg := convertMessage(raw)
	if msg.Header("list-unsubscribe") != "<mailto:u@x.com>" {
		t.Errorf("list-unsubscribe lookup failed: %v", msg.Headers)
	}
	if msg.Header("List-Unsubscribe") != "<mailto:u@x.com>" {
		t.Error("mixed-case lookup failed")
	}
	if _, ok := msg.Headers["x-irrelevant"]; ok {
		t.Error("uninteresting header was kept")
	}
	if !msg.ReceivedAt.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("ReceivedAt = %v", msg.ReceivedAt)
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in        string
		wantName  string
		wantEmail string
	}{
		{"TLDR <dan@tldrnewsletter.com>", "TLDR", "dan@tldrnewsletter.com"},
		{"dan@tldrnewsletter.com", "", "dan@tldrnewsletter.com"},
		{"<bare@brackets.io>", "", "bare@brackets.io"},
		{"", "", ""},
	}

	for _, tt := range tests {
		name, email := ParseAddress(tt.in)
		if name != tt.wantName || email != tt.wantEmail {
			t.Errorf("ParseAddress(%q) = (%q, %q), want (%q, %q)", tt.in, name, email, tt.wantName, tt.wantEmail)
		}
	}
}
