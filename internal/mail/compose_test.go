package mail

import (
	"strings"
	"testing"
	"time"
)

func TestDownloadMessage(t *testing.T) {
	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := DownloadMessage("buyer@example.com", []Link{
		{Title: "Practical Typesetting", URL: "http://localhost:3007/download/abc", ExpiresAt: exp},
		{Title: "Bindery Basics", URL: "http://localhost:3007/download/def", ExpiresAt: exp},
	})

	if msg.To != "buyer@example.com" {
		t.Errorf("To = %q", msg.To)
	}
	if msg.Subject != "Your ebook download link" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	for _, want := range []string{
		"Thanks for your purchase.",
		"Practical Typesetting: http://localhost:3007/download/abc",
		"expires 2026-03-01T12:00:00Z",
	} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("text body missing %q:\n%s", want, msg.Text)
		}
	}
	if !strings.Contains(msg.HTML, `<a href="http://localhost:3007/download/def">Bindery Basics</a>`) {
		t.Errorf("html body missing link:\n%s", msg.HTML)
	}
}

func TestRegeneratedMessageSubject(t *testing.T) {
	msg := RegeneratedMessage("buyer@example.com", nil)
	if msg.Subject != "Your regenerated ebook link" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Text, "Your link has been regenerated.") {
		t.Errorf("text body = %q", msg.Text)
	}
}

func TestHTMLLinksEscapeTitles(t *testing.T) {
	got := htmlLinks([]Link{{Title: "<script>", URL: "http://x", ExpiresAt: time.Unix(0, 0).UTC()}})
	if strings.Contains(got, "<script>") {
		t.Errorf("title not escaped: %s", got)
	}
}
