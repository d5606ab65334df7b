package mail

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Link is one download link rendered into a delivery email.
type Link struct {
	Title     string
	URL       string
	ExpiresAt time.Time
}

// DownloadMessage builds the email sent after an order is fulfilled.
func DownloadMessage(to string, links []Link) Message {
	return Message{
		To:      to,
		Subject: "Your ebook download link",
		Text:    "Thanks for your purchase.\n" + textLinks(links),
		HTML:    "<p>Thanks for your purchase.</p><ul>" + htmlLinks(links) + "</ul>",
	}
}

// RegeneratedMessage builds the email sent after a customer regenerates
// their links.
func RegeneratedMessage(to string, links []Link) Message {
	return Message{
		To:      to,
		Subject: "Your regenerated ebook link",
		Text:    "Your link has been regenerated.\n" + textLinks(links),
		HTML:    "<p>Your link has been regenerated.</p><ul>" + htmlLinks(links) + "</ul>",
	}
}

func textLinks(links []Link) string {
	lines := make([]string, 0, len(links))
	for _, l := range links {
		lines = append(lines, fmt.Sprintf("%s: %s (expires %s)", l.Title, l.URL, l.ExpiresAt.Format(time.RFC3339)))
	}
	return strings.Join(lines, "\n")
}

func htmlLinks(links []Link) string {
	var b strings.Builder
	for _, l := range links {
		fmt.Fprintf(&b, `<li><a href=%q>%s</a> (expires %s)</li>`,
			l.URL, html.EscapeString(l.Title), l.ExpiresAt.Format(time.RFC3339))
	}
	return b.String()
}
