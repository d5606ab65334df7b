package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Event is one audit entry from the admin events feed.
type Event struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	OrderID   *int64 `json:"order_id"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// --- Message types ---

type eventsMsg []Event

type healthMsg struct {
	healthy bool
}

type tickMsg time.Time

type errMsg error

// --- Commands ---

// fetchEvents polls the admin events feed once.
func fetchEvents(baseURL, accessKey string) tea.Cmd {
	return func() tea.Msg {
		u := baseURL + "/admin/events"
		if accessKey != "" {
			u += "?key=" + url.QueryEscape(accessKey)
		}

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(u)
		if err != nil {
			return errMsg(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("events feed returned %d", resp.StatusCode))
		}

		var events []Event
		if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
			return errMsg(fmt.Errorf("decode events: %w", err))
		}
		return eventsMsg(events)
	}
}

// fetchHealth probes the health endpoint once.
func fetchHealth(baseURL string) tea.Cmd {
	return func() tea.Msg {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(baseURL + "/health")
		if err != nil {
			return healthMsg{healthy: false}
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		return healthMsg{healthy: resp.StatusCode == http.StatusOK}
	}
}
