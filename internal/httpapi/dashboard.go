package httpapi

import (
	"html/template"
	"net/http"
	"time"

	"github.com/mattjoyce/bindery/internal/store"
)

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Service}} dashboard</title>
<style>
  body { font-family: system-ui, sans-serif; margin: 2rem; color: #1a1a2e; }
  h1 { font-size: 1.3rem; }
  h2 { font-size: 1.05rem; margin-top: 2rem; }
  table { border-collapse: collapse; width: 100%; }
  th, td { text-align: left; padding: 0.35rem 0.6rem; border-bottom: 1px solid #ddd; font-size: 0.85rem; }
  .tag { padding: 0.1rem 0.4rem; border-radius: 3px; font-size: 0.75rem; background: #e8e8f0; }
  .tag--webhook_invalid, .tag--email_failed, .tag--download_failed, .tag--regen_failed { background: #fde2e2; }
  .tag--email_sent, .tag--download_success { background: #def7e5; }
  .muted { color: #888; }
</style>
</head>
<body>
<h1>{{.Service}}</h1>
<h2>Recent orders</h2>
{{if .Orders}}
<table>
  <tr><th>Order</th><th>Events</th><th>Last activity</th></tr>
  {{range .Orders}}
  <tr>
    <td>{{.OrderID}}</td>
    <td>{{.Events}}</td>
    <td>{{.LastEventAt.Format "2006-01-02 15:04:05"}}</td>
  </tr>
  {{end}}
</table>
{{else}}<p class="muted">No order activity yet.</p>{{end}}
<h2>Recent events</h2>
{{if .Events}}
<table>
  <tr><th>Time</th><th>Kind</th><th>Order</th><th>Message</th></tr>
  {{range .Events}}
  <tr>
    <td>{{.CreatedAt.Format "2006-01-02 15:04:05"}}</td>
    <td><span class="tag tag--{{.Kind}}">{{.Kind}}</span></td>
    <td>{{if .OrderID}}{{.OrderID}}{{else}}<span class="muted">-</span>{{end}}</td>
    <td>{{.Message}}</td>
  </tr>
  {{end}}
</table>
{{else}}<p class="muted">No events yet.</p>{{end}}
</body>
</html>
`))

type orderSummary struct {
	OrderID     int64
	Events      int
	LastEventAt time.Time
}

type dashboardData struct {
	Service string
	Events  []store.AuditEvent
	Orders  []orderSummary
}

// handleDashboard renders recent activity. Orders are derived from the
// audit trail rather than queried directly, so the page reflects exactly
// what the log knows.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	events, err := s.audit.Recent(r.Context(), 100)
	if err != nil {
		s.logger.Error("dashboard failed", "error", err)
		respondText(w, http.StatusInternalServerError, "internal error")
		return
	}

	data := dashboardData{
		Service: s.cfg.Service.Name,
		Events:  events,
		Orders:  summarizeOrders(events),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, data); err != nil {
		s.logger.Error("dashboard render failed", "error", err)
	}
}

// summarizeOrders groups events by order id. Events arrive newest first,
// so the first event seen for an order carries its latest activity.
func summarizeOrders(events []store.AuditEvent) []orderSummary {
	index := make(map[int64]int)
	var orders []orderSummary
	for _, ev := range events {
		if ev.OrderID == nil {
			continue
		}
		if i, ok := index[*ev.OrderID]; ok {
			orders[i].Events++
			continue
		}
		index[*ev.OrderID] = len(orders)
		orders = append(orders, orderSummary{
			OrderID:     *ev.OrderID,
			Events:      1,
			LastEventAt: ev.CreatedAt,
		})
	}
	return orders
}
