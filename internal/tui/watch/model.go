package watch

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const pollInterval = 2 * time.Second

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	baseURL   string
	accessKey string

	width  int
	height int

	table     table.Model
	theme     Theme
	healthy   bool
	lastFetch time.Time
	lastError string
}

// New creates a watch model pointed at a running service.
func New(baseURL, accessKey string) *Model {
	columns := []table.Column{
		{Title: "Time", Width: 19},
		{Title: "Kind", Width: 18},
		{Title: "Order", Width: 8},
		{Title: "Message", Width: 48},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderBottom(true)
	t.SetStyles(styles)

	return &Model{
		baseURL:   baseURL,
		accessKey: accessKey,
		table:     t,
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchEvents(m.baseURL, m.accessKey),
		fetchHealth(m.baseURL),
		tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, fetchEvents(m.baseURL, m.accessKey)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(5, m.height-8))

	case tickMsg:
		return m, tea.Batch(
			fetchEvents(m.baseURL, m.accessKey),
			fetchHealth(m.baseURL),
			tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) }),
		)

	case eventsMsg:
		m.table.SetRows(eventRows(msg, m.theme))
		m.lastFetch = time.Now()
		m.lastError = ""

	case healthMsg:
		m.healthy = msg.healthy

	case errMsg:
		m.lastError = msg.Error()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	status := m.theme.StatusBad.Render("● down")
	if m.healthy {
		status = m.theme.StatusOK.Render("● up")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		m.theme.Title.Render("bindery watch"),
		"  ", status,
		"  ", m.theme.Dim.Render(m.baseURL),
	)

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusBad.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := m.theme.Dim.Render(" [q] Quit • [r] Refresh • [↑/↓] Scroll")

	parts := []string{header, m.theme.Border.Render(m.table.View())}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

// eventRows converts feed events to table rows, newest first as served.
func eventRows(events []Event, theme Theme) []table.Row {
	rows := make([]table.Row, len(events))
	for i, ev := range events {
		created := ev.CreatedAt
		if ts, err := time.Parse(time.RFC3339Nano, ev.CreatedAt); err == nil {
			created = ts.Local().Format("2006-01-02 15:04:05")
		}
		order := "-"
		if ev.OrderID != nil {
			order = strconv.FormatInt(*ev.OrderID, 10)
		}
		rows[i] = table.Row{created, theme.styleForKind(ev.Kind).Render(ev.Kind), order, ev.Message}
	}
	return rows
}
