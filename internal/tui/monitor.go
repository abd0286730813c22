// Package tui is a terminal monitor for a running `themethumb serve`. It
// follows /events and polls /healthz.
package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/themethumb/internal/events"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusEmpty  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	statusFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	statusQueued = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

const (
	maxRenders = 200
	maxEvents  = 50
)

// Render statuses shown in the table.
const (
	statusQueuedName   = "queued"
	statusRenderedName = "rendered"
	statusEmptyName    = "empty"
	statusAbandoned    = "abandoned"
)

// --- Types ---

// RenderRow is one thumbnail request as seen through the event stream.
type RenderRow struct {
	ID       string
	Kind     string
	Theme    string
	Mode     string
	Status   string
	Size     string
	Queued   time.Time
	Finished time.Time
}

type Model struct {
	apiURL string
	client *http.Client

	width  int
	height int

	renders   map[string]*RenderRow
	order     []string
	eventLog  []events.Event
	hubEvents chan events.Event

	broken    bool
	lastPrune string
	lastErr   error

	health healthMsg

	renderTable table.Model
}

type eventMsg events.Event

type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Thumbnails    struct {
		Broken     bool   `json:"broken"`
		QueueDepth int    `json:"queue_depth"`
		Requested  uint64 `json:"requested"`
		Rendered   uint64 `json:"rendered"`
		Empty      uint64 `json:"empty"`
	} `json:"thumbnails"`
}

type errMsg struct{ err error }

// --- Init ---

func NewMonitor(apiURL string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Kind", Width: 18},
			{Title: "Theme", Width: 20},
			{Title: "Mode", Width: 6},
			{Title: "Size", Width: 9},
			{Title: "ID", Width: 8},
			{Title: "Duration", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		apiURL:      strings.TrimRight(apiURL, "/"),
		client:      &http.Client{},
		renders:     make(map[string]*RenderRow),
		hubEvents:   make(chan events.Event, 100),
		renderTable: t,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.subscribeToEvents(),
		m.receiveNextEvent(),
		m.pollHealth(),
		tea.EnterAltScreen,
	)
}

// --- Update ---

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.renderTable.SetWidth(m.width - 6)
		m.renderTable.SetHeight(max(m.height/2, 5))

	case eventMsg:
		m.handleEvent(events.Event(msg))
		m.updateTable()
		return m, m.receiveNextEvent()

	case healthMsg:
		m.health = msg
		m.lastErr = nil
		return m, m.scheduleHealth()

	case errMsg:
		m.lastErr = msg.err
		return m, m.scheduleHealth()
	}

	m.renderTable, cmd = m.renderTable.Update(msg)
	return m, cmd
}

func (m *Model) handleEvent(e events.Event) {
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEvents {
		m.eventLog = m.eventLog[:maxEvents]
	}

	switch e.Type {
	case events.TypeQueued, events.TypeRendered:
		var data events.Render
		if err := json.Unmarshal(e.Data, &data); err != nil || data.RenderID == "" {
			return
		}
		row := m.row(data.RenderID)
		row.Kind, row.Theme, row.Mode = data.Kind, data.Theme, data.Mode
		if e.Type == events.TypeQueued {
			row.Status = statusQueuedName
			row.Queued = e.At
			return
		}
		row.Finished = e.At
		switch {
		case data.Error != "":
			row.Status = statusAbandoned
		case data.Empty:
			row.Status = statusEmptyName
		default:
			row.Status = statusRenderedName
			row.Size = fmt.Sprintf("%dx%d", data.Width, data.Height)
		}

	case events.TypeBroken:
		m.broken = true

	case "cache.pruned":
		var data struct {
			Count int64 `json:"count"`
		}
		_ = json.Unmarshal(e.Data, &data)
		m.lastPrune = fmt.Sprintf("%d @ %s", data.Count, e.At.Local().Format("15:04"))
	}
}

// row returns the row for id, creating it at the top of the table.
func (m *Model) row(id string) *RenderRow {
	if r, ok := m.renders[id]; ok {
		return r
	}
	r := &RenderRow{ID: id}
	m.renders[id] = r
	m.order = append([]string{id}, m.order...)
	if len(m.order) > maxRenders {
		for _, old := range m.order[maxRenders:] {
			delete(m.renders, old)
		}
		m.order = m.order[:maxRenders]
	}
	return r
}

func (m *Model) updateTable() {
	rows := make([]table.Row, 0, len(m.order))
	for _, id := range m.order {
		rows = append(rows, renderToRow(m.renders[id]))
	}
	m.renderTable.SetRows(rows)
}

func renderToRow(r *RenderRow) table.Row {
	statusSym := "○"
	switch r.Status {
	case statusQueuedName:
		statusSym = statusQueued.Render("○")
	case statusRenderedName:
		statusSym = statusOK.Render("●")
	case statusEmptyName:
		statusSym = statusEmpty.Render("◌")
	case statusAbandoned:
		statusSym = statusFailed.Render("∅")
	}

	duration := "-"
	if !r.Queued.IsZero() {
		end := r.Finished
		if end.IsZero() {
			end = time.Now()
		}
		duration = end.Sub(r.Queued).Round(time.Millisecond).String()
	}

	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return table.Row{statusSym, r.Kind, r.Theme, r.Mode, r.Size, id, duration}
}

// --- View ---

func (m *Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := m.renderHeader()
	renders := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Renders"),
			m.renderTable.View(),
		),
	)

	eventsView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Event Stream"),
			m.renderEvents(),
		),
	)

	help := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(" [q] Quit • [↑/↓] Scroll Renders")

	return docStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			renders,
			eventsView,
			help,
		),
	)
}

func (m *Model) renderHeader() string {
	status := statusOK.Render("RUNNING")
	switch {
	case m.broken || m.health.Thumbnails.Broken:
		status = statusFailed.Render("WORKER BROKEN")
	case m.lastErr != nil:
		status = statusFailed.Render("UNREACHABLE")
	case m.health.Status != "ok" && m.health.Status != "":
		status = statusFailed.Render("DEGRADED")
	}

	uptime := time.Duration(m.health.UptimeSeconds) * time.Second
	prune := m.lastPrune
	if prune == "" {
		prune = "-"
	}

	items := []string{
		fmt.Sprintf("Status: %s", status),
		fmt.Sprintf("Uptime: %s", uptime.String()),
		fmt.Sprintf("Queue: %d", m.health.Thumbnails.QueueDepth),
		fmt.Sprintf("Rendered: %d/%d", m.health.Thumbnails.Rendered, m.health.Thumbnails.Requested),
		fmt.Sprintf("Pruned: %s", prune),
	}

	cell := lipgloss.NewStyle().Width((m.width - 4) / len(items))
	cols := make([]string, 0, len(items))
	for _, item := range items {
		cols = append(cols, cell.Render(item))
	}
	return borderStyle.Width(m.width - 4).Render(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
}

func (m *Model) renderEvents() string {
	var lines []string
	for i, e := range m.eventLog {
		if i >= 10 {
			break
		}
		ts := e.At.Local().Format("15:04:05")
		lines = append(lines, fmt.Sprintf("%s | %-18s | %s", ts, e.Type, string(e.Data)))
	}
	if len(lines) == 0 {
		return "  No events yet..."
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

// --- Commands ---

func (m *Model) subscribeToEvents() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Get(m.apiURL + "/events")
		if err != nil {
			return errMsg{err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg{fmt.Errorf("GET /events: %s", resp.Status)}
		}

		if err := ReadStream(resp.Body, func(ev events.Event) { m.hubEvents <- ev }); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m *Model) receiveNextEvent() tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-m.hubEvents)
	}
}

func (m *Model) pollHealth() tea.Cmd {
	return func() tea.Msg {
		return m.fetchHealth()
	}
}

func (m *Model) scheduleHealth() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return m.fetchHealth()
	})
}

func (m *Model) fetchHealth() tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(m.apiURL + "/healthz")
	if err != nil {
		return errMsg{err}
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg{err}
	}
	return h
}
