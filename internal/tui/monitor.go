// Package tui provides the terminal run monitor for railmind.
//
// The monitor is read-only: it shows the plan's tasks with their live
// status, a short activity log and a final status banner. Users can only
// quit with 'q' or Ctrl+C.
//
// Usage:
//
//	program, app := tui.NewMonitorProgram(request)
//	go tui.Forward(program, orch.Events())
//	go func() { program.Send(tui.RunDoneMsg{Response: orch.Run(ctx, request, nil, 0)}) }()
//	program.Run()
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/pkg/models"
)

// maxLogLines is how many activity entries stay on screen.
const maxLogLines = 8

// EventMsg carries one orchestrator event into the program.
type EventMsg struct {
	Event orchestrator.OrchestratorEvent
}

// RunDoneMsg is sent when the run has produced its response.
type RunDoneMsg struct {
	Response *models.Response
}

// TaskRow is the displayed state of one task.
type TaskRow struct {
	ID       string
	Agent    string
	Status   string
	Detail   string
	Duration time.Duration
}

type logEntry struct {
	at      time.Time
	kind    string
	message string
}

// MonitorApp is the bubbletea model for a single run.
type MonitorApp struct {
	request   string
	runID     string
	iteration int
	order     []string
	tasks     map[string]*TaskRow
	logs      []logEntry
	response  *models.Response
	quitting  bool
	spinner   spinner.Model

	width  int
	height int

	// Styles
	headerStyle  lipgloss.Style
	labelStyle   lipgloss.Style
	logStyle     lipgloss.Style
	logTimeStyle lipgloss.Style
	doneStyle    lipgloss.Style
	warnStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	mutedStyle   lipgloss.Style
}

// NewMonitorApp creates a MonitorApp for request.
func NewMonitorApp(request string) *MonitorApp {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &MonitorApp{
		request: request,
		tasks:   make(map[string]*TaskRow),
		spinner: s,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12),

		logStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),

		logTimeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true),

		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		mutedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model.
func (a *MonitorApp) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *MonitorApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = a.response == nil
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case spinner.TickMsg:
		if a.response != nil {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.apply(msg.Event)

	case RunDoneMsg:
		a.finish(msg.Response)
	}
	return a, nil
}

func (a *MonitorApp) apply(ev orchestrator.OrchestratorEvent) {
	if ev.RunID != "" {
		a.runID = ev.RunID
	}
	if ev.Iteration > a.iteration {
		a.iteration = ev.Iteration
	}

	switch ev.Type {
	case orchestrator.EventPlanCreated, orchestrator.EventPlanFallback, orchestrator.EventReplanned:
		for _, id := range ev.TaskIDs {
			row := a.row(id)
			if row.Status != string(models.TaskStatusSuccess) {
				row.Status = string(models.TaskStatusPending)
				row.Detail = ""
			}
		}
	case orchestrator.EventTaskStarted:
		row := a.row(ev.TaskID)
		row.Agent = ev.Agent
		row.Status = string(models.TaskStatusRunning)
	case orchestrator.EventTaskCompleted, orchestrator.EventTaskFailed:
		row := a.row(ev.TaskID)
		if ev.Agent != "" {
			row.Agent = ev.Agent
		}
		row.Status = ev.Status
		row.Duration = ev.Duration
		if ev.Error != nil {
			row.Detail = ev.Error.Error()
		}
	}

	msg := ev.Message
	if msg == "" {
		msg = strings.Join(ev.TaskIDs, ", ")
		if ev.TaskID != "" {
			msg = ev.TaskID
		}
	}
	a.log(ev.Timestamp, string(ev.Type), msg)
}

func (a *MonitorApp) finish(resp *models.Response) {
	a.response = resp
	if resp == nil {
		return
	}
	a.runID = resp.RunID
	a.iteration = resp.Iteration
	for _, rs := range resp.Results {
		for _, r := range rs {
			row := a.row(r.TaskID)
			row.Agent = r.Agent
			row.Status = string(r.Status)
			row.Detail = r.Error
			row.Duration = r.Duration
		}
	}
	a.log(time.Now(), "run_done", string(resp.Status))
}

func (a *MonitorApp) row(id string) *TaskRow {
	if r, ok := a.tasks[id]; ok {
		return r
	}
	r := &TaskRow{ID: id, Status: string(models.TaskStatusPending)}
	a.tasks[id] = r
	a.order = append(a.order, id)
	return r
}

func (a *MonitorApp) log(at time.Time, kind, message string) {
	if at.IsZero() {
		at = time.Now()
	}
	a.logs = append(a.logs, logEntry{at: at, kind: kind, message: message})
	if len(a.logs) > maxLogLines {
		a.logs = a.logs[len(a.logs)-maxLogLines:]
	}
}

// Rows returns the task rows in first-seen order.
func (a *MonitorApp) Rows() []TaskRow {
	out := make([]TaskRow, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.tasks[id])
	}
	return out
}

// Done reports whether the run has finished.
func (a *MonitorApp) Done() bool {
	return a.response != nil
}

// View implements tea.Model.
func (a *MonitorApp) View() string {
	if a.quitting {
		return "Monitor closed; the run continues until it finishes or is stopped.\n"
	}

	var b strings.Builder
	b.WriteString(a.headerStyle.Render("=== railmind ==="))
	b.WriteString("\n\n")
	b.WriteString(a.labelStyle.Render("Request") + a.request + "\n")
	if a.runID != "" {
		b.WriteString(a.labelStyle.Render("Run") + a.runID + "\n")
	}
	if a.iteration > 0 {
		b.WriteString(a.labelStyle.Render("Iteration") + fmt.Sprint(a.iteration) + "\n")
	}
	b.WriteString("\n")

	for _, row := range a.Rows() {
		b.WriteString(a.renderRow(row))
		b.WriteString("\n")
	}

	if len(a.logs) > 0 {
		b.WriteString("\n")
		for _, e := range a.logs {
			kind := lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Width(16).Render(e.kind)
			fmt.Fprintf(&b, "  %s %s %s\n", a.logTimeStyle.Render(e.at.Format("15:04:05")), kind, a.logStyle.Render(e.message))
		}
	}

	b.WriteString("\n")
	b.WriteString(a.renderBanner())
	b.WriteString("\n")
	return b.String()
}

func (a *MonitorApp) renderRow(row TaskRow) string {
	var icon string
	switch models.TaskStatus(row.Status) {
	case models.TaskStatusRunning:
		icon = a.spinner.View()
	case models.TaskStatusSuccess:
		icon = a.doneStyle.Render("✓")
	case models.TaskStatusFailed:
		icon = a.warnStyle.Render("✗")
	case models.TaskStatusError, models.TaskStatusCancelled:
		icon = a.errorStyle.Render("!")
	default:
		icon = a.mutedStyle.Render("·")
	}

	line := fmt.Sprintf("%s %-8s %-11s %s", icon, row.ID, row.Agent, row.Status)
	if row.Duration > 0 {
		line += a.mutedStyle.Render(" " + row.Duration.Round(time.Millisecond).String())
	}
	if row.Detail != "" {
		line += a.mutedStyle.Render(" - " + row.Detail)
	}
	return line
}

func (a *MonitorApp) renderBanner() string {
	if a.response == nil {
		return a.spinner.View() + a.mutedStyle.Render(" running... press q to close the monitor")
	}
	switch a.response.Status {
	case models.ResponseCompleted:
		return a.doneStyle.Render("Completed. Press q to exit.")
	case models.ResponsePartial:
		return a.warnStyle.Render("Partially completed. Press q to exit.")
	default:
		msg := "Run ended with an error"
		if a.response.Error != "" {
			msg += ": " + a.response.Error
		}
		if len(a.response.Questions) > 0 {
			msg += "\n" + strings.Join(a.response.Questions, "\n")
		}
		return a.errorStyle.Render(msg + ". Press q to exit.")
	}
}

// Sender is the subset of *tea.Program used by Forward.
type Sender interface {
	Send(msg tea.Msg)
}

// Forward relays events into the program until the channel closes.
func Forward(p Sender, events <-chan orchestrator.OrchestratorEvent) {
	if events == nil {
		return
	}
	for ev := range events {
		p.Send(EventMsg{Event: ev})
	}
}

// NewMonitorProgram creates a Bubbletea program for the run monitor.
func NewMonitorProgram(request string) (*tea.Program, *MonitorApp) {
	app := NewMonitorApp(request)
	p := tea.NewProgram(app)
	return p, app
}
