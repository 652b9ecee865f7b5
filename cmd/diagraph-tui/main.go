// Command diagraph-tui is a live dashboard of the daemon's current
// investigation: graph counts, ranked causes and the fix plan.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
)

const (
	defaultDaemonURL = "http://localhost:8090"
	defaultPollRate  = 2 * time.Second
	maxCauses        = 10
	viewportHeight   = 14
)

var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(100)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(100)

	rankStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(4)
	entityStyle = lipgloss.NewStyle().Width(44)
	scoreStyle  = lipgloss.NewStyle().Width(10).Align(lipgloss.Right)

	primaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).Width(10)
	secondaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Width(10)
	symptomStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Width(10)
)

// API types (mirrored from pkg/api to avoid pulling the store's CGO deps)

type runInfo struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Summary   graph.Summary `json:"summary"`
}

type rootCauses struct {
	Causes []engine.RankedCause `json:"causes"`
}

type fixPlan struct {
	Plan engine.Plan `json:"plan"`
}

type tickMsg time.Time

type dataMsg struct {
	run    runInfo
	causes []engine.RankedCause
	plan   engine.Plan
	err    error
}

type model struct {
	api      string
	pollRate time.Duration
	http     *http.Client

	spinner  spinner.Model
	viewport viewport.Model
	run      runInfo
	causes   []engine.RankedCause
	plan     engine.Plan
	err      error
	ready    bool
}

func initialModel(api string, pollRate time.Duration) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		api:      strings.TrimRight(api, "/"),
		pollRate: pollRate,
		http:     &http.Client{Timeout: time.Second},
		spinner:  s,
		viewport: newViewport(100),
	}
}

func newViewport(width int) viewport.Model {
	vp := viewport.New(width, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return vp
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.fetchData(),
		m.tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetchData()
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, m.fetchData(), m.tick())

	case dataMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.run = msg.run
			m.causes = msg.causes
			m.plan = msg.plan
			m.viewport.SetContent(planContent(m.plan))
		}
		m.ready = true

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Connecting to %s...", m.spinner.View(), m.api)
	}

	s := m.run.Summary
	var top strings.Builder
	top.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Investigation") + "\n\n")
	fmt.Fprintf(&top, "run %s • phase %s\n", m.run.RunID, s.Phase)
	fmt.Fprintf(&top, "%d entities • %d relationships • %d issues • %d incidents • %d incomplete",
		s.NodeCount, s.EdgeCount, s.IssueCount, s.IncidentCount, s.IncompleteCount)

	var causes strings.Builder
	causes.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Root Causes") + "\n\n")
	if len(m.causes) == 0 {
		causes.WriteString(subtleStyle.Render("No issues recorded."))
	}
	for _, c := range m.causes {
		causes.WriteString(causeLine(c) + "\n")
	}

	header := headerStyle.Render(fmt.Sprintf("%s Fix Plan", m.spinner.View()))

	var status string
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	} else {
		status = okStyle.Render(fmt.Sprintf("Online • %d causes • %d steps", len(m.causes), len(m.plan.Steps)))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nPress r to refresh, q to quit", status))

	return lipgloss.JoinVertical(lipgloss.Left,
		paneStyle.Render(top.String()),
		paneStyle.Render(strings.TrimRight(causes.String(), "\n")),
		header,
		m.viewport.View(),
		footer,
	)
}

func causeLine(c engine.RankedCause) string {
	var tier string
	switch c.Tier {
	case engine.TierPrimary:
		tier = primaryStyle.Render(string(c.Tier))
	case engine.TierSecondary:
		tier = secondaryStyle.Render(string(c.Tier))
	default:
		tier = symptomStyle.Render(string(c.Tier))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		rankStyle.Render(fmt.Sprintf("%d.", c.Rank)),
		entityStyle.Render(string(c.EntityID)),
		tier,
		scoreStyle.Render(fmt.Sprintf("%.2f", c.Score)),
		"  "+string(c.MaxSeverity),
	)
}

func planContent(plan engine.Plan) string {
	if len(plan.Steps) == 0 {
		return subtleStyle.Render("No remediation needed.")
	}
	var sb strings.Builder
	for _, s := range plan.Steps {
		fmt.Fprintf(&sb, "%d. %s\n", s.Step, s.Description)
		sb.WriteString(subtleStyle.Render(fmt.Sprintf("   %s • %s • %s", s.TargetEntity, s.Tier, s.Rationale)) + "\n")
	}
	for _, s := range plan.Superseded {
		sb.WriteString(subtleStyle.Render(fmt.Sprintf("   superseded by %d: %s", s.SupersededBy, s.Description)) + "\n")
	}
	return sb.String()
}

// Commands

func (m model) fetchData() tea.Cmd {
	return func() tea.Msg {
		var msg dataMsg
		if err := m.getJSON("/v1/runs/current", nil, &msg.run); err != nil {
			return dataMsg{err: err}
		}
		var rc rootCauses
		if err := m.getJSON("/v1/rootcauses", url.Values{"limit": {fmt.Sprint(maxCauses)}}, &rc); err != nil {
			return dataMsg{err: err}
		}
		var fp fixPlan
		if err := m.getJSON("/v1/fixplan", nil, &fp); err != nil {
			return dataMsg{err: err}
		}
		msg.causes = rc.Causes
		msg.plan = fp.Plan
		return msg
	}
}

func (m model) getJSON(path string, q url.Values, out any) error {
	u := m.api + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	resp, err := m.http.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func main() {
	api := flag.String("api", envOr("DIAGRAPH_API", defaultDaemonURL), "diagraph-d base URL")
	poll := flag.Duration("interval", defaultPollRate, "poll interval")
	flag.Parse()

	p := tea.NewProgram(initialModel(*api, *poll), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
