package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dd0wney/netharness/pkg/workflow"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FFFF")).
			Width(10)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(0, 1).
			MarginLeft(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

const (
	maxBarWidth = 60
	recentRows  = 5
)

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "stop the sweep"),
	),
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{{k.Quit}} }

type (
	tickMsg     time.Time
	progressMsg workflow.Progress
	finishedMsg struct{ err error }
)

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// progressModel renders a running sweep.
type progressModel struct {
	name      string
	variables []string
	points    int

	current  workflow.Progress
	finished int
	recent   []workflow.Row

	overall progress.Model
	point   progress.Model
	help    help.Model

	started  time.Time
	now      time.Time
	cancel   context.CancelFunc
	stopping bool
	done     bool
	err      error
}

func newProgressModel(p *workflow.Protocol, cancel context.CancelFunc) progressModel {
	now := time.Now()
	return progressModel{
		name:      p.Name,
		variables: p.VariableIDs(),
		points:    p.Points(),
		overall:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
		point:     progress.New(progress.WithSolidFill("#00FFFF"), progress.WithWidth(maxBarWidth)),
		help:      help.New(),
		started:   now,
		now:       now,
		cancel:    cancel,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tickCmd()
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w := min(msg.Width-4, maxBarWidth)
		m.overall.Width = w
		m.point.Width = w
		m.help.Width = msg.Width

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) && !m.stopping {
			// the executor lets replicates in flight finish, then returns
			m.stopping = true
			if m.cancel != nil {
				m.cancel()
			}
		}

	case progressMsg:
		m.current = workflow.Progress(msg)
		if msg.Row != nil {
			m.finished++
			m.recent = append(m.recent, *msg.Row)
			if len(m.recent) > recentRows {
				m.recent = m.recent[len(m.recent)-recentRows:]
			}
		}

	case finishedMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()
	}
	return m, nil
}

// overallFraction counts finished points plus the share of the current one.
func (m progressModel) overallFraction() float64 {
	if m.points == 0 {
		return 0
	}
	done := float64(m.finished)
	if m.current.Row == nil && m.current.Replicates > 0 {
		done += float64(m.current.Done) / float64(m.current.Replicates)
	}
	return min(done/float64(m.points), 1)
}

func (m progressModel) pointFraction() float64 {
	if m.current.Row != nil {
		return 1
	}
	if m.current.Replicates == 0 {
		return 0
	}
	return float64(m.current.Done) / float64(m.current.Replicates)
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("harness: "+m.name) + "\n\n")

	label := m.current.Variables
	if label == "" {
		label = "-"
	}
	rows := []string{
		labelStyle.Render("sweep") + m.overall.ViewAs(m.overallFraction()) +
			fmt.Sprintf("  %d/%d points", m.finished, m.points),
		labelStyle.Render("point") + m.point.ViewAs(m.pointFraction()) +
			fmt.Sprintf("  %d/%d replicates", m.current.Done, m.current.Replicates),
		labelStyle.Render("at") + label,
		labelStyle.Render("slots") + fmt.Sprintf("%d busy", m.current.InUse),
		labelStyle.Render("elapsed") + m.now.Sub(m.started).Round(time.Second).String(),
	}
	b.WriteString(boxStyle.Render(strings.Join(rows, "\n")) + "\n")

	if len(m.recent) > 0 {
		b.WriteString(boxStyle.Render(m.recentTable()) + "\n")
	}

	switch {
	case m.done && m.err != nil:
		b.WriteString("  " + errorStyle.Render("failed: "+m.err.Error()) + "\n")
	case m.done:
		b.WriteString("  " + successStyle.Render("sweep complete") + "\n")
	case m.stopping:
		b.WriteString("  " + errorStyle.Render("stopping, waiting for replicates in flight...") + "\n")
	default:
		b.WriteString(helpStyle.Render(m.help.View(keys)) + "\n")
	}
	return b.String()
}

func (m progressModel) recentTable() string {
	var b strings.Builder
	for _, id := range m.variables {
		fmt.Fprintf(&b, "%-10s", id)
	}
	b.WriteString("real loss   not real    rate loss\n")
	for i, row := range m.recent {
		for _, v := range row.Values {
			fmt.Fprintf(&b, "%-10s", workflow.FormatValue(v))
		}
		fmt.Fprintf(&b, "%-11.6f %-11.6f %.6f", row.RealLoss, row.NotRealLoss, row.RateLoss)
		if row.Restored {
			b.WriteString("  (restored)")
		}
		if i < len(m.recent)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// progressView runs the progress model while the executor works.
type progressView struct {
	program *tea.Program
	done    chan struct{}
}

func newProgressView(p *workflow.Protocol, cancel context.CancelFunc, w io.Writer) *progressView {
	return &progressView{
		program: tea.NewProgram(newProgressModel(p, cancel), tea.WithOutput(w)),
		done:    make(chan struct{}),
	}
}

// Start runs the view in the background.
func (v *progressView) Start() {
	go func() {
		defer close(v.done)
		if _, err := v.program.Run(); err != nil {
			fmt.Fprintln(os.Stderr, "progress view:", err)
		}
	}()
}

// Report forwards executor progress to the view.
func (v *progressView) Report(pr workflow.Progress) {
	if pr.Row != nil {
		row := *pr.Row
		pr.Row = &row
	}
	v.program.Send(progressMsg(pr))
}

// Finish shows the outcome and waits for the view to exit.
func (v *progressView) Finish(err error) {
	v.program.Send(finishedMsg{err: err})
	<-v.done
}
