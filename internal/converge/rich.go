package converge

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

type eventMsg Event

type closeMsg struct{}

// richModel is the bubbletea model behind the rich display.
type richModel struct {
	bar       progress.Model
	target    float64
	iteration int
	done      int
	total     int
	rate      float64
	lastFile  string
	failed    int
	fixes     []string
	final     string
	interrupt func()
}

func (m richModel) Init() tea.Cmd { return nil }

func (m richModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			if m.interrupt != nil {
				m.interrupt()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-4, 60)
	case closeMsg:
		return m, tea.Quit
	case eventMsg:
		e := Event(msg)
		switch e.Kind {
		case EventStart:
			m.total, m.target = e.Total, e.Target
		case EventFile:
			m.iteration, m.done, m.total = e.Iteration, e.Done, e.Total
			m.lastFile = e.File
			if e.Status != StatusSuccess {
				m.failed++
			}
		case EventIteration:
			m.rate = e.Rate
			m.done, m.failed = 0, 0
		case EventFix:
			m.fixes = append(m.fixes, fmt.Sprintf("%s: %s", e.Fix.ErrorCode, e.Fix.Description))
		case EventDone:
			m.rate = e.Rate
			if e.Reached {
				m.final = okStyle.Render(fmt.Sprintf("target reached: %.1f%%", e.Rate))
			} else {
				m.final = failStyle.Render(fmt.Sprintf("target missed: %.1f%% < %.1f%%", e.Rate, m.target))
			}
		}
	}
	return m, nil
}

func (m richModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("pyrite converge  iteration %d", m.iteration)))
	b.WriteString("\n")
	frac := 0.0
	if m.total > 0 {
		frac = float64(m.done) / float64(m.total)
	}
	b.WriteString(m.bar.ViewAs(frac))
	fmt.Fprintf(&b, "  %d/%d\n", m.done, m.total)
	fmt.Fprintf(&b, "rate %.1f%% (target %.1f%%)", m.rate, m.target)
	if m.failed > 0 {
		b.WriteString("  " + failStyle.Render(fmt.Sprintf("%d failing", m.failed)))
	}
	b.WriteString("\n")
	if m.lastFile != "" {
		b.WriteString(dimStyle.Render(m.lastFile) + "\n")
	}
	for _, f := range m.fixes {
		b.WriteString("  fix " + f + "\n")
	}
	if m.final != "" {
		b.WriteString(m.final + "\n")
	}
	return b.String()
}

type richDisplay struct {
	p    *tea.Program
	done chan error
}

func newRichDisplay(out *os.File, interrupt func()) *richDisplay {
	m := richModel{bar: progress.New(progress.WithDefaultGradient()), interrupt: interrupt}
	d := &richDisplay{done: make(chan error, 1)}
	d.p = tea.NewProgram(m, tea.WithOutput(out))
	go func() {
		_, err := d.p.Run()
		d.done <- err
	}()
	return d
}

func (d *richDisplay) Handle(e Event) { d.p.Send(eventMsg(e)) }

func (d *richDisplay) Close() error {
	d.p.Send(closeMsg{})
	return <-d.done
}
