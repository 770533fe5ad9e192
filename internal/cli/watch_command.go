package cli

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"media-ingest/internal/model"
)

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	watchErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	watchOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	watchPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type watchTickMsg struct{}

type watchStatusMsg struct {
	rec model.Record
	err error
}

type watchModel struct {
	addr     string
	jobID    string
	interval time.Duration

	bar     progress.Model
	rec     model.Record
	fetchOK bool
	err     error
	width   int
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	addr := fs.String("addr", defaultServerAddr, "ingestion service address")
	id := fs.String("id", "", "job id")
	interval := fs.Duration("interval", time.Second, "poll interval")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return fmt.Errorf("--id is required")
	}

	m := watchModel{
		addr:     *addr,
		jobID:    *id,
		interval: *interval,
		bar:      progress.New(progress.WithDefaultGradient()),
	}
	p := tea.NewProgram(m)
	final, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(watchModel); ok {
		if fm.err != nil {
			return fm.err
		}
		if fm.fetchOK && fm.rec.Status == model.StatusFailed {
			return fmt.Errorf("job failed: %s", fm.rec.LastError)
		}
	}
	return nil
}

func (m watchModel) Init() tea.Cmd {
	return m.fetchStatus
}

func (m watchModel) fetchStatus() tea.Msg {
	rec, err := fetchJob(m.addr, m.jobID)
	return watchStatusMsg{rec: rec, err: err}
}

func (m watchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return watchTickMsg{}
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 8
		if m.bar.Width > 60 {
			m.bar.Width = 60
		}
	case watchTickMsg:
		return m, m.fetchStatus
	case watchStatusMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.rec = msg.rec
		m.fetchOK = true
		if m.rec.Terminal() {
			return m, tea.Quit
		}
		return m, m.tick()
	}
	return m, nil
}

func (m watchModel) View() string {
	header := watchTitleStyle.Render("media-ingest watch") +
		watchMutedStyle.Render("  "+m.jobID)

	if m.err != nil {
		return header + "\n" + watchErrorStyle.Render("error: "+m.err.Error()) + "\n"
	}
	if !m.fetchOK {
		return header + "\n" + watchMutedStyle.Render("fetching status...") + "\n"
	}

	lines := []string{
		fmt.Sprintf("kind:    %s", m.rec.Kind),
		fmt.Sprintf("status:  %s", renderStatus(m.rec.Status)),
		m.bar.ViewAs(float64(m.rec.Percent) / 100),
	}
	if m.rec.StreamURL != "" {
		lines = append(lines, "stream:  "+m.rec.StreamURL)
	}
	if m.rec.LastError != "" {
		lines = append(lines, watchErrorStyle.Render("error:   "+m.rec.LastError))
	}
	panel := watchPanelStyle.Render(strings.Join(lines, "\n"))
	hint := watchMutedStyle.Render("q to quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, panel, hint) + "\n"
}

func renderStatus(status string) string {
	switch status {
	case model.StatusCompleted:
		return watchOKStyle.Render(status)
	case model.StatusFailed:
		return watchErrorStyle.Render(status)
	}
	return status
}
