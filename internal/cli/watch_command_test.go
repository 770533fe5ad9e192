package cli

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"media-ingest/internal/model"
)

func TestWatchModelQuitsOnTerminalStatus(t *testing.T) {
	m := watchModel{jobID: "job-1"}

	rec := model.Record{ID: "job-1", Status: model.StatusCompleted, Percent: 100}
	next, cmd := m.Update(watchStatusMsg{rec: rec})
	nm := next.(watchModel)
	if !nm.fetchOK || nm.rec.Status != model.StatusCompleted {
		t.Fatalf("model = %+v", nm)
	}
	if cmd == nil {
		t.Fatal("expected a quit command on terminal status")
	}
	if msg := cmd(); msg != tea.Quit() {
		t.Fatalf("cmd() = %v, want tea.QuitMsg", msg)
	}
}

func TestWatchModelKeepsPollingWhileRunning(t *testing.T) {
	m := watchModel{jobID: "job-1", interval: 1}

	rec := model.Record{ID: "job-1", Status: model.StatusProcessing, Percent: 30}
	next, cmd := m.Update(watchStatusMsg{rec: rec})
	nm := next.(watchModel)
	if nm.rec.Percent != 30 {
		t.Fatalf("percent = %d", nm.rec.Percent)
	}
	if cmd == nil {
		t.Fatal("expected a tick command while the job runs")
	}
}

func TestWatchModelSurfacesFetchError(t *testing.T) {
	m := watchModel{jobID: "job-1"}
	next, cmd := m.Update(watchStatusMsg{err: errors.New("connection refused")})
	nm := next.(watchModel)
	if nm.err == nil {
		t.Fatal("error not recorded")
	}
	if cmd == nil {
		t.Fatal("expected quit after a fetch error")
	}
}

func TestWatchModelQuitKeys(t *testing.T) {
	m := watchModel{jobID: "job-1"}
	for _, key := range []string{"q", "esc", "ctrl+c"} {
		_, cmd := m.Update(keyMsg(key))
		if cmd == nil {
			t.Fatalf("key %q should quit", key)
		}
	}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}
