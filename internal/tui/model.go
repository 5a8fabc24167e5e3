package tui

import (
	"context"
	"errors"
	"time"

	"qbank/internal/question"
	"qbank/internal/review"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Options configures the review UI.
type Options struct {
	PoolID        int64
	Report        question.Report
	NoColor       bool
	CommitTimeout time.Duration
}

// Outcome is what the reviewer ended up doing.
type Outcome struct {
	Committed int
	Cancelled bool
	Err       error
}

// Model is a Bubble Tea model over a loaded review session.
type Model struct {
	session   *review.Session
	committer review.Committer
	opts      Options
	keys      keyMap
	help      help.Model

	width   int
	saving  bool
	status  string
	outcome Outcome
}

func NewModel(session *review.Session, committer review.Committer, opts Options) Model {
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = time.Minute
	}
	return Model{
		session:   session,
		committer: committer,
		opts:      opts,
		keys:      defaultKeys(),
		help:      help.New(),
	}
}

// Outcome reports the result once the program has exited.
func (m Model) Outcome() Outcome {
	return m.outcome
}

type commitDoneMsg struct {
	n   int
	err error
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.help.Width = typed.Width
		return m, nil
	case commitDoneMsg:
		m.saving = false
		if typed.err != nil {
			m.status = typed.err.Error()
			if errors.Is(typed.err, review.ErrCommitFailed) {
				m.status = "save failed, approvals kept: " + typed.err.Error()
			}
			return m, nil
		}
		m.outcome = Outcome{Committed: typed.n}
		return m, tea.Quit
	case tea.KeyMsg:
		return m.handleKey(typed)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.saving {
		return m, nil
	}
	snap := m.session.Snapshot()
	switch {
	case key.Matches(msg, m.keys.Up):
		m.session.SetCursor(snap.Cursor - 1)
	case key.Matches(msg, m.keys.Down):
		m.session.SetCursor(snap.Cursor + 1)
	case key.Matches(msg, m.keys.Toggle):
		if len(snap.Candidates) == 0 {
			return m, nil
		}
		approved, err := m.session.ToggleApproval(snap.Candidates[snap.Cursor].ID)
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		if approved {
			m.session.SetCursor(snap.Cursor + 1)
		}
		m.status = ""
	case key.Matches(msg, m.keys.Commit):
		if snap.ApprovedCount == 0 {
			m.status = review.ErrNoApprovedItems.Error()
			return m, nil
		}
		m.saving = true
		m.status = "saving..."
		return m, m.commitCmd()
	case key.Matches(msg, m.keys.Cancel):
		if err := m.session.Cancel(); err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.outcome = Outcome{Cancelled: true}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) commitCmd() tea.Cmd {
	session, committer, poolID, timeout := m.session, m.committer, m.opts.PoolID, m.opts.CommitTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		n, err := session.Commit(ctx, committer, poolID)
		return commitDoneMsg{n: n, err: err}
	}
}

func (m Model) View() string {
	snap := m.session.Snapshot()
	parts := []string{
		renderHeader(m.opts.Report, snap, m.opts.PoolID, m.opts.NoColor),
		renderWarnings(m.opts.Report, m.opts.NoColor),
		renderList(snap, m.opts.NoColor),
		renderDetail(snap, m.opts.NoColor),
		renderStatus(m.status, m.opts.NoColor),
		m.help.View(m.keys),
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
