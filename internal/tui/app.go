package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dream-ai/paperqa/internal/domain"
	"github.com/dream-ai/paperqa/internal/rag"
)

// Session is the part of rag.Session the shell drives.
type Session interface {
	Ingest(ctx context.Context, name string, raw []byte) (*rag.VectorIndex, error)
	Ask(ctx context.Context, text string) (domain.Answer, error)
	State() rag.State
}

// StateMsg reports a session state change. Send it to the program from the
// session's OnStateChange hook.
type StateMsg struct {
	State   rag.State
	Version uint64
}

type ingestDoneMsg struct {
	name string
	err  error
}

type answerMsg struct {
	answer domain.Answer
	err    error
}

// Model is the Bubble Tea model for the paper shell.
type Model struct {
	session Session
	query   string
	timeout time.Duration

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	state   rag.State
	docName string
	answer  string
	errKind string
	errText string
	status  string
	busy    bool
	ready   bool
	initial string
}

// New creates the shell. query is sent on Generate; initialPath, if set, is
// loaded on start.
func New(session Session, query, initialPath string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "PDF> "
	ti.Placeholder = "path/to/paper.pdf, Enter to load"
	ti.CharLimit = 0
	ti.Focus()
	ti.SetValue(initialPath)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = busyStyle

	m := Model{
		session:  session,
		query:    query,
		timeout:  timeout,
		input:    ti,
		spinner:  sp,
		viewport: viewport.New(80, 10),
		state:    session.State(),
		status:   "Load a PDF to begin.",
		initial:  initialPath,
	}
	if initialPath != "" {
		m.busy = true
		m.status = "Loading " + filepath.Base(initialPath)
	}
	return m
}

// Init starts the cursor and loads the initial document, if any.
func (m Model) Init() tea.Cmd {
	if m.initial == "" {
		return textinput.Blink
	}
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.ingest(m.initial))
}

// Update handles key, window and session events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := answerBoxStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-fh-8)
		m.viewport.SetContent(m.answer)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			path := strings.TrimSpace(m.input.Value())
			// a new upload is accepted at any time and supersedes the current one
			if path == "" {
				return m, nil
			}
			m.busy = true
			m.answer, m.errKind, m.errText = "", "", ""
			m.viewport.SetContent("")
			m.status = "Loading " + filepath.Base(path)
			return m, tea.Batch(m.spinner.Tick, m.ingest(path))
		case tea.KeyCtrlG:
			if m.busy {
				return m, nil
			}
			if m.state != rag.StateReady {
				m.status = fmt.Sprintf("Generate is available once the document is Ready (now %s).", m.state)
				return m, nil
			}
			m.busy = true
			m.errKind, m.errText = "", ""
			m.status = "Generating answer"
			return m, tea.Batch(m.spinner.Tick, m.ask())
		case tea.KeyPgDown, tea.KeyPgUp:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case StateMsg:
		m.state = msg.State
		return m, nil

	case ingestDoneMsg:
		if rag.IsStale(msg.err) {
			// a newer upload owns the session now
			return m, nil
		}
		m.busy = false
		m.state = m.session.State()
		if msg.err != nil {
			m.setError(msg.err)
			m.status = "Could not load " + msg.name
			return m, nil
		}
		m.docName = msg.name
		m.status = msg.name + " is ready. Press Ctrl+G to generate."
		return m, nil

	case answerMsg:
		if rag.IsStale(msg.err) {
			return m, nil
		}
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
			m.status = "Generation failed"
			return m, nil
		}
		m.answer = msg.answer.Text
		m.viewport.SetContent(m.answer)
		m.viewport.GotoTop()
		m.status = fmt.Sprintf("Answer from %s using %d excerpts", msg.answer.Model, len(msg.answer.Sources.Chunks))
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) setError(err error) {
	m.errKind = domain.Kind(err)
	m.errText = err.Error()
}

func (m Model) ingest(path string) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		name := filepath.Base(path)
		raw, err := os.ReadFile(path)
		if err != nil {
			return ingestDoneMsg{name: name, err: fmt.Errorf("failed to read file: %w", err)}
		}
		_, err = session.Ingest(context.Background(), name, raw)
		return ingestDoneMsg{name: name, err: err}
	}
}

func (m Model) ask() tea.Cmd {
	session, query, timeout := m.session, m.query, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		answer, err := session.Ask(ctx, query)
		return answerMsg{answer: answer, err: err}
	}
}
