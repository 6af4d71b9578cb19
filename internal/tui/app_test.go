package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dream-ai/paperqa/internal/domain"
	"github.com/dream-ai/paperqa/internal/rag"
)

type fakeSession struct {
	state     rag.State
	ingestErr error
	answer    domain.Answer
	askErr    error
	ingested  []string
	asked     []string
}

func (f *fakeSession) Ingest(_ context.Context, name string, _ []byte) (*rag.VectorIndex, error) {
	f.ingested = append(f.ingested, name)
	if f.ingestErr != nil {
		f.state = rag.StateFailed
		return nil, f.ingestErr
	}
	f.state = rag.StateReady
	return nil, nil
}

func (f *fakeSession) Ask(_ context.Context, text string) (domain.Answer, error) {
	f.asked = append(f.asked, text)
	return f.answer, f.askErr
}

func (f *fakeSession) State() rag.State { return f.state }

func press(m Model, key tea.KeyType) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: key})
	return next.(Model), cmd
}

func run(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func writePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))
	return path
}

func TestModel_GenerateGatedOnReady(t *testing.T) {
	session := &fakeSession{state: rag.StateEmpty}
	m := New(session, rag.DefaultQuery, "", 0)

	m, cmd := press(m, tea.KeyCtrlG)
	assert.Nil(t, cmd)
	assert.False(t, m.busy)
	assert.Contains(t, m.status, "Ready")
	assert.Empty(t, session.asked)
}

func TestModel_LoadThenGenerate(t *testing.T) {
	session := &fakeSession{
		state:  rag.StateEmpty,
		answer: domain.Answer{Text: "Title: Foo", Model: "stub"},
	}
	m := New(session, rag.DefaultQuery, "", 0)
	m.input.SetValue(writePDF(t))

	m, cmd := press(m, tea.KeyEnter)
	require.NotNil(t, cmd)
	assert.True(t, m.busy)

	// Run the ingest command directly rather than through the batch.
	m = run(m, m.ingest(m.input.Value())())
	assert.False(t, m.busy)
	assert.Equal(t, rag.StateReady, m.state)
	assert.Equal(t, "paper.pdf", m.docName)
	assert.Equal(t, []string{"paper.pdf"}, session.ingested)

	m, cmd = press(m, tea.KeyCtrlG)
	require.NotNil(t, cmd)
	m = run(m, m.ask()())

	assert.Equal(t, []string{rag.DefaultQuery}, session.asked)
	assert.Equal(t, "Title: Foo", m.answer)
	assert.Contains(t, m.View(), "Title: Foo")
}

func TestModel_RendersErrorKind(t *testing.T) {
	session := &fakeSession{ingestErr: fmt.Errorf("missing PDF header: %w", domain.ErrExtraction)}
	m := New(session, rag.DefaultQuery, "", 0)

	m = run(m, m.ingest(writePDF(t))())
	assert.Equal(t, rag.StateFailed, m.state)
	assert.Equal(t, "ExtractionError", m.errKind)
	assert.Contains(t, m.View(), "ExtractionError")
	assert.Contains(t, m.View(), "Failed")

	_, cmd := press(m, tea.KeyCtrlG)
	assert.Nil(t, cmd, "generate stays disabled after a failure")
}

func TestModel_MissingFile(t *testing.T) {
	session := &fakeSession{}
	m := New(session, rag.DefaultQuery, "", 0)

	m = run(m, m.ingest(filepath.Join(t.TempDir(), "missing.pdf"))())
	assert.Equal(t, "Error", m.errKind)
	assert.Empty(t, session.ingested)
}

func TestModel_StaleIngestIgnored(t *testing.T) {
	session := &fakeSession{state: rag.StateIndexing}
	m := New(session, rag.DefaultQuery, "", 0)
	m.busy = true

	m = run(m, ingestDoneMsg{name: "old.pdf", err: fmt.Errorf("upload 1 was superseded: %w", domain.ErrStale)})
	assert.True(t, m.busy)
	assert.Empty(t, m.errKind)
}

func TestModel_StateMsg(t *testing.T) {
	m := New(&fakeSession{}, rag.DefaultQuery, "", 0)
	m = run(m, StateMsg{State: rag.StateIndexing, Version: 3})
	assert.Equal(t, rag.StateIndexing, m.state)
	assert.Contains(t, m.View(), "Indexing")
}

func TestModel_GenerationError(t *testing.T) {
	session := &fakeSession{state: rag.StateReady, askErr: fmt.Errorf("bad key: %w", domain.ErrAuth)}
	m := New(session, rag.DefaultQuery, "", 0)

	m, cmd := press(m, tea.KeyCtrlG)
	require.NotNil(t, cmd)
	m = run(m, m.ask()())
	assert.Equal(t, "AuthError", m.errKind)
	assert.False(t, m.busy)
}

func TestModel_ReuploadWhileBusy(t *testing.T) {
	session := &fakeSession{state: rag.StateIndexing}
	m := New(session, rag.DefaultQuery, "first.pdf", 0)
	require.True(t, m.busy)

	m.input.SetValue(writePDF(t))
	m, cmd := press(m, tea.KeyEnter)
	require.NotNil(t, cmd, "a new upload supersedes the one in flight")

	m = run(m, ingestDoneMsg{name: "first.pdf", err: fmt.Errorf("upload 1 was superseded: %w", domain.ErrStale)})
	assert.True(t, m.busy)

	m = run(m, m.ingest(m.input.Value())())
	assert.False(t, m.busy)
	assert.Equal(t, rag.StateReady, m.state)
	assert.Equal(t, "paper.pdf", m.docName)
}

func TestModel_StaleAnswerIgnored(t *testing.T) {
	m := New(&fakeSession{state: rag.StateIndexing}, rag.DefaultQuery, "", 0)
	m.busy = true

	m = run(m, answerMsg{err: fmt.Errorf("upload 1 was superseded: %w", domain.ErrStale)})
	assert.True(t, m.busy)
	assert.Empty(t, m.errKind)
}
