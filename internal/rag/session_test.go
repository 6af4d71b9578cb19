package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dream-ai/paperqa/internal/documents"
	"github.com/dream-ai/paperqa/internal/documents/documentstest"
	"github.com/dream-ai/paperqa/internal/domain"
)

const paperText = "Title: Foo. Authors: A, B. Date: 2024-01-01. Summary: a study of foo."

type stateLog struct {
	mu       sync.Mutex
	states   []State
	versions []uint64
}

func (l *stateLog) record(s State, version uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
	l.versions = append(l.versions, version)
}

func (l *stateLog) last() (State, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.states) - 1
	return l.states[n], l.versions[n]
}

func (l *stateLog) all() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func newTestSession(emb domain.Embedder, gen domain.Generator, mutate ...func(*Options)) *Session {
	opts := DefaultOptions()
	opts.ChunkSize = 500
	opts.ChunkOverlap = 50
	for _, m := range mutate {
		m(&opts)
	}
	return NewSession(documents.NewPDFExtractor(), emb, gen, opts)
}

func TestSession_EndToEnd(t *testing.T) {
	emb := newConstantEmbedder()
	gen := &fixedGenerator{response: "Foo, by A and B, 2024-01-01."}
	states := &stateLog{}
	journal := &memoryJournal{}
	s := newTestSession(emb, gen, func(o *Options) {
		o.OnStateChange = states.record
		o.Journal = journal
	})
	assert.Equal(t, StateEmpty, s.State())

	idx, err := s.Ingest(context.Background(), "foo.pdf", documentstest.PDF(paperText))
	require.NoError(t, err)
	require.Equal(t, 1, idx.Len(), "a short page fits in one chunk")
	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, []State{StateEmpty, StateExtracting, StateChunking, StateIndexing, StateReady}, states.all())

	answer, err := s.Query(context.Background(), idx, "Give me the title, summary, publication date, and authors")
	require.NoError(t, err)
	assert.Equal(t, "Foo, by A and B, 2024-01-01.", answer.Text)
	require.Len(t, answer.Sources.Chunks, 1)
	assert.Contains(t, answer.Sources.Chunks[0].Chunk.Text, paperText)
	assert.Contains(t, gen.prompts[0], paperText)

	recs := journal.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "Ready", recs[0].State)
	assert.Equal(t, "foo.pdf", recs[0].Name)
	assert.Equal(t, 1, recs[0].Pages)
	assert.Equal(t, 1, recs[0].Chunks)
	assert.Equal(t, "const-embed", recs[0].EmbeddingModel)
	assert.Equal(t, s.Document().Hash, recs[0].Hash)
}

func TestSession_AskUsesDefaultQuery(t *testing.T) {
	gen := &fixedGenerator{response: "ok"}
	s := newTestSession(newConstantEmbedder(), gen)
	_, err := s.Ingest(context.Background(), "foo.pdf", documentstest.PDF(paperText))
	require.NoError(t, err)

	answer, err := s.Ask(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultQuery, answer.Sources.Query)
	assert.True(t, strings.HasSuffix(gen.prompts[0], DefaultQuery))
}

func TestSession_CorruptedUpload(t *testing.T) {
	emb := newConstantEmbedder()
	gen := &fixedGenerator{response: "never"}
	core, logs := observer.New(zapcore.DebugLevel)
	journal := &memoryJournal{}
	s := newTestSession(emb, gen, func(o *Options) {
		o.Logger = zap.New(core)
		o.Journal = journal
	})

	idx, err := s.Ingest(context.Background(), "broken.pdf", []byte("%PDF-1.4 garbage that is not a document"))
	require.ErrorIs(t, err, domain.ErrExtraction)
	assert.Nil(t, idx)
	assert.Equal(t, StateFailed, s.State())
	assert.ErrorIs(t, s.Err(), domain.ErrExtraction)

	_, err = s.Ask(context.Background(), "title?")
	require.ErrorIs(t, err, domain.ErrNotReady)
	assert.Zero(t, emb.calls.Load())
	assert.Zero(t, gen.calls())

	failed := logs.FilterMessage("ingestion failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "ExtractionError", failed[0].ContextMap()["kind"])

	recs := journal.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "Failed", recs[0].State)
	assert.Equal(t, "ExtractionError", recs[0].ErrorKind)
}

func TestSession_QueryBeforeUpload(t *testing.T) {
	emb := newConstantEmbedder()
	s := newTestSession(emb, &fixedGenerator{response: "x"})

	_, err := s.Ask(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrNotReady)
	assert.Equal(t, "NotReadyError", domain.Kind(err))
	assert.Zero(t, emb.calls.Load())
}

func TestSession_InvalidChunking(t *testing.T) {
	emb := newConstantEmbedder()
	s := newTestSession(emb, &fixedGenerator{}, func(o *Options) { o.ChunkOverlap = o.ChunkSize })

	_, err := s.Ingest(context.Background(), "foo.pdf", documentstest.PDF(paperText))
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Equal(t, StateFailed, s.State())
	assert.Zero(t, emb.calls.Load())
}

func TestSession_IndexingFailure(t *testing.T) {
	emb := &funcEmbedder{model: "m", fn: func(context.Context, []string) ([][]float32, error) {
		return nil, &domain.StatusError{StatusCode: 401, Body: "invalid api key"}
	}}
	s := newTestSession(emb, &fixedGenerator{})

	_, err := s.Ingest(context.Background(), "foo.pdf", documentstest.PDF(paperText))
	require.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, StateFailed, s.State())
	assert.Nil(t, s.Index())
}

func TestSession_ReuploadDiscardsPreviousIndex(t *testing.T) {
	emb := &keywordEmbedder{}
	s := newTestSession(emb, &fixedGenerator{response: "answer"}, func(o *Options) {
		o.ChunkSize = 20
		o.ChunkOverlap = 5
	})

	idxA, err := s.Ingest(context.Background(), "a.pdf", documentstest.PDF("alpha alpha alpha alpha alpha alpha"))
	require.NoError(t, err)
	docA := s.Document()

	idxB, err := s.Ingest(context.Background(), "b.pdf", documentstest.PDF("beta gamma beta gamma beta gamma"))
	require.NoError(t, err)
	docB := s.Document()
	require.NotEqual(t, docA.ID, docB.ID)

	assert.True(t, idxA.Discarded())
	assert.Equal(t, 0, idxA.Len())
	assert.Greater(t, s.Version(), idxA.Version())

	_, err = s.Query(context.Background(), idxA, "alpha")
	require.ErrorIs(t, err, domain.ErrStale)

	answer, err := s.Query(context.Background(), idxB, "alpha")
	require.NoError(t, err)
	require.NotEmpty(t, answer.Sources.Chunks)
	for _, c := range answer.Sources.Chunks {
		assert.Equal(t, docB.ID, c.Chunk.DocumentID)
		assert.NotContains(t, c.Chunk.Text, "alpha")
	}
}

func TestSession_ReuploadAfterFailure(t *testing.T) {
	s := newTestSession(newConstantEmbedder(), &fixedGenerator{response: "ok"})

	_, err := s.Ingest(context.Background(), "bad.pdf", []byte("not a pdf"))
	require.Error(t, err)
	require.Equal(t, StateFailed, s.State())

	_, err = s.Ingest(context.Background(), "good.pdf", documentstest.PDF(paperText))
	require.NoError(t, err)
	assert.Equal(t, StateReady, s.State())
	assert.NoError(t, s.Err())
}

func TestSession_SupersededIngestion(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	emb := &funcEmbedder{model: "m", fn: func(ctx context.Context, texts []string) ([][]float32, error) {
		if strings.Contains(texts[0], "SLOW") {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		}
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{1, 1}
		}
		return out, nil
	}}
	s := newTestSession(emb, &fixedGenerator{response: "ok"})

	errA := make(chan error, 1)
	go func() {
		_, err := s.Ingest(context.Background(), "slow.pdf", documentstest.PDF("SLOW paper"))
		errA <- err
	}()

	<-started
	assert.Equal(t, StateIndexing, s.State())

	idxB, err := s.Ingest(context.Background(), "fast.pdf", documentstest.PDF("fast paper"))
	require.NoError(t, err)

	select {
	case err := <-errA:
		require.ErrorIs(t, err, domain.ErrStale)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded ingestion did not return")
	}

	assert.Equal(t, StateReady, s.State())
	assert.Same(t, idxB, s.Index())
	assert.NoError(t, s.Err())
}

func TestSession_SupersededQuery(t *testing.T) {
	gen := newBlockingGenerator()
	s := newTestSession(newConstantEmbedder(), gen)

	idx, err := s.Ingest(context.Background(), "a.pdf", documentstest.PDF(paperText))
	require.NoError(t, err)

	errQ := make(chan error, 1)
	go func() {
		_, err := s.Query(context.Background(), idx, "title?")
		errQ <- err
	}()

	<-gen.started
	_, _ = s.Ingest(context.Background(), "b.pdf", documentstest.PDF("another paper"))

	select {
	case err := <-errQ:
		require.ErrorIs(t, err, domain.ErrStale)
		assert.Equal(t, "StaleIndexError", domain.Kind(err))
	case <-time.After(5 * time.Second):
		t.Fatal("superseded query did not return")
	}
}

func TestSession_QueryTimeoutKeepsReady(t *testing.T) {
	s := newTestSession(newConstantEmbedder(), newBlockingGenerator(), func(o *Options) {
		o.CallTimeout = 20 * time.Millisecond
	})
	_, err := s.Ingest(context.Background(), "a.pdf", documentstest.PDF(paperText))
	require.NoError(t, err)

	_, err = s.Ask(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, StateReady, s.State())
}

func TestSession_IdempotentQuery(t *testing.T) {
	emb := &keywordEmbedder{}
	s := newTestSession(emb, &fixedGenerator{response: "same"}, func(o *Options) {
		o.ChunkSize = 12
		o.ChunkOverlap = 3
		o.TopK = 3
	})
	idx, err := s.Ingest(context.Background(), "a.pdf",
		documentstest.PDF("alpha beta gamma alpha", "gamma gamma beta", "beta alpha"))
	require.NoError(t, err)

	first, err := s.Query(context.Background(), idx, "gamma beta")
	require.NoError(t, err)
	for range 5 {
		again, err := s.Query(context.Background(), idx, "gamma beta")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSession_BlankDocument(t *testing.T) {
	emb := newConstantEmbedder()
	s := newTestSession(emb, &fixedGenerator{response: "x"})

	idx, err := s.Ingest(context.Background(), "scan.pdf", documentstest.PDF(""))
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, StateReady, s.State())

	_, err = s.Ask(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrEmptyIndex)
	assert.Zero(t, emb.calls.Load())
}

func TestSession_JournalFailureIgnored(t *testing.T) {
	journal := &memoryJournal{err: errors.New("database is down")}
	s := newTestSession(newConstantEmbedder(), &fixedGenerator{response: "x"}, func(o *Options) { o.Journal = journal })

	_, err := s.Ingest(context.Background(), "a.pdf", documentstest.PDF(paperText))
	require.NoError(t, err)
	assert.Equal(t, StateReady, s.State())
	assert.Len(t, journal.all(), 1)
}

func TestSession_Close(t *testing.T) {
	states := &stateLog{}
	s := newTestSession(newConstantEmbedder(), &fixedGenerator{response: "x"}, func(o *Options) {
		o.OnStateChange = states.record
	})
	idx, err := s.Ingest(context.Background(), "a.pdf", documentstest.PDF(paperText))
	require.NoError(t, err)
	state, version := states.last()
	require.Equal(t, StateReady, state)

	s.Close()
	assert.True(t, idx.Discarded())
	assert.Nil(t, s.Index())
	assert.Equal(t, StateEmpty, s.State())

	state, closed := states.last()
	assert.Equal(t, StateEmpty, state, "observers see the reset")
	assert.Equal(t, version+1, closed)
	assert.Equal(t, s.Version(), closed)

	_, err = s.Query(context.Background(), idx, "title?")
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Indexing", StateIndexing.String())
	assert.Equal(t, "State(42)", State(42).String())
}
