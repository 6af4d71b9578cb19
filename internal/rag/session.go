package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dream-ai/paperqa/internal/documents"
	"github.com/dream-ai/paperqa/internal/domain"
	"github.com/dream-ai/paperqa/internal/metrics"
)

// journalTimeout bounds a single journal write.
const journalTimeout = 5 * time.Second

// State is a stage of the ingestion pipeline.
type State int

const (
	StateEmpty State = iota
	StateExtracting
	StateChunking
	StateIndexing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateExtracting:
		return "Extracting"
	case StateChunking:
		return "Chunking"
	case StateIndexing:
		return "Indexing"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Journal records the outcome of each ingestion.
type Journal interface {
	RecordIngestion(ctx context.Context, rec domain.IngestionRecord) error
}

// Options configures a Session.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	// CallTimeout bounds every embedding and generation call.
	CallTimeout time.Duration
	Index       IndexOptions
	// Query is used by Ask when no text is given.
	Query       string
	Instruction string

	Logger  *zap.Logger
	Journal Journal
	// OnStateChange is called after every transition, outside the session lock.
	OnStateChange func(state State, version uint64)
}

// DefaultOptions returns the pipeline defaults.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    1000,
		ChunkOverlap: 100,
		TopK:         DefaultTopK,
		Query:        DefaultQuery,
		Index: IndexOptions{
			BatchSize:   DefaultBatchSize,
			Concurrency: DefaultConcurrency,
		},
	}
}

// Session owns at most one document and its index. Every Ingest starts a new
// version; work tied to an older version is cancelled and its results are
// discarded with domain.ErrStale.
type Session struct {
	extractor   documents.Extractor
	embedder    domain.Embedder
	retriever   *Retriever
	synthesizer *Synthesizer
	opts        Options
	logger      *zap.Logger

	notifyMu sync.Mutex

	mu      sync.Mutex
	state   State
	version uint64
	err     error
	doc     *domain.Document
	index   *VectorIndex
	vctx    context.Context
	cancel  context.CancelFunc
}

// NewSession creates a session in the Empty state.
func NewSession(extractor documents.Extractor, embedder domain.Embedder, generator domain.Generator, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Query == "" {
		opts.Query = DefaultQuery
	}
	vctx, cancel := context.WithCancel(context.Background())
	return &Session{
		extractor:   extractor,
		embedder:    embedder,
		retriever:   NewRetriever(embedder, opts.TopK, opts.CallTimeout),
		synthesizer: NewSynthesizer(generator, opts.Instruction, opts.CallTimeout),
		opts:        opts,
		logger:      opts.Logger,
		state:       StateEmpty,
		vctx:        vctx,
		cancel:      cancel,
	}
}

// State returns the current pipeline state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Version returns the number of the current upload.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Err returns the error that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Index returns the current index, nil unless the session is Ready.
func (s *Session) Index() *VectorIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Document returns the current document, nil unless the session is Ready.
func (s *Session) Document() *domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Ingest replaces the session's document. It cancels any in-flight work of
// the previous upload, discards the old index and runs extraction, chunking
// and indexing. On success the session is Ready and the new index is
// returned; on failure the session is Failed and keeps the error.
func (s *Session) Ingest(ctx context.Context, name string, raw []byte) (*VectorIndex, error) {
	start := time.Now()

	s.mu.Lock()
	s.cancel()
	if s.index != nil {
		s.index.Discard()
	}
	s.version++
	version := s.version
	s.vctx, s.cancel = context.WithCancel(context.Background())
	vctx := s.vctx
	s.index, s.doc, s.err = nil, nil, nil
	s.state = StateEmpty
	s.mu.Unlock()
	s.notify(StateEmpty, version)

	ctx, stop := bind(ctx, vctx)
	defer stop()

	doc := domain.NewDocument(name, raw)
	rec := domain.IngestionRecord{
		DocumentID:     doc.ID,
		Name:           doc.Name,
		Hash:           doc.Hash,
		EmbeddingModel: s.embedder.Model(),
	}
	log := s.logger.With(
		zap.Uint64("version", version),
		zap.String("document", name),
		zap.String("document_id", doc.ID.String()),
	)
	log.Info("ingesting document", zap.Int("bytes", len(raw)))

	if err := s.advance(version, StateExtracting); err != nil {
		return nil, err
	}
	segments, err := s.extractor.Extract(raw)
	if err != nil {
		return nil, s.fail(version, log, rec, start, err)
	}
	rec.Pages = len(segments)

	if err := s.advance(version, StateChunking); err != nil {
		return nil, err
	}
	chunks, err := documents.Chunk(doc.ID, segments, s.opts.ChunkSize, s.opts.ChunkOverlap)
	if err != nil {
		return nil, s.fail(version, log, rec, start, err)
	}
	rec.Chunks = len(chunks)
	log.Debug("document chunked", zap.Int("pages", rec.Pages), zap.Int("chunks", rec.Chunks))

	if err := s.advance(version, StateIndexing); err != nil {
		return nil, err
	}
	idxOpts := s.opts.Index
	idxOpts.Version = version
	idxOpts.CallTimeout = s.opts.CallTimeout
	idx, err := BuildIndex(ctx, chunks, s.embedder, idxOpts)
	if err != nil {
		return nil, s.fail(version, log, rec, start, err)
	}

	s.mu.Lock()
	if s.version != version {
		s.mu.Unlock()
		idx.Discard()
		return nil, staleError(version)
	}
	s.index, s.doc = idx, doc
	s.state = StateReady
	s.mu.Unlock()
	s.notify(StateReady, version)

	rec.State = StateReady.String()
	rec.Duration = time.Since(start)
	log.Info("document ready", zap.Int("chunks", idx.Len()), zap.Duration("duration", rec.Duration))
	s.record(log, rec)

	return idx, nil
}

// Query answers text against idx, which must be the session's current index.
// It fails with domain.ErrNotReady outside Ready and with domain.ErrStale when
// idx, or the index the answer was computed against, has been superseded.
func (s *Session) Query(ctx context.Context, idx *VectorIndex, text string) (domain.Answer, error) {
	s.mu.Lock()
	state, version, current, vctx := s.state, s.version, s.index, s.vctx
	s.mu.Unlock()

	if state != StateReady {
		return domain.Answer{}, fmt.Errorf("cannot query in state %s: %w", state, domain.ErrNotReady)
	}
	if idx == nil || idx != current {
		return domain.Answer{}, fmt.Errorf("index is not the current index: %w", domain.ErrStale)
	}

	ctx, stop := bind(ctx, vctx)
	defer stop()

	log := s.logger.With(zap.Uint64("version", version))
	begin := time.Now()

	result, err := s.retriever.Retrieve(ctx, idx, text, s.opts.TopK)
	if err != nil {
		return domain.Answer{}, s.queryError(version, log, err)
	}
	if !s.isCurrent(version) {
		return domain.Answer{}, staleError(version)
	}

	answer, err := s.synthesizer.Synthesize(ctx, result, text)
	if err != nil {
		return domain.Answer{}, s.queryError(version, log, err)
	}
	if !s.isCurrent(version) {
		return domain.Answer{}, staleError(version)
	}

	log.Info("query answered",
		zap.Int("chunks", len(result.Chunks)),
		zap.String("model", answer.Model),
		zap.Duration("duration", time.Since(begin)),
	)
	return answer, nil
}

// Ask queries the current index. An empty text uses the configured query.
func (s *Session) Ask(ctx context.Context, text string) (domain.Answer, error) {
	if text == "" {
		text = s.opts.Query
	}
	return s.Query(ctx, s.Index(), text)
}

// Close cancels in-flight work, discards the index and returns the session
// to Empty.
func (s *Session) Close() {
	s.mu.Lock()
	s.cancel()
	s.version++
	version := s.version
	s.vctx, s.cancel = context.WithCancel(context.Background())
	if s.index != nil {
		s.index.Discard()
	}
	s.index, s.doc, s.err = nil, nil, nil
	s.state = StateEmpty
	s.mu.Unlock()
	s.notify(StateEmpty, version)
}

// advance moves to the next stage if version is still current.
func (s *Session) advance(version uint64, next State) error {
	s.mu.Lock()
	if s.version != version {
		s.mu.Unlock()
		return staleError(version)
	}
	s.state = next
	s.mu.Unlock()
	s.notify(next, version)
	return nil
}

// fail moves the session to Failed unless a newer upload took over, in which
// case the stage error is replaced by domain.ErrStale.
func (s *Session) fail(version uint64, log *zap.Logger, rec domain.IngestionRecord, start time.Time, err error) error {
	s.mu.Lock()
	if s.version != version {
		s.mu.Unlock()
		log.Debug("discarding result of superseded ingestion", zap.Error(err))
		return staleError(version)
	}
	s.state = StateFailed
	s.err = err
	s.mu.Unlock()
	s.notify(StateFailed, version)

	rec.State = StateFailed.String()
	rec.ErrorKind = domain.Kind(err)
	rec.Duration = time.Since(start)
	log.Warn("ingestion failed", zap.String("kind", rec.ErrorKind), zap.Error(err))
	s.record(log, rec)
	return err
}

func (s *Session) queryError(version uint64, log *zap.Logger, err error) error {
	if !s.isCurrent(version) {
		log.Debug("discarding result of superseded query", zap.Error(err))
		return staleError(version)
	}
	log.Warn("query failed", zap.String("kind", domain.Kind(err)), zap.Error(err))
	return err
}

func (s *Session) isCurrent(version uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version == version
}

func (s *Session) notify(state State, version uint64) {
	if s.opts.OnStateChange == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.opts.OnStateChange(state, version)
}

// record reports a final ingestion outcome to metrics and the journal.
// Journal failures never change the outcome.
func (s *Session) record(log *zap.Logger, rec domain.IngestionRecord) {
	metrics.ObserveIngestion(rec)
	if s.opts.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := s.opts.Journal.RecordIngestion(ctx, rec); err != nil {
		log.Warn("failed to record ingestion", zap.Error(err))
	}
}

// bind derives a context from ctx that is also cancelled, with cause
// domain.ErrStale, when the version context vctx is cancelled.
func bind(ctx, vctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(vctx, func() { cancel(domain.ErrStale) })
	return ctx, func() {
		stop()
		cancel(nil)
	}
}

func staleError(version uint64) error {
	return fmt.Errorf("upload %d was superseded: %w", version, domain.ErrStale)
}

// IsStale reports whether err was caused by a newer upload.
func IsStale(err error) bool {
	return errors.Is(err, domain.ErrStale)
}
