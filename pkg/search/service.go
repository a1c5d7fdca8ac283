// Package search runs the ingestion and query flows over an extractor, an
// embedder and a document store.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"sandbox/docsearch/pkg/embeddings"
	"sandbox/docsearch/pkg/extract"
	"sandbox/docsearch/pkg/tracing"
)

const (
	DefaultWorkers = 4

	// queryK is the number of matches a query returns.
	queryK = 1
)

type Extractor interface {
	Extract(ctx context.Context, content []byte, filename string) (string, error)
}

// Upload is one file handed to Ingest. Open is called once, by the worker
// that processes the file.
type Upload struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

// FileUpload reads a local file, naming it by its base name.
func FileUpload(path string) Upload {
	return Upload{
		Filename: filepath.Base(path),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

type Result struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

type Options struct {
	// Workers caps how many files of one batch are processed at once.
	Workers int
	Logger  *slog.Logger
}

type Service struct {
	extractor Extractor
	embedder  embeddings.Embedder
	store     embeddings.Client
	workers   int
	logger    *slog.Logger
}

func NewService(x Extractor, emb embeddings.Embedder, store embeddings.Client, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		extractor: x,
		embedder:  emb,
		store:     store,
		workers:   opts.Workers,
		logger:    opts.Logger,
	}
}

// Ingest extracts, embeds and stores every upload. Files run concurrently up
// to the worker limit. The first failure is returned and files not yet
// started are skipped; documents already stored are kept.
func (s *Service) Ingest(ctx context.Context, uploads []Upload) error {
	ctx, span := tracing.Start(ctx, "ingest", attribute.Int("ingest.files", len(uploads)))
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, u := range uploads {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return s.ingestOne(gctx, u)
		})
	}
	if err := g.Wait(); err != nil {
		tracing.RecordError(span, err)
		s.logger.Error("ingestion failed",
			"files", len(uploads),
			"kind", KindOf(err),
			"error", err,
		)
		return err
	}

	n, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Warn("failed to count documents after ingestion", "error", err)
	} else {
		s.logger.Info("documents ingested", "files", len(uploads), "collection_count", n)
	}
	return nil
}

func (s *Service) ingestOne(ctx context.Context, u Upload) (err error) {
	ctx, span := tracing.Start(ctx, "ingest.file", attribute.String("file.name", u.Filename))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	content, err := readUpload(u)
	if err != nil {
		return E(KindInternal, "read", err)
	}

	text, err := s.extractor.Extract(ctx, content, u.Filename)
	if err != nil {
		var unsupported *extract.UnsupportedMediaTypeError
		if errors.As(err, &unsupported) {
			return E(KindUnsupportedMediaType, "extract", err)
		}
		return E(KindExtraction, "extract", err)
	}

	vec, err := s.embed(ctx, text)
	if err != nil {
		return err
	}

	doc := &embeddings.Document{
		Id:        uuid.NewString(),
		Text:      text,
		Embedding: vec,
		Metadata: map[string]string{
			embeddings.MetaFilename:       u.Filename,
			embeddings.MetaEmbeddingModel: s.embedder.Model().Name(),
		},
	}
	sctx, sspan := tracing.Start(ctx, "store.insert", attribute.String("document.id", doc.Id))
	err = s.store.InsertDocument(sctx, doc)
	tracing.RecordError(sspan, err)
	sspan.End()
	if err != nil {
		return E(KindStore, "insert", err)
	}

	s.logger.Debug("document stored", "file", u.Filename, "id", doc.Id, "chars", len(text))
	return nil
}

// Query returns the stored document closest to query.
func (s *Service) Query(ctx context.Context, query string) (res []Result, err error) {
	ctx, span := tracing.Start(ctx, "query")
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	sctx, sspan := tracing.Start(ctx, "store.query", attribute.Int("store.k", queryK))
	docs, err := s.store.FindKNearest(sctx, vec, queryK)
	tracing.RecordError(sspan, err)
	sspan.End()
	if err != nil {
		return nil, E(KindStore, "query", err)
	}
	if len(docs) == 0 {
		return nil, E(KindEmptyResult, "query", ErrEmptyResult)
	}

	res = make([]Result, 0, len(docs))
	for _, d := range docs {
		res = append(res, Result{
			Filename: d.Filename(),
			Text:     d.Text,
		})
		s.logger.Debug("query match", "file", d.Filename(), "id", d.Id, "distance", d.Distance)
	}
	return res, nil
}

// Count reports the number of stored documents.
func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, E(KindStore, "count", err)
	}
	return n, nil
}

func (s *Service) embed(ctx context.Context, text string) ([]float64, error) {
	ctx, span := tracing.Start(ctx, "embed", attribute.String("embedding.model", s.embedder.Model().Name()))
	defer span.End()

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, E(KindEmbedding, "embed", err)
	}
	return vec, nil
}

func readUpload(u Upload) ([]byte, error) {
	if u.Open == nil {
		return nil, fmt.Errorf("Failed to read %s: no content", u.Filename)
	}
	rc, err := u.Open()
	if err != nil {
		return nil, fmt.Errorf("Failed to read %s: %w", u.Filename, err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Failed to read %s: %w", u.Filename, err)
	}
	return content, nil
}
