package search

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Service is the facade that tries Meilisearch first and falls back to
// the database.
type Service struct {
	backend  Backend
	fallback Searcher
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewService creates a search service. backend may be nil if Meilisearch
// is not configured.
func NewService(backend Backend, fallback Searcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, fallback: fallback, logger: logger.Named("search")}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	if s.backend != nil && s.backend.Healthy() {
		results, total, err := s.backend.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to store", zap.Error(err))
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("store search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Index pushes a document to the index in the background.
func (s *Service) Index(rec Record) {
	if s.backend == nil || !s.backend.Healthy() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.backend.Index(rec); err != nil {
			s.logger.Warn("index document", zap.String("id", rec.ID), zap.Error(err))
		}
	}()
}

// Delete removes a document from the index in the background.
func (s *Service) Delete(id string) {
	if s.backend == nil || !s.backend.Healthy() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.backend.Delete(id); err != nil {
			s.logger.Warn("delete document", zap.String("id", id), zap.Error(err))
		}
	}()
}

// ReindexAll pushes every record synchronously. Called at startup when
// Meilisearch is reachable.
func (s *Service) ReindexAll(records []Record) {
	if s.backend == nil || !s.backend.Healthy() {
		return
	}
	if err := s.backend.IndexAll(records); err != nil {
		s.logger.Warn("reindex documents", zap.Int("count", len(records)), zap.Error(err))
	}
}

// Wait blocks until background index updates finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

// Status reports whether a search backend is configured and, if so,
// whether it is currently answering.
func (s *Service) Status() (configured, healthy bool) {
	if s.backend == nil {
		return false, false
	}
	return true, s.backend.Healthy()
}
