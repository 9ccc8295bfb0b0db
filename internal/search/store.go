package search

import (
	"context"
	"fmt"
	"strings"

	"folio/api/internal/store"
)

// DocumentSearcher is the part of the store used for fallback search.
type DocumentSearcher interface {
	SearchDocuments(ctx context.Context, orgID, text string, limit int) ([]store.Document, error)
}

// StoreSearch implements Searcher with substring matching in the
// database. It is used whenever Meilisearch is absent or unhealthy.
type StoreSearch struct {
	docs DocumentSearcher
}

func NewStoreSearch(docs DocumentSearcher) *StoreSearch {
	return &StoreSearch{docs: docs}
}

// Healthy always returns true: if the database is down, the whole app is down.
func (s *StoreSearch) Healthy() bool {
	return true
}

func (s *StoreSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := normalizeLimit(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	// Over-fetch so kind filtering and offset still yield a full page.
	docs, err := s.docs.SearchDocuments(ctx, q.OrgID, q.Text, offset+limit+100)
	if err != nil {
		return nil, 0, fmt.Errorf("store search: %w", err)
	}

	matched := make([]Result, 0, len(docs))
	for _, doc := range docs {
		if q.Kind != "" && doc.Kind != q.Kind {
			continue
		}
		matched = append(matched, RecordFromDocument(doc.Document).result())
	}
	total := len(matched)
	if offset >= total {
		return []Result{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}
