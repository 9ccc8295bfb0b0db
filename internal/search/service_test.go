package search

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"

	"folio/api/internal/lifecycle"
	"folio/api/internal/store"
)

type fakeDocs struct {
	docs []store.Document
	err  error
}

func (f fakeDocs) SearchDocuments(_ context.Context, orgID, text string, limit int) ([]store.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]store.Document, 0)
	for _, doc := range f.docs {
		if doc.OrgID != orgID {
			continue
		}
		if !strings.Contains(strings.ToLower(doc.Name), strings.ToLower(text)) {
			continue
		}
		out = append(out, doc)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeBackend struct {
	mu      sync.Mutex
	healthy bool
	err     error
	results []Result
	indexed []Record
	deleted []string
}

func (f *fakeBackend) Healthy() bool { return f.healthy }

func (f *fakeBackend) Search(context.Context, Query) ([]Result, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.results, len(f.results), nil
}

func (f *fakeBackend) Index(rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, rec)
	return nil
}

func (f *fakeBackend) IndexAll(records []Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, records...)
	return nil
}

func (f *fakeBackend) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func doc(id, org string, kind lifecycle.Kind, name string) store.Document {
	return store.Document{Document: lifecycle.Document{ID: id, OrgID: org, Kind: kind, Name: name, State: lifecycle.StateDraft}}
}

func sampleDocs() fakeDocs {
	return fakeDocs{docs: []store.Document{
		doc("1", "org-a", lifecycle.KindFeedback, "Quarterly feedback"),
		doc("2", "org-a", lifecycle.KindReceipt, "Quarterly receipt"),
		doc("3", "org-b", lifecycle.KindFeedback, "Quarterly feedback"),
		doc("4", "org-a", lifecycle.KindFeedback, "Annual review"),
	}}
}

func TestServiceFallsBackWithoutBackend(t *testing.T) {
	svc := NewService(nil, NewStoreSearch(sampleDocs()), nil)

	resp := svc.Search(context.Background(), Query{OrgID: "org-a", Text: " quarterly "})
	if resp.Total != 2 {
		t.Fatalf("expected 2 hits, got %d (%+v)", resp.Total, resp.Results)
	}
	if resp.Query != "quarterly" {
		t.Fatalf("expected trimmed query, got %q", resp.Query)
	}
	for _, r := range resp.Results {
		if r.ID == "3" {
			t.Fatal("result leaked across organizations")
		}
	}
}

func TestServiceFiltersByKind(t *testing.T) {
	svc := NewService(nil, NewStoreSearch(sampleDocs()), nil)

	resp := svc.Search(context.Background(), Query{OrgID: "org-a", Text: "quarterly", Kind: lifecycle.KindReceipt})
	if resp.Total != 1 || resp.Results[0].ID != "2" {
		t.Fatalf("unexpected results %+v", resp.Results)
	}
	if resp.Results[0].Collection != "receipts" {
		t.Fatalf("expected receipts collection, got %q", resp.Results[0].Collection)
	}
}

func TestServiceFallsBackOnBackendError(t *testing.T) {
	backend := &fakeBackend{healthy: true, err: errors.New("boom")}
	svc := NewService(backend, NewStoreSearch(sampleDocs()), nil)

	resp := svc.Search(context.Background(), Query{OrgID: "org-a", Text: "annual"})
	if resp.Total != 1 || resp.Results[0].ID != "4" {
		t.Fatalf("unexpected fallback results %+v", resp.Results)
	}
}

func TestServicePrefersHealthyBackend(t *testing.T) {
	backend := &fakeBackend{healthy: true, results: []Result{{ID: "m-1"}}}
	svc := NewService(backend, NewStoreSearch(sampleDocs()), nil)

	resp := svc.Search(context.Background(), Query{OrgID: "org-a", Text: "anything"})
	if len(resp.Results) != 1 || resp.Results[0].ID != "m-1" {
		t.Fatalf("expected backend results, got %+v", resp.Results)
	}
}

func TestServiceReturnsEmptyOnStoreError(t *testing.T) {
	svc := NewService(nil, NewStoreSearch(fakeDocs{err: errors.New("db down")}), nil)

	resp := svc.Search(context.Background(), Query{OrgID: "org-a", Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %#v", resp.Results)
	}
}

func TestStoreSearchPaginates(t *testing.T) {
	s := NewStoreSearch(sampleDocs())

	results, total, err := s.Search(context.Background(), Query{OrgID: "org-a", Text: "quarterly", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 2 || len(results) != 1 || results[0].ID != "2" {
		t.Fatalf("unexpected page total=%d results=%+v", total, results)
	}

	results, _, err = s.Search(context.Background(), Query{OrgID: "org-a", Text: "quarterly", Offset: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty page past the end, got %+v", results)
	}
}

func TestIndexAndDeleteSkipUnhealthyBackend(t *testing.T) {
	backend := &fakeBackend{healthy: false}
	svc := NewService(backend, nil, nil)
	svc.Index(Record{ID: "1"})
	svc.Delete("1")
	svc.Wait()
	if len(backend.indexed) != 0 || len(backend.deleted) != 0 {
		t.Fatalf("unhealthy backend should not be called: %+v", backend)
	}

	backend.healthy = true
	svc.Index(Record{ID: "1"})
	svc.Delete("2")
	svc.ReindexAll([]Record{{ID: "3"}})
	svc.Wait()
	if len(backend.indexed) != 2 || len(backend.deleted) != 1 {
		t.Fatalf("expected index and delete calls, got %+v", backend)
	}
}

func TestServiceStatus(t *testing.T) {
	if configured, _ := NewService(nil, nil, nil).Status(); configured {
		t.Fatalf("expected no backend")
	}
	configured, healthy := NewService(&fakeBackend{healthy: true}, nil, nil).Status()
	if !configured || !healthy {
		t.Fatalf("expected healthy backend, got configured=%v healthy=%v", configured, healthy)
	}
}

func TestRecordFromDocument(t *testing.T) {
	rec := RecordFromDocument(lifecycle.Document{
		ID:    "doc-1",
		OrgID: "org-a",
		Kind:  lifecycle.KindWall,
		Name:  "Team wall",
		State: lifecycle.StatePublished,
		Assignment: lifecycle.Assignment{
			CustomerID:     "cust-1",
			RecipientName:  "Jane",
			RecipientEmail: "jane@example.com",
		},
	})
	if rec.Collection != "walls" || rec.Kind != "wall" || rec.State != "published" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.CustomerID != "cust-1" || rec.RecipientEmail != "jane@example.com" {
		t.Fatalf("assignment not copied: %+v", rec)
	}
}

func TestHitToResultPrefersHighlight(t *testing.T) {
	hit := meili.Hit{
		"id":         json.RawMessage(`"doc-1"`),
		"kind":       json.RawMessage(`"feedback"`),
		"name":       json.RawMessage(`"Quarterly feedback"`),
		"_formatted": json.RawMessage(`{"name":"<mark>Quarterly</mark> feedback"}`),
	}
	result := hitToResult(hit)
	if result.ID != "doc-1" || result.Kind != "feedback" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Snippet != "<mark>Quarterly</mark> feedback" {
		t.Fatalf("expected highlighted snippet, got %q", result.Snippet)
	}
}

func TestBuildFilterScopesOrganization(t *testing.T) {
	filters := buildFilter(Query{OrgID: "org-a", Kind: lifecycle.KindPath})
	if len(filters) != 2 || filters[0] != `orgId = "org-a"` || filters[1] != `kind = "path"` {
		t.Fatalf("unexpected filters %v", filters)
	}
}
