package search

import (
	"context"

	"folio/api/internal/lifecycle"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	Collection     string `json:"collection"`
	Name           string `json:"name"`
	State          string `json:"state"`
	RecipientName  string `json:"recipientName,omitempty"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
	Snippet        string `json:"snippet,omitempty"`
}

// Query describes a search request. OrgID is required; Kind narrows the
// hits to one document kind.
type Query struct {
	OrgID  string
	Text   string
	Kind   lifecycle.Kind
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Backend is a search engine that also maintains its own index.
type Backend interface {
	Searcher
	Index(rec Record) error
	IndexAll(records []Record) error
	Delete(id string) error
}

// Record is the data we index for a document.
type Record struct {
	ID             string `json:"id"`
	OrgID          string `json:"orgId"`
	Kind           string `json:"kind"`
	Collection     string `json:"collection"`
	Name           string `json:"name"`
	State          string `json:"state"`
	CustomerID     string `json:"customerId,omitempty"`
	RecipientName  string `json:"recipientName,omitempty"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
}

func RecordFromDocument(doc lifecycle.Document) Record {
	return Record{
		ID:             doc.ID,
		OrgID:          doc.OrgID,
		Kind:           string(doc.Kind),
		Collection:     doc.Kind.Collection(),
		Name:           doc.Name,
		State:          string(doc.State),
		CustomerID:     doc.Assignment.CustomerID,
		RecipientName:  doc.Assignment.RecipientName,
		RecipientEmail: doc.Assignment.RecipientEmail,
	}
}

func (r Record) result() Result {
	return Result{
		ID:             r.ID,
		Kind:           r.Kind,
		Collection:     r.Collection,
		Name:           r.Name,
		State:          r.State,
		RecipientName:  r.RecipientName,
		RecipientEmail: r.RecipientEmail,
	}
}

const defaultLimit = 20

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > 100 {
		return 100
	}
	return limit
}
