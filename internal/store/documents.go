package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"folio/api/internal/lifecycle"
	"folio/api/internal/receipt"
	"folio/api/internal/util"
)

var documentColumns = []string{
	"id", "org_id", "kind", "name", "state", "customer_id", "recipient_name", "recipient_email",
	"token", "private", "due_date", "completed_at", "notes", "content", "currency",
	"tax_enabled", "tax_rate", "vat_enabled", "vat_rate", "discount_enabled", "discount_rate",
	"created_by", "created_at", "updated_at",
}

func scanDocument(scan func(dest ...any) error) (Document, error) {
	var (
		doc        Document
		customerID sql.NullString
		token      sql.NullString
		content    string
	)
	err := scan(
		&doc.ID, &doc.OrgID, &doc.Kind, &doc.Name, &doc.State, &customerID,
		&doc.Assignment.RecipientName, &doc.Assignment.RecipientEmail, &token, &doc.Private,
		&doc.DueDate, &doc.CompletedAt, &doc.Notes, &content, &doc.Currency,
		&doc.Rates.Tax.Enabled, &doc.Rates.Tax.Percent,
		&doc.Rates.VAT.Enabled, &doc.Rates.VAT.Percent,
		&doc.Rates.Discount.Enabled, &doc.Rates.Discount.Percent,
		&doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	doc.Assignment.CustomerID = customerID.String
	doc.Token = token.String
	doc.Content = json.RawMessage(content)
	doc.DueDate = utcPtr(doc.DueDate)
	doc.CompletedAt = utcPtr(doc.CompletedAt)
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return doc, nil
}

func contentString(content json.RawMessage) string {
	if len(strings.TrimSpace(string(content))) == 0 {
		return "{}"
	}
	return string(content)
}

func documentValues(doc Document) map[string]any {
	return map[string]any{
		"name":             doc.Name,
		"state":            string(doc.State),
		"customer_id":      nullString(doc.Assignment.CustomerID),
		"recipient_name":   doc.Assignment.RecipientName,
		"recipient_email":  doc.Assignment.RecipientEmail,
		"token":            nullString(doc.Token),
		"private":          doc.Private,
		"due_date":         utcPtr(doc.DueDate),
		"completed_at":     utcPtr(doc.CompletedAt),
		"notes":            doc.Notes,
		"content":          contentString(doc.Content),
		"currency":         doc.Currency,
		"tax_enabled":      doc.Rates.Tax.Enabled,
		"tax_rate":         doc.Rates.Tax.Percent.String(),
		"vat_enabled":      doc.Rates.VAT.Enabled,
		"vat_rate":         doc.Rates.VAT.Percent.String(),
		"discount_enabled": doc.Rates.Discount.Enabled,
		"discount_rate":    doc.Rates.Discount.Percent.String(),
		"updated_at":       doc.UpdatedAt.UTC(),
	}
}

// CreateDocument inserts doc and its line items. ID and timestamps are
// assigned here when unset.
func (s *SQLStore) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	now := s.now()
	if doc.ID == "" {
		doc.ID = util.NewID()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	if doc.Currency == "" {
		doc.Currency = "USD"
	}
	doc.LineItems = receipt.Renumber(doc.LineItems)

	values := documentValues(doc)
	values["id"] = doc.ID
	values["org_id"] = doc.OrgID
	values["kind"] = string(doc.Kind)
	values["created_by"] = doc.CreatedBy
	values["created_at"] = doc.CreatedAt.UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := exec(ctx, tx, s.sq.Insert("documents").SetMap(values)); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert document: %w", ErrDuplicate)
			}
			return fmt.Errorf("insert document: %w", err)
		}
		return s.replaceLineItems(ctx, tx, doc.ID, doc.LineItems)
	})
	if err != nil {
		return Document{}, err
	}
	return s.GetDocument(ctx, doc.OrgID, doc.ID)
}

// UpdateDocument overwrites every mutable column of doc. Concurrent writers
// race: the last update wins.
func (s *SQLStore) UpdateDocument(ctx context.Context, doc Document) (Document, error) {
	doc.LineItems = receipt.Renumber(doc.LineItems)
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = s.now()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := exec(ctx, tx, s.sq.Update("documents").
			SetMap(documentValues(doc)).
			Where(squirrel.Eq{"org_id": doc.OrgID, "id": doc.ID}))
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update document: %w", ErrNotFound)
		}
		return s.replaceLineItems(ctx, tx, doc.ID, doc.LineItems)
	})
	if err != nil {
		return Document{}, err
	}
	return s.GetDocument(ctx, doc.OrgID, doc.ID)
}

func (s *SQLStore) replaceLineItems(ctx context.Context, tx *sql.Tx, documentID string, items []receipt.LineItem) error {
	if _, err := exec(ctx, tx, s.sq.Delete("line_items").Where(squirrel.Eq{"document_id": documentID})); err != nil {
		return fmt.Errorf("clear line items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	insert := s.sq.Insert("line_items").Columns("id", "document_id", "position", "description", "quantity", "unit_price")
	for _, item := range items {
		if item.ID == "" {
			item.ID = util.NewID()
		}
		insert = insert.Values(item.ID, documentID, item.Position, item.Description, item.Quantity.String(), item.UnitPrice.String())
	}
	if _, err := exec(ctx, tx, insert); err != nil {
		return fmt.Errorf("insert line items: %w", err)
	}
	return nil
}

func (s *SQLStore) GetDocument(ctx context.Context, orgID, documentID string) (Document, error) {
	return s.getDocument(ctx, squirrel.Eq{"org_id": orgID, "id": documentID})
}

// GetDocumentForShare loads a document by kind and id without an org scope.
// Callers must verify the share token before returning anything.
func (s *SQLStore) GetDocumentForShare(ctx context.Context, kind lifecycle.Kind, documentID string) (Document, error) {
	return s.getDocument(ctx, squirrel.Eq{"kind": string(kind), "id": documentID})
}

func (s *SQLStore) getDocument(ctx context.Context, where squirrel.Eq) (Document, error) {
	row, err := queryRow(ctx, s.db, s.sq.Select(documentColumns...).From("documents").Where(where))
	if err != nil {
		return Document{}, err
	}
	doc, err := scanDocument(row.Scan)
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", notFound(err))
	}
	if doc.Kind == lifecycle.KindReceipt {
		items, err := s.lineItems(ctx, []string{doc.ID})
		if err != nil {
			return Document{}, err
		}
		doc.LineItems = items[doc.ID]
	}
	return doc, nil
}

// ListDocuments returns an organization's documents newest first.
func (s *SQLStore) ListDocuments(ctx context.Context, orgID string, filter DocumentFilter) ([]Document, error) {
	where := squirrel.And{squirrel.Eq{"org_id": orgID}}
	if filter.Kind != "" {
		where = append(where, squirrel.Eq{"kind": string(filter.Kind)})
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, state := range filter.States {
			states = append(states, string(state))
		}
		where = append(where, squirrel.Eq{"state": states})
	}
	if len(filter.IDs) > 0 {
		where = append(where, squirrel.Eq{"id": filter.IDs})
	}
	return s.listDocuments(ctx, s.sq.Select(documentColumns...).From("documents").Where(where).OrderBy("created_at DESC", "id ASC"))
}

// SearchDocuments matches name and recipient fields case-insensitively.
func (s *SQLStore) SearchDocuments(ctx context.Context, orgID, text string, limit int) ([]Document, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(text)) + "%"
	if limit <= 0 {
		limit = 20
	}
	builder := s.sq.Select(documentColumns...).From("documents").
		Where(squirrel.Eq{"org_id": orgID}).
		Where(squirrel.Or{
			squirrel.Like{"LOWER(name)": pattern},
			squirrel.Like{"LOWER(recipient_name)": pattern},
			squirrel.Like{"LOWER(recipient_email)": pattern},
		}).
		OrderBy("updated_at DESC").
		Limit(uint64(limit))
	return s.listDocuments(ctx, builder)
}

// ListDueCandidates returns documents in one of states with a due date, across
// every organization.
func (s *SQLStore) ListDueCandidates(ctx context.Context, states []lifecycle.State) ([]Document, error) {
	values := make([]string, 0, len(states))
	for _, state := range states {
		values = append(values, string(state))
	}
	builder := s.sq.Select(documentColumns...).From("documents").
		Where(squirrel.Eq{"state": values}).
		Where(squirrel.NotEq{"due_date": nil}).
		OrderBy("due_date ASC")
	return s.listDocuments(ctx, builder)
}

// ListAllDocuments returns every document across organizations. It feeds
// the search reindex at startup.
func (s *SQLStore) ListAllDocuments(ctx context.Context) ([]Document, error) {
	return s.listDocuments(ctx, s.sq.Select(documentColumns...).From("documents").OrderBy("created_at ASC", "id ASC"))
}

func (s *SQLStore) listDocuments(ctx context.Context, builder squirrel.SelectBuilder) ([]Document, error) {
	rows, err := query(ctx, s.db, builder)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	var receiptIDs []string
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if doc.Kind == lifecycle.KindReceipt {
			receiptIDs = append(receiptIDs, doc.ID)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(receiptIDs) == 0 {
		return docs, nil
	}
	items, err := s.lineItems(ctx, receiptIDs)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].LineItems = items[docs[i].ID]
	}
	return docs, nil
}

func (s *SQLStore) lineItems(ctx context.Context, documentIDs []string) (map[string][]receipt.LineItem, error) {
	rows, err := query(ctx, s.db, s.sq.Select("id", "document_id", "position", "description", "quantity", "unit_price").
		From("line_items").
		Where(squirrel.Eq{"document_id": documentIDs}).
		OrderBy("document_id", "position ASC"))
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	out := map[string][]receipt.LineItem{}
	for rows.Next() {
		var (
			item       receipt.LineItem
			documentID string
		)
		if err := rows.Scan(&item.ID, &documentID, &item.Position, &item.Description, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		out[documentID] = append(out[documentID], item)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteDocument(ctx context.Context, orgID, documentID string) error {
	res, err := exec(ctx, s.db, s.sq.Delete("documents").Where(squirrel.Eq{"org_id": orgID, "id": documentID}))
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete document: %w", ErrNotFound)
	}
	return nil
}

// CountByState tallies an organization's documents of kind by state.
func (s *SQLStore) CountByState(ctx context.Context, orgID string, kind lifecycle.Kind) (map[lifecycle.State]int, error) {
	rows, err := query(ctx, s.db, s.sq.Select("state", "COUNT(1)").From("documents").
		Where(squirrel.Eq{"org_id": orgID, "kind": string(kind)}).
		GroupBy("state"))
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	defer rows.Close()

	counts := map[lifecycle.State]int{}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[lifecycle.State(state)] = n
	}
	return counts, rows.Err()
}
