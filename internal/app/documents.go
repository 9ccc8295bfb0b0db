package app

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"folio/api/internal/blob"
	"folio/api/internal/dispatch"
	"folio/api/internal/export"
	"folio/api/internal/lifecycle"
	"folio/api/internal/query"
	"folio/api/internal/rbac"
	"folio/api/internal/receipt"
	"folio/api/internal/revisions"
	"folio/api/internal/search"
	"folio/api/internal/store"
	"folio/api/internal/util"
)

const historyLimit = 50

// DocumentData is the editable content of a document. It is also the
// snapshot committed to revision history, so it never carries the token.
type DocumentData struct {
	lifecycle.Document
	Notes     string             `json:"notes,omitempty"`
	Content   json.RawMessage    `json:"content,omitempty"`
	Currency  string             `json:"currency,omitempty"`
	Rates     *receipt.Rates     `json:"rates,omitempty"`
	LineItems []receipt.LineItem `json:"lineItems,omitempty"`
	CreatedBy string             `json:"createdBy,omitempty"`
}

type DocumentView struct {
	DocumentData
	Collection       string             `json:"collection"`
	AvailableActions []lifecycle.Action `json:"availableActions"`
	Progress         lifecycle.Progress `json:"progress"`
	Totals           *receipt.Totals    `json:"totals,omitempty"`
	PublicURL        string             `json:"publicUrl,omitempty"`
}

// SharedView is the read-only projection served to token holders.
type SharedView struct {
	ID            string             `json:"id"`
	Kind          lifecycle.Kind     `json:"kind"`
	Name          string             `json:"name"`
	State         lifecycle.State    `json:"state"`
	RecipientName string             `json:"recipientName,omitempty"`
	DueDate       *time.Time         `json:"dueDate,omitempty"`
	CompletedAt   *time.Time         `json:"completedAt,omitempty"`
	Notes         string             `json:"notes,omitempty"`
	Content       json.RawMessage    `json:"content,omitempty"`
	Currency      string             `json:"currency,omitempty"`
	LineItems     []receipt.LineItem `json:"lineItems,omitempty"`
	Totals        *receipt.Totals    `json:"totals,omitempty"`
	Progress      lifecycle.Progress `json:"progress"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// DocumentInput is a partial content edit. Nil fields are left unchanged.
type DocumentInput struct {
	Name      *string             `json:"name"`
	Notes     *string             `json:"notes"`
	Content   json.RawMessage     `json:"content"`
	DueDate   *string             `json:"dueDate"`
	Currency  *string             `json:"currency"`
	Rates     *receipt.Rates      `json:"rates"`
	LineItems *[]receipt.LineItem `json:"lineItems"`
	State     *string             `json:"state"`
}

// ActionInput is the request body of an action.
type ActionInput struct {
	CustomerID      string `json:"customerId"`
	RecipientName   string `json:"recipientName"`
	RecipientEmail  string `json:"recipientEmail"`
	EmailToCustomer bool   `json:"emailToCustomer"`
	Date            string `json:"date"`
	AllowFutureDate bool   `json:"allowFutureDate"`
}

type NotificationView struct {
	To         string `json:"to"`
	TemplateID string `json:"templateId"`
	Delivered  bool   `json:"delivered"`
	Error      string `json:"error,omitempty"`
}

type ActionOutcome struct {
	Document      *DocumentView      `json:"document,omitempty"`
	PreviousState lifecycle.State    `json:"previousState"`
	Deleted       bool               `json:"deleted"`
	Notifications []NotificationView `json:"notifications"`
	Warnings      []string           `json:"warnings,omitempty"`
}

type ItemInput struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
}

type HistoryView struct {
	Revisions []revisions.Commit `json:"revisions"`
}

type RevisionView struct {
	Commit   revisions.Commit `json:"commit"`
	Snapshot json.RawMessage  `json:"snapshot"`
	Changed  []string         `json:"changedFields"`
}

type SummaryView struct {
	Kind   lifecycle.Kind          `json:"kind"`
	Counts map[lifecycle.State]int `json:"counts"`
	Total  int                     `json:"total"`
}

type ExportInput struct {
	Format string   `json:"format"`
	IDs    []string `json:"ids"`
	Title  string   `json:"title"`
}

// ExportOutcome carries either the rendered bytes or, when uploads are
// enabled, the stored object with a presigned link.
type ExportOutcome struct {
	Result *export.Result
	Object *blob.Object
}

func documentData(doc store.Document) DocumentData {
	data := DocumentData{
		Document:  doc.Document,
		Notes:     doc.Notes,
		Content:   doc.Content,
		Currency:  doc.Currency,
		LineItems: doc.LineItems,
		CreatedBy: doc.CreatedBy,
	}
	if doc.Kind == lifecycle.KindReceipt {
		rates := doc.Rates
		data.Rates = &rates
		if data.LineItems == nil {
			data.LineItems = []receipt.LineItem{}
		}
	} else {
		data.Currency = ""
	}
	return data
}

func (s *Service) documentView(doc store.Document) DocumentView {
	view := DocumentView{
		DocumentData:     documentData(doc),
		Collection:       doc.Kind.Collection(),
		AvailableActions: s.engine.AvailableActions(doc.Document),
		Progress:         s.engine.Progress(doc.Document),
	}
	if doc.Kind == lifecycle.KindReceipt {
		totals := receipt.Compute(doc.LineItems, doc.Rates)
		view.Totals = &totals
	}
	if doc.Token != "" && s.cfg.PublicBaseURL != "" {
		view.PublicURL = dispatch.PublicLink(s.cfg.PublicBaseURL, doc.Kind.Collection(), doc.ID, doc.Token)
	}
	return view
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, validationError("date %q must be YYYY-MM-DD or RFC3339", raw)
	}
	return &t, nil
}

func (in ItemInput) lineItem() (receipt.LineItem, error) {
	quantity, err := parseAmount("quantity", in.Quantity, "1")
	if err != nil {
		return receipt.LineItem{}, err
	}
	price, err := parseAmount("unitPrice", in.UnitPrice, "0")
	if err != nil {
		return receipt.LineItem{}, err
	}
	item := receipt.LineItem{
		ID:          util.NewID(),
		Description: strings.TrimSpace(in.Description),
		Quantity:    quantity,
		UnitPrice:   price,
	}
	return item, item.Validate()
}

func parseAmount(field, raw, fallback string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, validationError("%s %q is not a number", field, raw)
	}
	return value, nil
}

// applyInput copies the set fields of in onto doc.
func applyInput(doc *store.Document, in DocumentInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return validationError("name must not be empty")
		}
		doc.Name = name
	}
	if in.Notes != nil {
		doc.Notes = *in.Notes
	}
	if len(in.Content) > 0 {
		if !json.Valid(in.Content) {
			return validationError("content must be valid JSON")
		}
		doc.Content = append(json.RawMessage(nil), in.Content...)
	}
	if in.DueDate != nil {
		due, err := parseDate(*in.DueDate)
		if err != nil {
			return err
		}
		doc.DueDate = due
	}

	receiptOnly := in.Currency != nil || in.Rates != nil || in.LineItems != nil
	if receiptOnly && doc.Kind != lifecycle.KindReceipt {
		return validationError("currency, rates and line items only apply to receipts")
	}
	if in.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*in.Currency))
		if len(currency) != 3 {
			return validationError("currency must be a three letter code")
		}
		doc.Currency = currency
	}
	if in.Rates != nil {
		if err := in.Rates.Validate(); err != nil {
			return err
		}
		doc.Rates = *in.Rates
	}
	if in.LineItems != nil {
		owned := make(map[string]bool, len(doc.LineItems))
		for _, item := range doc.LineItems {
			owned[item.ID] = true
		}
		seen := make(map[string]bool, len(*in.LineItems))
		items := make([]receipt.LineItem, 0, len(*in.LineItems))
		for _, item := range *in.LineItems {
			if err := item.Validate(); err != nil {
				return err
			}
			item.ID = strings.TrimSpace(item.ID)
			if item.ID != "" {
				if seen[item.ID] {
					return validationError("line item %s appears more than once", item.ID)
				}
				seen[item.ID] = true
			}
			// Item ids are global; ids from another receipt get a fresh one.
			if !owned[item.ID] {
				item.ID = util.NewID()
			}
			items = append(items, item)
		}
		doc.LineItems = receipt.Renumber(items)
	}
	return nil
}

func (s *Service) CreateDocument(ctx context.Context, session Session, kind lifecycle.Kind, input DocumentInput) (DocumentView, error) {
	if err := s.authorize(session, rbac.ActionWrite); err != nil {
		return DocumentView{}, err
	}
	table, ok := s.engine.Table(kind)
	if !ok {
		return DocumentView{}, notFoundError("collection")
	}
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return DocumentView{}, validationError("name is required")
	}

	state := table.Initial
	if input.State != nil && *input.State != "" {
		requested := lifecycle.State(strings.TrimSpace(*input.State))
		if requested != table.Initial && requested != lifecycle.StateUnassigned {
			return DocumentView{}, validationError("a new document starts in %q", table.Initial)
		}
		if !table.HasState(requested) {
			return DocumentView{}, validationError("%s documents have no %q state", kind, requested)
		}
		state = requested
	}

	now := s.engine.Now()
	doc := store.Document{
		Document: lifecycle.Document{
			OrgID:     session.OrgID,
			Kind:      kind,
			State:     state,
			CreatedAt: now,
			UpdatedAt: now,
		},
		CreatedBy: session.UserID,
	}
	if err := applyInput(&doc, input); err != nil {
		return DocumentView{}, err
	}
	created, err := s.store.CreateDocument(ctx, doc)
	if err != nil {
		return DocumentView{}, err
	}
	s.recordRevision(created, session.UserName, "Create "+string(kind))
	s.search.Index(search.RecordFromDocument(created.Document))
	s.logger.Info("document created",
		zap.String("org_id", created.OrgID),
		zap.String("document_id", created.ID),
		zap.String("kind", string(kind)))
	return s.documentView(created), nil
}

func (s *Service) GetDocument(ctx context.Context, session Session, kind lifecycle.Kind, id string) (DocumentView, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return DocumentView{}, err
	}
	doc, err := s.loadDocument(ctx, session.OrgID, kind, id)
	if err != nil {
		return DocumentView{}, err
	}
	return s.documentView(doc), nil
}

// ListDocuments loads every document of kind, refreshes overdue states and
// filters in memory so that a state filter sees the refreshed state.
func (s *Service) ListDocuments(ctx context.Context, session Session, kind lifecycle.Kind, q query.Query) (query.Page[DocumentView], error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return query.Page[DocumentView]{}, err
	}
	if _, ok := s.engine.Table(kind); !ok {
		return query.Page[DocumentView]{}, notFoundError("collection")
	}
	docs, err := s.store.ListDocuments(ctx, session.OrgID, store.DocumentFilter{Kind: kind})
	if err != nil {
		return query.Page[DocumentView]{}, err
	}
	for i := range docs {
		docs[i] = s.refreshOverdue(ctx, docs[i])
	}
	page := query.Apply(docs, q, func(d store.Document) lifecycle.Document { return d.Document })
	views := make([]DocumentView, 0, len(page.Items))
	for _, doc := range page.Items {
		views = append(views, s.documentView(doc))
	}
	return query.Page[DocumentView]{
		Items:    views,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}, nil
}

// UpdateDocument edits content. State, assignment and token only change
// through actions.
func (s *Service) UpdateDocument(ctx context.Context, session Session, kind lifecycle.Kind, id string, input DocumentInput) (DocumentView, error) {
	if err := s.authorize(session, rbac.ActionWrite); err != nil {
		return DocumentView{}, err
	}
	if input.State != nil {
		return DocumentView{}, validationError("state changes through actions")
	}
	doc, err := s.loadDocument(ctx, session.OrgID, kind, id)
	if err != nil {
		return DocumentView{}, err
	}
	if err := applyInput(&doc, input); err != nil {
		return DocumentView{}, err
	}
	return s.saveContent(ctx, session, doc, "Update content")
}

func (s *Service) saveContent(ctx context.Context, session Session, doc store.Document, message string) (DocumentView, error) {
	doc.UpdatedAt = s.engine.Now()
	updated, err := s.store.UpdateDocument(ctx, doc)
	if errors.Is(err, store.ErrNotFound) {
		return DocumentView{}, notFoundError(doc.Kind.Collection())
	}
	if err != nil {
		return DocumentView{}, err
	}
	s.recordRevision(updated, session.UserName, message)
	s.search.Index(search.RecordFromDocument(updated.Document))
	return s.documentView(updated), nil
}

func (s *Service) AddLineItem(ctx context.Context, session Session, id string, input ItemInput) (DocumentView, error) {
	return s.editItems(ctx, session, id, "Add line item", func(items []receipt.LineItem) ([]receipt.LineItem, error) {
		item, err := input.lineItem()
		if err != nil {
			return nil, err
		}
		return receipt.Add(items, item)
	})
}

func (s *Service) RemoveLineItem(ctx context.Context, session Session, id, itemID string) (DocumentView, error) {
	return s.editItems(ctx, session, id, "Remove line item", func(items []receipt.LineItem) ([]receipt.LineItem, error) {
		return receipt.Remove(items, itemID)
	})
}

func (s *Service) MoveLineItem(ctx context.Context, session Session, id, itemID string, position int) (DocumentView, error) {
	return s.editItems(ctx, session, id, "Move line item", func(items []receipt.LineItem) ([]receipt.LineItem, error) {
		return receipt.Move(items, itemID, position)
	})
}

func (s *Service) ReorderLineItems(ctx context.Context, session Session, id string, order []string) (DocumentView, error) {
	return s.editItems(ctx, session, id, "Reorder line items", func(items []receipt.LineItem) ([]receipt.LineItem, error) {
		return receipt.Reorder(items, order)
	})
}

func (s *Service) editItems(ctx context.Context, session Session, id, message string, edit func([]receipt.LineItem) ([]receipt.LineItem, error)) (DocumentView, error) {
	if err := s.authorize(session, rbac.ActionWrite); err != nil {
		return DocumentView{}, err
	}
	doc, err := s.loadDocument(ctx, session.OrgID, lifecycle.KindReceipt, id)
	if err != nil {
		return DocumentView{}, err
	}
	items, err := edit(doc.LineItems)
	if err != nil {
		return DocumentView{}, err
	}
	doc.LineItems = items
	return s.saveContent(ctx, session, doc, message)
}

// ApplyAction runs action through the engine, persists the result and then
// dispatches its side effects. Notification failures do not fail the call;
// they are reported per effect and as warnings.
func (s *Service) ApplyAction(ctx context.Context, session Session, kind lifecycle.Kind, id string, action lifecycle.Action, input ActionInput) (ActionOutcome, error) {
	required := rbac.ActionWrite
	if action == lifecycle.ActionDelete {
		required = rbac.ActionManage
	}
	if err := s.authorize(session, required); err != nil {
		return ActionOutcome{}, err
	}
	doc, err := s.loadDocument(ctx, session.OrgID, kind, id)
	if err != nil {
		return ActionOutcome{}, err
	}

	date, err := parseDate(input.Date)
	if err != nil {
		return ActionOutcome{}, err
	}
	req := lifecycle.Request{
		Action: action,
		Payload: lifecycle.Payload{
			CustomerID:      strings.TrimSpace(input.CustomerID),
			RecipientName:   strings.TrimSpace(input.RecipientName),
			RecipientEmail:  strings.TrimSpace(input.RecipientEmail),
			EmailToCustomer: input.EmailToCustomer,
			Date:            date,
			AllowFutureDate: input.AllowFutureDate,
		},
		Customers: lifecycle.Customers{},
	}
	if req.Payload.CustomerID != "" {
		customer, err := s.store.GetCustomer(ctx, session.OrgID, req.Payload.CustomerID)
		switch {
		case err == nil:
			req.Customers = lifecycle.Customers{customer.ID: {ID: customer.ID, Name: customer.Name, Email: customer.Email}}
		case !errors.Is(err, store.ErrNotFound):
			return ActionOutcome{}, err
		}
	}

	result, err := s.engine.Apply(doc.Document, req)
	if s.metrics != nil {
		label := string(action)
		if !action.IsKnown() {
			label = "unknown"
		}
		s.metrics.Action(string(kind), label, err)
	}
	if err != nil {
		return ActionOutcome{}, err
	}

	outcome := ActionOutcome{PreviousState: result.PreviousState, Notifications: []NotificationView{}}
	if result.Deleted {
		if err := s.store.DeleteDocument(ctx, session.OrgID, doc.ID); err != nil {
			return ActionOutcome{}, err
		}
		if s.revisions != nil {
			if err := s.revisions.Remove(doc.ID); err != nil {
				s.logger.Warn("remove revisions", zap.String("document_id", doc.ID), zap.Error(err))
			}
		}
		s.search.Delete(doc.ID)
		outcome.Deleted = true
		s.logger.Info("document deleted", zap.String("org_id", session.OrgID), zap.String("document_id", doc.ID))
		return outcome, nil
	}

	doc.Document = result.Document
	updated, err := s.store.UpdateDocument(ctx, doc)
	if err != nil {
		return ActionOutcome{}, err
	}
	s.recordRevision(updated, session.UserName, fmt.Sprintf("%s: %s -> %s", action, result.PreviousState, updated.State))
	s.search.Index(search.RecordFromDocument(updated.Document))

	outcomes := s.dispatch.Dispatch(ctx, result.Effects)
	for _, o := range outcomes {
		view := NotificationView{To: o.Effect.To, TemplateID: o.Effect.TemplateID, Delivered: o.Delivered}
		if o.Err != nil {
			view.Error = o.Err.Error()
		}
		outcome.Notifications = append(outcome.Notifications, view)
	}
	outcome.Warnings = append(result.Notices, dispatch.Warnings(outcomes)...)

	view := s.documentView(updated)
	outcome.Document = &view
	s.logger.Info("document action",
		zap.String("org_id", session.OrgID),
		zap.String("document_id", doc.ID),
		zap.String("action", string(action)),
		zap.String("from", string(result.PreviousState)),
		zap.String("to", string(updated.State)))
	return outcome, nil
}

func (s *Service) DocumentHistory(ctx context.Context, session Session, kind lifecycle.Kind, id string) (HistoryView, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return HistoryView{}, err
	}
	if _, err := s.loadDocument(ctx, session.OrgID, kind, id); err != nil {
		return HistoryView{}, err
	}
	if s.revisions == nil {
		return HistoryView{Revisions: []revisions.Commit{}}, nil
	}
	commits, err := s.revisions.History(id, historyLimit)
	if errors.Is(err, revisions.ErrNoHistory) {
		return HistoryView{Revisions: []revisions.Commit{}}, nil
	}
	if err != nil {
		return HistoryView{}, err
	}
	return HistoryView{Revisions: commits}, nil
}

// DocumentRevision returns the snapshot at hash and the top-level fields that
// differ from the current document.
func (s *Service) DocumentRevision(ctx context.Context, session Session, kind lifecycle.Kind, id, hash string) (RevisionView, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return RevisionView{}, err
	}
	doc, err := s.loadDocument(ctx, session.OrgID, kind, id)
	if err != nil {
		return RevisionView{}, err
	}
	if s.revisions == nil {
		return RevisionView{}, notFoundError("revision")
	}
	snapshot, commit, err := s.revisions.Snapshot(id, hash)
	if err != nil {
		return RevisionView{}, err
	}
	current, err := json.Marshal(documentData(doc))
	if err != nil {
		return RevisionView{}, fmt.Errorf("encode document: %w", err)
	}
	changed, err := revisions.ChangedFields(snapshot, current)
	if err != nil {
		return RevisionView{}, err
	}
	return RevisionView{Commit: commit, Snapshot: snapshot, Changed: changed}, nil
}

// SharedDocument serves the public projection to a token holder. Every
// mismatch reports not found so the endpoint does not reveal which documents
// exist.
func (s *Service) SharedDocument(ctx context.Context, kind lifecycle.Kind, id, token string) (SharedView, error) {
	notFound := notFoundError("document")
	token = strings.TrimSpace(token)
	if token == "" {
		return SharedView{}, notFound
	}
	doc, err := s.store.GetDocumentForShare(ctx, kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return SharedView{}, notFound
	}
	if err != nil {
		return SharedView{}, err
	}
	if doc.Token == "" || subtle.ConstantTimeCompare([]byte(doc.Token), []byte(token)) != 1 {
		return SharedView{}, notFound
	}
	table, ok := s.engine.Table(kind)
	if !ok {
		return SharedView{}, notFound
	}
	if table.Visibility && (doc.State != lifecycle.StatePublished || doc.Private) {
		return SharedView{}, notFound
	}
	doc = s.refreshOverdue(ctx, doc)

	view := SharedView{
		ID:            doc.ID,
		Kind:          doc.Kind,
		Name:          doc.Name,
		State:         doc.State,
		RecipientName: doc.Assignment.RecipientName,
		DueDate:       doc.DueDate,
		CompletedAt:   doc.CompletedAt,
		Notes:         doc.Notes,
		Content:       doc.Content,
		Progress:      s.engine.Progress(doc.Document),
		UpdatedAt:     doc.UpdatedAt,
	}
	if doc.Kind == lifecycle.KindReceipt {
		view.Currency = doc.Currency
		view.LineItems = doc.LineItems
		totals := receipt.Compute(doc.LineItems, doc.Rates)
		view.Totals = &totals
	}
	return view, nil
}

// ExportDocuments renders the documents named by ids, or the ones matching q
// when ids is empty.
func (s *Service) ExportDocuments(ctx context.Context, session Session, kind lifecycle.Kind, input ExportInput, q query.Query) (ExportOutcome, error) {
	if err := s.authorize(session, rbac.ActionExport); err != nil {
		return ExportOutcome{}, err
	}
	format, err := export.ParseFormat(input.Format)
	if err != nil {
		return ExportOutcome{}, err
	}
	docs, err := s.store.ListDocuments(ctx, session.OrgID, store.DocumentFilter{Kind: kind, IDs: input.IDs})
	if err != nil {
		return ExportOutcome{}, err
	}
	for i := range docs {
		docs[i] = s.refreshOverdue(ctx, docs[i])
	}
	if len(input.IDs) == 0 {
		docs = query.Filter(docs, q, func(d store.Document) lifecycle.Document { return d.Document })
	}

	result, err := s.export.Export(ctx, export.Request{
		OrgID:     session.OrgID,
		Kind:      kind,
		Format:    format,
		Title:     input.Title,
		Documents: docs,
		Progress: func(done, total int) {
			s.logger.Debug("export progress", zap.Int("done", done), zap.Int("total", total))
		},
	})
	if err != nil {
		return ExportOutcome{}, err
	}
	obj, err := s.export.Publish(ctx, session.OrgID, result)
	if err != nil {
		return ExportOutcome{}, err
	}
	return ExportOutcome{Result: result, Object: obj}, nil
}

func (s *Service) Search(ctx context.Context, session Session, text string, kind lifecycle.Kind, limit, offset int) (search.Response, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, validationError("q is required")
	}
	return s.search.Search(ctx, search.Query{
		OrgID:  session.OrgID,
		Text:   text,
		Kind:   kind,
		Limit:  limit,
		Offset: offset,
	}), nil
}

// Summary counts documents of kind per state. Every state of the kind is
// present, zero when empty.
func (s *Service) Summary(ctx context.Context, session Session, kind lifecycle.Kind) (SummaryView, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return SummaryView{}, err
	}
	table, ok := s.engine.Table(kind)
	if !ok {
		return SummaryView{}, notFoundError("collection")
	}
	if _, err := s.MarkOverdue(ctx, session.OrgID); err != nil {
		s.logger.Warn("mark overdue", zap.Error(err))
	}
	counts, err := s.store.CountByState(ctx, session.OrgID, kind)
	if err != nil {
		return SummaryView{}, err
	}
	view := SummaryView{Kind: kind, Counts: make(map[lifecycle.State]int, len(table.States))}
	for _, state := range table.States {
		view.Counts[state] = counts[state]
		view.Total += counts[state]
	}
	return view, nil
}

// MarkOverdue moves every past-due document into its kind's overdue state.
// An empty orgID covers all organizations.
func (s *Service) MarkOverdue(ctx context.Context, orgID string) (int, error) {
	var from []lifecycle.State
	for _, table := range s.engine.Tables() {
		if table.Overdue != nil {
			from = append(from, table.Overdue.From)
		}
	}
	if len(from) == 0 {
		return 0, nil
	}
	docs, err := s.store.ListDueCandidates(ctx, from)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, doc := range docs {
		if orgID != "" && doc.OrgID != orgID {
			continue
		}
		if _, changed := s.engine.CheckOverdue(doc.Document); !changed {
			continue
		}
		if refreshed := s.refreshOverdue(ctx, doc); refreshed.State != doc.State {
			marked++
		}
	}
	if marked > 0 {
		s.logger.Info("marked overdue", zap.String("org_id", orgID), zap.Int("count", marked))
	}
	return marked, nil
}

// ReindexSearch pushes every stored document to the search backend.
func (s *Service) ReindexSearch(ctx context.Context) (int, error) {
	docs, err := s.store.ListAllDocuments(ctx)
	if err != nil {
		return 0, err
	}
	records := make([]search.Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, search.RecordFromDocument(doc.Document))
	}
	s.search.ReindexAll(records)
	return len(records), nil
}

func (s *Service) loadDocument(ctx context.Context, orgID string, kind lifecycle.Kind, id string) (store.Document, error) {
	doc, err := s.store.GetDocument(ctx, orgID, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && doc.Kind != kind) {
		return store.Document{}, notFoundError(kind.Collection())
	}
	if err != nil {
		return store.Document{}, err
	}
	return s.refreshOverdue(ctx, doc), nil
}

// refreshOverdue persists a lazily detected overdue transition. A failed
// write still returns the refreshed state to the reader.
func (s *Service) refreshOverdue(ctx context.Context, doc store.Document) store.Document {
	next, changed := s.engine.CheckOverdue(doc.Document)
	if !changed {
		return doc
	}
	previous := doc.State
	doc.Document = next
	updated, err := s.store.UpdateDocument(ctx, doc)
	if err != nil {
		s.logger.Warn("persist overdue", zap.String("document_id", doc.ID), zap.Error(err))
		return doc
	}
	s.recordRevision(updated, "", fmt.Sprintf("overdue: %s -> %s", previous, updated.State))
	s.search.Index(search.RecordFromDocument(updated.Document))
	return updated
}

func (s *Service) recordRevision(doc store.Document, author, message string) {
	if s.revisions == nil {
		return
	}
	if _, err := s.revisions.Record(doc.ID, documentData(doc), author, message); err != nil {
		s.logger.Warn("record revision", zap.String("document_id", doc.ID), zap.Error(err))
	}
}
