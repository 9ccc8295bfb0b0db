package lifecycle

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// EffectKind classifies a side effect produced by an action.
type EffectKind string

const EffectEmail EffectKind = "email"

// SideEffect is a notification the caller must dispatch after persisting the
// updated document. The executor never performs I/O itself.
type SideEffect struct {
	Kind       EffectKind        `json:"kind"`
	To         string            `json:"to"`
	ToName     string            `json:"toName,omitempty"`
	TemplateID string            `json:"templateId"`
	Context    map[string]string `json:"context"`
}

// Payload carries the optional inputs of an action.
type Payload struct {
	CustomerID      string     `json:"customerId,omitempty"`
	RecipientName   string     `json:"recipientName,omitempty"`
	RecipientEmail  string     `json:"recipientEmail,omitempty"`
	EmailToCustomer bool       `json:"emailToCustomer,omitempty"`
	Date            *time.Time `json:"date,omitempty"`
	AllowFutureDate bool       `json:"allowFutureDate,omitempty"`
}

// Request is a single action against a document.
type Request struct {
	Action    Action
	Payload   Payload
	Customers CustomerSet
}

// Result is the outcome of a successful action. When Deleted is set the caller
// removes the document instead of persisting Document.
type Result struct {
	Document      Document     `json:"document"`
	PreviousState State        `json:"previousState"`
	Effects       []SideEffect `json:"effects"`
	Deleted       bool         `json:"deleted"`
	// Notices explain requested effects that were not produced.
	Notices []string `json:"notices,omitempty"`
}

// Engine applies actions using a fixed set of transition tables.
type Engine struct {
	tables   Tables
	now      func() time.Time
	newToken func() (string, error)
}

type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTokenSource overrides public token generation.
func WithTokenSource(fn func() (string, error)) Option {
	return func(e *Engine) { e.newToken = fn }
}

func NewEngine(tables Tables, opts ...Option) *Engine {
	e := &Engine{
		tables:   tables,
		now:      func() time.Time { return time.Now().UTC() },
		newToken: NewToken,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MustDefault builds an engine over the embedded tables and panics if they
// fail to parse.
func MustDefault(opts ...Option) *Engine {
	tables, err := DefaultTables()
	if err != nil {
		panic(err)
	}
	return NewEngine(tables, opts...)
}

// NewToken returns a URL-safe random token for public links.
func NewToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (e *Engine) Table(kind Kind) (*Table, bool) {
	table, ok := e.tables[kind]
	return table, ok
}

func (e *Engine) Tables() Tables {
	return e.tables
}

func (e *Engine) Now() time.Time {
	return e.now()
}

// AvailableActions lists what a caller may do with doc right now.
func (e *Engine) AvailableActions(doc Document) []Action {
	table, ok := e.tables[doc.Kind]
	if !ok {
		return nil
	}
	return table.Available(doc.State, IsAssigned(doc))
}

// InitialState is the state new documents of kind start in.
func (e *Engine) InitialState(kind Kind) (State, bool) {
	table, ok := e.tables[kind]
	if !ok {
		return "", false
	}
	return table.Initial, true
}

// Apply validates req against doc and returns the updated document together
// with the side effects to dispatch. All validation happens before the copy is
// mutated, so a rejected action leaves nothing half-applied.
func (e *Engine) Apply(doc Document, req Request) (Result, error) {
	table, ok := e.tables[doc.Kind]
	if !ok {
		return Result{}, newActionError(ErrValidation, doc, req.Action, "unknown document kind %q", doc.Kind)
	}
	if !table.HasState(doc.State) {
		return Result{}, newActionError(ErrValidation, doc, req.Action, "unknown state %q", doc.State)
	}
	if !req.Action.IsKnown() {
		return Result{}, newActionError(ErrIllegalTransition, doc, req.Action, "unknown action %q", req.Action)
	}
	if !table.Allows(doc.State, IsAssigned(doc), req.Action) {
		return Result{}, newActionError(ErrIllegalTransition, doc, req.Action, "action not available")
	}

	now := e.now()
	next := doc
	result := Result{PreviousState: doc.State}
	sendEmail := false

	switch req.Action {
	case ActionDelete:
		result.Document = doc
		result.Deleted = true
		return result, nil
	case ActionAssign:
		assignment, err := resolveAssignment(doc, req)
		if err != nil {
			return Result{}, err
		}
		if req.Payload.EmailToCustomer {
			if assignment.RecipientEmail == "" {
				return Result{}, newActionError(ErrMissingRecipient, doc, req.Action, "recipient has no email address")
			}
			if shareable(table, doc) {
				sendEmail = true
			} else {
				result.Notices = append(result.Notices, "share email not sent: publish the document and make it public first")
			}
		}
		next.Assignment = assignment
	case ActionUnassign:
		next.Assignment = Assignment{}
	case ActionSend:
		if strings.TrimSpace(doc.Assignment.RecipientEmail) == "" {
			return Result{}, newActionError(ErrMissingRecipient, doc, req.Action, "document has no recipient email")
		}
		sendEmail = true
	case ActionMakePublic:
		next.Private = false
	case ActionMakePrivate:
		next.Private = true
	}

	if table.Completion != nil && req.Action == table.Completion.Action {
		date := now
		if req.Payload.Date != nil {
			date = req.Payload.Date.UTC()
		}
		if date.After(now) && !req.Payload.AllowFutureDate {
			return Result{}, newActionError(ErrValidation, doc, req.Action, "completion date %s is in the future", date.Format(time.RFC3339))
		}
		next.CompletedAt = &date
	}

	if target, changed := table.Target(doc.State, req.Action, sendEmail); changed {
		next.State = target
	}
	if table.Completion != nil && next.State != table.Completion.State {
		next.CompletedAt = nil
	}

	needsToken := sendEmail || (table.PublishesToken && req.Action == ActionPublish)
	if needsToken && next.Token == "" {
		token, err := e.newToken()
		if err != nil {
			return Result{}, err
		}
		next.Token = token
	}
	if sendEmail {
		result.Effects = append(result.Effects, emailEffect(table, next))
	}

	next.UpdatedAt = now
	result.Document = next
	return result, nil
}

// shareable reports whether the public link of doc resolves. Kinds with
// visibility only serve published, public documents.
func shareable(table *Table, doc Document) bool {
	if !table.Visibility {
		return true
	}
	return doc.State == StatePublished && !doc.Private
}

func resolveAssignment(doc Document, req Request) (Assignment, error) {
	payload := req.Payload
	if id := strings.TrimSpace(payload.CustomerID); id != "" {
		if req.Customers == nil {
			return Assignment{}, newActionError(ErrNotFound, doc, req.Action, "customer %s not found", id)
		}
		customer, ok := req.Customers.Customer(id)
		if !ok {
			return Assignment{}, newActionError(ErrNotFound, doc, req.Action, "customer %s not found", id)
		}
		return Assignment{
			CustomerID:     customer.ID,
			RecipientName:  customer.Name,
			RecipientEmail: strings.TrimSpace(customer.Email),
		}, nil
	}
	email := strings.TrimSpace(payload.RecipientEmail)
	if email == "" {
		return Assignment{}, newActionError(ErrMissingRecipient, doc, req.Action, "a customer or email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Assignment{}, newActionError(ErrValidation, doc, req.Action, "invalid recipient email %q", email)
	}
	return Assignment{
		RecipientName:  strings.TrimSpace(payload.RecipientName),
		RecipientEmail: email,
	}, nil
}

func emailEffect(table *Table, doc Document) SideEffect {
	return SideEffect{
		Kind:       EffectEmail,
		To:         doc.Assignment.RecipientEmail,
		ToName:     doc.Assignment.RecipientName,
		TemplateID: table.EmailTemplate,
		Context: map[string]string{
			"documentId":    doc.ID,
			"documentName":  doc.Name,
			"collection":    doc.Kind.Collection(),
			"kind":          string(doc.Kind),
			"token":         doc.Token,
			"recipientName": doc.Assignment.RecipientName,
		},
	}
}
