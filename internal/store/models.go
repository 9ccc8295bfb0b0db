package store

import (
	"encoding/json"
	"errors"
	"time"

	"folio/api/internal/lifecycle"
	"folio/api/internal/receipt"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Membership struct {
	OrgID   string
	OrgName string
	UserID  string
	Role    string
}

type Customer struct {
	ID        string
	OrgID     string
	Name      string
	Email     string
	Company   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document is the persisted form of a lifecycle document plus the
// kind-specific fields the engine does not care about.
type Document struct {
	lifecycle.Document
	Notes     string
	Content   json.RawMessage
	Currency  string
	Rates     receipt.Rates
	LineItems []receipt.LineItem
	CreatedBy string
}

// DocumentFilter narrows a listing at the database level. Text filtering and
// paging happen in the query package.
type DocumentFilter struct {
	Kind   lifecycle.Kind
	States []lifecycle.State
	IDs    []string
}
