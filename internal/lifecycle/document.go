package lifecycle

import (
	"strings"
	"time"
)

// Assignment references the recipient of a document. CustomerID points at a
// stored contact; the name and email are copied from it on assignment so the
// pair is always what an email would be sent to.
type Assignment struct {
	CustomerID     string `json:"customerId,omitempty"`
	RecipientName  string `json:"recipientName,omitempty"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
}

// Document is the lifecycle view of a feedback form, receipt, path or wall.
type Document struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"orgId"`
	Kind        Kind       `json:"kind"`
	Name        string     `json:"name"`
	State       State      `json:"state"`
	Assignment  Assignment `json:"assignment"`
	Token       string     `json:"-"`
	Private     bool       `json:"private"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// IsAssigned reports whether the document has a recipient.
func IsAssigned(doc Document) bool {
	return strings.TrimSpace(doc.Assignment.CustomerID) != "" ||
		strings.TrimSpace(doc.Assignment.RecipientEmail) != ""
}

// Customer is an entry of the organization's assignment set.
type Customer struct {
	ID    string
	Name  string
	Email string
}

// CustomerSet resolves customer references during assignment.
type CustomerSet interface {
	Customer(id string) (Customer, bool)
}

// Customers is a map-backed CustomerSet.
type Customers map[string]Customer

func (c Customers) Customer(id string) (Customer, bool) {
	customer, ok := c[id]
	return customer, ok
}
