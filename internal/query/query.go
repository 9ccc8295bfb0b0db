// Package query filters and pages document collections using explicit,
// URL-serializable query values.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"folio/api/internal/lifecycle"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 200
	dateLayout      = "2006-01-02"
)

// DateField selects which timestamp a range applies to.
type DateField string

const (
	FieldCreated   DateField = "created"
	FieldUpdated   DateField = "updated"
	FieldDue       DateField = "due"
	FieldCompleted DateField = "completed"
)

func (f DateField) valid() bool {
	switch f {
	case FieldCreated, FieldUpdated, FieldDue, FieldCompleted:
		return true
	}
	return false
}

// DateRange is an inclusive day range. When To is nil the range covers only
// the day of From.
type DateRange struct {
	Field DateField
	From  time.Time
	To    *time.Time
}

func (r DateRange) bounds() (time.Time, time.Time) {
	start := lifecycle.StartOfDay(r.From)
	last := start
	if r.To != nil {
		last = lifecycle.StartOfDay(*r.To)
	}
	return start, last.Add(24 * time.Hour)
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	start, end := r.bounds()
	t = t.UTC()
	return !t.Before(start) && t.Before(end)
}

// Query is the full filter and paging request for a collection.
type Query struct {
	Text     string
	States   []lifecycle.State
	Dates    []DateRange
	Page     int
	PageSize int
}

// Page is one slice of a filtered collection.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// Matches reports whether doc satisfies every predicate of q.
func (q Query) Matches(doc lifecycle.Document) bool {
	if text := strings.ToLower(strings.TrimSpace(q.Text)); text != "" {
		haystack := []string{doc.Name, doc.Assignment.RecipientName, doc.Assignment.RecipientEmail}
		found := false
		for _, value := range haystack {
			if strings.Contains(strings.ToLower(value), text) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(q.States) > 0 {
		found := false
		for _, state := range q.States {
			if doc.State == state {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, r := range q.Dates {
		value := dateValue(doc, r.Field)
		if value == nil || !r.Contains(*value) {
			return false
		}
	}
	return true
}

func dateValue(doc lifecycle.Document, field DateField) *time.Time {
	switch field {
	case FieldCreated:
		return &doc.CreatedAt
	case FieldUpdated:
		return &doc.UpdatedAt
	case FieldDue:
		return doc.DueDate
	case FieldCompleted:
		return doc.CompletedAt
	}
	return nil
}

// Filter keeps the items whose document matches q, preserving order.
func Filter[T any](items []T, q Query, view func(T) lifecycle.Document) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if q.Matches(view(item)) {
			out = append(out, item)
		}
	}
	return out
}

// Apply filters items and then returns the requested page.
func Apply[T any](items []T, q Query, view func(T) lifecycle.Document) Page[T] {
	filtered := Filter(items, q, view)
	page, size := q.normalizedPaging()
	start := len(filtered)
	if page-1 <= len(filtered)/size {
		start = min((page-1)*size, len(filtered))
	}
	end := start + size
	if end > len(filtered) {
		end = len(filtered)
	}
	return Page[T]{Items: filtered[start:end], Total: len(filtered), Page: page, PageSize: size}
}

func (q Query) normalizedPaging() (int, int) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// FromValues parses a query string such as
// q=acme&state=sent&state=overdue&due=2024-01-01..2024-01-31&page=2.
// States are validated against the allowed set when it is non-empty.
func FromValues(values url.Values, allowed []lifecycle.State) (Query, error) {
	q := Query{Text: strings.TrimSpace(values.Get("q"))}
	for _, raw := range values["state"] {
		for _, part := range strings.Split(raw, ",") {
			state := lifecycle.State(strings.TrimSpace(part))
			if state == "" {
				continue
			}
			if len(allowed) > 0 && !containsState(allowed, state) {
				return Query{}, fmt.Errorf("unknown state %q", state)
			}
			q.States = append(q.States, state)
		}
	}
	for _, field := range []DateField{FieldCreated, FieldUpdated, FieldDue, FieldCompleted} {
		for _, raw := range values[string(field)] {
			r, err := parseRange(field, raw)
			if err != nil {
				return Query{}, err
			}
			q.Dates = append(q.Dates, r)
		}
	}
	var err error
	if q.Page, err = parseInt(values.Get("page")); err != nil {
		return Query{}, fmt.Errorf("page: %w", err)
	}
	if q.PageSize, err = parseInt(values.Get("pageSize")); err != nil {
		return Query{}, fmt.Errorf("pageSize: %w", err)
	}
	return q, nil
}

func parseInt(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	return n, nil
}

func parseRange(field DateField, raw string) (DateRange, error) {
	if !field.valid() {
		return DateRange{}, fmt.Errorf("unknown date field %q", field)
	}
	fromRaw, toRaw, hasTo := strings.Cut(strings.TrimSpace(raw), "..")
	from, err := time.Parse(dateLayout, fromRaw)
	if err != nil {
		return DateRange{}, fmt.Errorf("%s: invalid start date %q", field, fromRaw)
	}
	r := DateRange{Field: field, From: from}
	if hasTo && toRaw != "" {
		to, err := time.Parse(dateLayout, toRaw)
		if err != nil {
			return DateRange{}, fmt.Errorf("%s: invalid end date %q", field, toRaw)
		}
		if to.Before(from) {
			return DateRange{}, fmt.Errorf("%s: end date before start date", field)
		}
		r.To = &to
	}
	return r, nil
}

func containsState(states []lifecycle.State, state lifecycle.State) bool {
	for _, candidate := range states {
		if candidate == state {
			return true
		}
	}
	return false
}

// Values encodes q back into query-string form.
func (q Query) Values() url.Values {
	values := url.Values{}
	if q.Text != "" {
		values.Set("q", q.Text)
	}
	states := make([]string, 0, len(q.States))
	for _, state := range q.States {
		states = append(states, string(state))
	}
	sort.Strings(states)
	for _, state := range states {
		values.Add("state", state)
	}
	for _, r := range q.Dates {
		encoded := r.From.UTC().Format(dateLayout)
		if r.To != nil {
			encoded += ".." + r.To.UTC().Format(dateLayout)
		}
		values.Add(string(r.Field), encoded)
	}
	if q.Page > 1 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		values.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	return values
}
