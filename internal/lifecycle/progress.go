package lifecycle

import (
	"fmt"
	"strings"
	"time"
)

// Progress is the completion summary shown next to a document.
type Progress struct {
	Percent int    `json:"percent"`
	Label   string `json:"label"`
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// PastDue reports whether doc's due date falls before the start of now's day.
func PastDue(doc Document, now time.Time) bool {
	return doc.DueDate != nil && doc.DueDate.UTC().Before(StartOfDay(now))
}

// Progress computes the percentage and label for doc at now.
func (e *Engine) Progress(doc Document) Progress {
	return ComputeProgress(e.tables, doc, e.now())
}

// ComputeProgress maps a document's state and due date to a progress summary.
func ComputeProgress(tables Tables, doc Document, now time.Time) Progress {
	table, ok := tables[doc.Kind]
	if !ok {
		return Progress{Label: "Unknown"}
	}
	percent := table.Progress[doc.State]
	if table.Overdue != nil && doc.State == table.Overdue.From && table.ProgressPastDue != nil && PastDue(doc, now) {
		percent = *table.ProgressPastDue
	}
	label := stateLabel(doc.State)
	if table.Overdue != nil && (doc.State == table.Overdue.From || doc.State == table.Overdue.To) {
		if due := dueLabel(doc, now); due != "" {
			label = label + " · " + due
		}
	}
	return Progress{Percent: percent, Label: label}
}

func stateLabel(state State) string {
	value := strings.ReplaceAll(string(state), "_", " ")
	if value == "" {
		return ""
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

func dueLabel(doc Document, now time.Time) string {
	if doc.DueDate == nil {
		return ""
	}
	days := int(StartOfDay(*doc.DueDate).Sub(StartOfDay(now)).Hours() / 24)
	switch {
	case days == 0:
		return "due today"
	case days == 1:
		return "due tomorrow"
	case days > 1:
		return fmt.Sprintf("due in %d days", days)
	case days == -1:
		return "overdue by 1 day"
	default:
		return fmt.Sprintf("overdue by %d days", -days)
	}
}

// CheckOverdue moves doc to the kind's overdue state when it is still waiting
// on the recipient past its due date. The second return value reports whether
// the document changed.
func (e *Engine) CheckOverdue(doc Document) (Document, bool) {
	table, ok := e.tables[doc.Kind]
	if !ok || table.Overdue == nil {
		return doc, false
	}
	now := e.now()
	if doc.State != table.Overdue.From || !PastDue(doc, now) {
		return doc, false
	}
	doc.State = table.Overdue.To
	doc.UpdatedAt = now
	return doc, true
}
