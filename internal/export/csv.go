package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"folio/api/internal/lifecycle"
	"folio/api/internal/receipt"
	"folio/api/internal/store"
)

var csvHeader = []string{
	"id", "name", "state", "recipient_name", "recipient_email",
	"due_date", "completed_at", "created_at", "total",
}

func renderCSV(ctx context.Context, docs []store.Document, progress ProgressFunc) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := w.Write(csvRow(doc)); err != nil {
			return nil, fmt.Errorf("write csv row %s: %w", doc.ID, err)
		}
		progress.report(i+1, len(docs))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func csvRow(doc store.Document) []string {
	total := ""
	if doc.Kind == lifecycle.KindReceipt {
		total = receipt.Compute(doc.LineItems, doc.Rates).Total.StringFixed(2)
	}
	return []string{
		doc.ID,
		csvText(doc.Name),
		string(doc.State),
		csvText(doc.Assignment.RecipientName),
		csvText(doc.Assignment.RecipientEmail),
		formatDate(doc.DueDate, "2006-01-02"),
		formatDate(doc.CompletedAt, time.RFC3339),
		doc.CreatedAt.UTC().Format(time.RFC3339),
		total,
	}
}

// csvText quotes free text that a spreadsheet would read as a formula.
func csvText(value string) string {
	if value != "" && strings.ContainsRune("=+-@\t\r", rune(value[0])) {
		return "'" + value
	}
	return value
}

func formatDate(t *time.Time, layout string) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(layout)
}
