package export

import (
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"folio/api/internal/blob"
	"folio/api/internal/lifecycle"
	"folio/api/internal/receipt"
	"folio/api/internal/store"
)

var fixedNow = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func sampleReceipt() store.Document {
	due := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	return store.Document{
		Document: lifecycle.Document{
			ID:    "r-1",
			Kind:  lifecycle.KindReceipt,
			Name:  "March consulting",
			State: lifecycle.StateSent,
			Assignment: lifecycle.Assignment{
				RecipientName:  "Jane Doe",
				RecipientEmail: "jane@example.com",
			},
			DueDate:   &due,
			CreatedAt: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		},
		Currency: "USD",
		Rates: receipt.Rates{
			Tax:      receipt.Rate{Enabled: true, Percent: decimal.NewFromInt(5)},
			Discount: receipt.Rate{Enabled: true, Percent: decimal.NewFromInt(10)},
		},
		LineItems: []receipt.LineItem{
			{ID: "li-1", Position: 1, Description: "Workshop", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1000)},
			{ID: "li-2", Position: 2, Description: "Travel", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(117)},
		},
	}
}

func sampleFeedback() store.Document {
	return store.Document{Document: lifecycle.Document{
		ID:        "f-1",
		Kind:      lifecycle.KindFeedback,
		Name:      "Quarterly, review",
		State:     lifecycle.StateDraft,
		CreatedAt: time.Date(2024, 1, 20, 8, 30, 0, 0, time.UTC),
	}}
}

func newService(opts ...Option) *Service {
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewService(lifecycle.MustDefault(), nil, opts...)
}

func TestExportCSV(t *testing.T) {
	var calls [][2]int
	svc := newService()

	result, err := svc.Export(context.Background(), Request{
		Kind:      lifecycle.KindReceipt,
		Format:    FormatCSV,
		Documents: []store.Document{sampleReceipt(), sampleFeedback()},
		Progress:  func(done, total int) { calls = append(calls, [2]int{done, total}) },
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Filename != "receipts-2024-02-01.csv" || result.MimeType != "text/csv" || result.Count != 2 {
		t.Fatalf("unexpected result metadata %+v", result)
	}

	records, err := csv.NewReader(strings.NewReader(string(result.Data))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(csvHeader, ",") {
		t.Fatalf("unexpected header %v", records[0])
	}
	receiptRow := records[1]
	// 1234 subtotal + 5% tax - 10% discount = 1172.30
	if receiptRow[8] != "1172.30" {
		t.Fatalf("expected receipt total 1172.30, got %q", receiptRow[8])
	}
	if receiptRow[5] != "2024-02-10" || receiptRow[4] != "jane@example.com" {
		t.Fatalf("unexpected receipt row %v", receiptRow)
	}
	feedbackRow := records[2]
	if feedbackRow[1] != "Quarterly, review" || feedbackRow[8] != "" || feedbackRow[5] != "" {
		t.Fatalf("unexpected feedback row %v", feedbackRow)
	}

	if len(calls) != 2 || calls[0] != [2]int{1, 2} || calls[1] != [2]int{2, 2} {
		t.Fatalf("unexpected progress calls %v", calls)
	}
}

func TestExportCSVNeutralisesFormulas(t *testing.T) {
	doc := sampleFeedback()
	doc.Name = "=HYPERLINK(\"http://evil\")"
	doc.Assignment.RecipientName = "@SUM(A1)"
	doc.Assignment.RecipientEmail = "-1+1@example.com"

	result, err := newService().Export(context.Background(), Request{
		Kind:      lifecycle.KindFeedback,
		Format:    FormatCSV,
		Documents: []store.Document{doc},
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(string(result.Data))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	row := records[1]
	for i, want := range map[int]string{1: "'=HYPERLINK(\"http://evil\")", 3: "'@SUM(A1)", 4: "'-1+1@example.com"} {
		if row[i] != want {
			t.Errorf("column %s = %q, want %q", csvHeader[i], row[i], want)
		}
	}
	if row[0] != "f-1" || row[2] != "draft" {
		t.Errorf("id and state are written as-is: %v", row)
	}
}

func TestExportPDFRendersHTML(t *testing.T) {
	var captured string
	svc := newService(WithPDFRenderer(func(_ context.Context, html string) ([]byte, error) {
		captured = html
		return []byte("%PDF-1.7"), nil
	}))

	result, err := svc.Export(context.Background(), Request{
		Kind:      lifecycle.KindReceipt,
		Format:    FormatPDF,
		Title:     "March receipts",
		Documents: []store.Document{sampleReceipt()},
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Filename != "March-receipts.pdf" || result.MimeType != "application/pdf" {
		t.Fatalf("unexpected result metadata %+v", result)
	}
	if string(result.Data) != "%PDF-1.7" {
		t.Fatalf("unexpected pdf bytes %q", result.Data)
	}
	for _, want := range []string{"March consulting", "Workshop", "USD", "Jane Doe", "sent"} {
		if !strings.Contains(captured, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestExportErrors(t *testing.T) {
	svc := newService()

	if _, err := svc.Export(context.Background(), Request{Format: FormatCSV}); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	_, err := svc.Export(context.Background(), Request{Format: "docx", Documents: []store.Document{sampleFeedback()}})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Export(ctx, Request{Format: FormatCSV, Documents: []store.Document{sampleFeedback()}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type fakeUploader struct {
	key         string
	contentType string
	err         error
}

func (f *fakeUploader) Put(_ context.Context, key string, data []byte, contentType string) (blob.Object, error) {
	if f.err != nil {
		return blob.Object{}, f.err
	}
	f.key = key
	f.contentType = contentType
	return blob.Object{Key: key, Size: int64(len(data)), URL: "https://s3.local/" + key}, nil
}

func TestPublish(t *testing.T) {
	result := &Result{Data: []byte("a,b\n"), Filename: "feedback.csv", MimeType: "text/csv"}

	disabled := newService()
	obj, err := disabled.Publish(context.Background(), "org-1", result)
	if err != nil || obj != nil {
		t.Fatalf("expected no-op publish, got %+v %v", obj, err)
	}

	uploader := &fakeUploader{}
	svc := newService(WithUploader(uploader))
	if !svc.CanUpload() {
		t.Fatal("expected uploads enabled")
	}
	obj, err = svc.Publish(context.Background(), "org-1", result)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if uploader.key != "exports/org-1/2024/02/01/120000-feedback.csv" || uploader.contentType != "text/csv" {
		t.Fatalf("unexpected upload key=%q type=%q", uploader.key, uploader.contentType)
	}
	if obj.Size != 4 {
		t.Fatalf("unexpected object %+v", obj)
	}

	failing := newService(WithUploader(&fakeUploader{err: errors.New("s3 down")}))
	if _, err := failing.Publish(context.Background(), "org-1", result); err == nil {
		t.Fatal("expected upload error")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatCSV},
		{in: "CSV", want: FormatCSV},
		{in: " pdf ", want: FormatPDF},
		{in: "docx", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("ParseFormat(%q) expected error, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Receipt v1.2", "My-Receipt-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "export"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := sanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := percentEncodeForDataURL(tt.input); got != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatMoney(t *testing.T) {
	got := formatMoney("", decimal.RequireFromString("1234.5"))
	if !strings.HasPrefix(got, "USD ") || !strings.HasSuffix(got, ".50") {
		t.Fatalf("unexpected money format %q", got)
	}
}
