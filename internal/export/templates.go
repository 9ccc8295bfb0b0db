package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"folio/api/internal/lifecycle"
	"folio/api/internal/receipt"
	"folio/api/internal/store"
)

//go:embed templates/export.html
var templateFS embed.FS

var exportTemplate = template.Must(
	template.New("export.html").
		Funcs(template.FuncMap{
			"formatDate": func(t time.Time, layout string) string { return t.Format(layout) },
		}).
		ParseFS(templateFS, "templates/export.html"),
)

// TemplateData holds data for the batch PDF page.
type TemplateData struct {
	Title       string
	GeneratedAt time.Time
	Documents   []TemplateDocument
}

type TemplateDocument struct {
	Name           string
	State          string
	RecipientName  string
	RecipientEmail string
	DueDate        string
	CompletedAt    string
	Notes          string
	Progress       lifecycle.Progress
	IsReceipt      bool
	Items          []TemplateItem
	Totals         TemplateTotals
}

type TemplateItem struct {
	Position    int
	Description string
	Quantity    string
	UnitPrice   string
	Total       string
}

// TemplateTotals carries formatted amounts; empty strings hide a row.
type TemplateTotals struct {
	Subtotal string
	Tax      string
	VAT      string
	Discount string
	Total    string
}

var printer = message.NewPrinter(language.English)

// formatMoney renders amount with thousands grouping and two decimals,
// prefixed by the ISO currency code.
func formatMoney(currency string, amount decimal.Decimal) string {
	if currency == "" {
		currency = "USD"
	}
	return printer.Sprintf("%s %.2f", currency, amount.Round(2).InexactFloat64())
}

func templateDocument(doc store.Document, progress lifecycle.Progress) TemplateDocument {
	td := TemplateDocument{
		Name:           doc.Name,
		State:          string(doc.State),
		RecipientName:  doc.Assignment.RecipientName,
		RecipientEmail: doc.Assignment.RecipientEmail,
		DueDate:        formatDate(doc.DueDate, "Jan 2, 2006"),
		CompletedAt:    formatDate(doc.CompletedAt, "Jan 2, 2006"),
		Notes:          doc.Notes,
		Progress:       progress,
		IsReceipt:      doc.Kind == lifecycle.KindReceipt,
	}
	if !td.IsReceipt {
		return td
	}
	for _, item := range receipt.Renumber(doc.LineItems) {
		td.Items = append(td.Items, TemplateItem{
			Position:    item.Position,
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			UnitPrice:   formatMoney(doc.Currency, item.UnitPrice),
			Total:       formatMoney(doc.Currency, item.Total()),
		})
	}
	totals := receipt.Compute(doc.LineItems, doc.Rates)
	td.Totals = TemplateTotals{
		Subtotal: formatMoney(doc.Currency, totals.Subtotal),
		Total:    formatMoney(doc.Currency, totals.Total),
	}
	if doc.Rates.Tax.Enabled {
		td.Totals.Tax = formatMoney(doc.Currency, totals.Tax)
	}
	if doc.Rates.VAT.Enabled {
		td.Totals.VAT = formatMoney(doc.Currency, totals.VAT)
	}
	if doc.Rates.Discount.Enabled {
		td.Totals.Discount = formatMoney(doc.Currency, totals.Discount)
	}
	return td
}

// RenderHTML renders the batch page.
func RenderHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := exportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
