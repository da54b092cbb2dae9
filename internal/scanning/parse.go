package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fiskal-hr/pdv-assistant/internal/invoice"
)

// parseInvoiceJSON turns a model response into a record. Markdown fences and
// any chatter around the JSON object are stripped first; missing required
// fields make the whole response a schema failure.
func parseInvoiceJSON(filename, text string) (*invoice.Record, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var rec invoice.Record
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	if err := checkSchema(&rec); err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	rec.Invoice.InvoiceDate = normalizeDate(rec.Invoice.InvoiceDate)
	rec.Invoice.ServicePeriodFrom = normalizeDate(rec.Invoice.ServicePeriodFrom)
	rec.Invoice.ServicePeriodTo = normalizeDate(rec.Invoice.ServicePeriodTo)

	if rec.Meta.SourceFile == "" {
		rec.Meta.SourceFile = filename
	}
	if rec.Meta.ParsedAt == "" {
		rec.Meta.ParsedAt = time.Now().Format(time.RFC3339)
	}
	if rec.Meta.ParserVersion == "" {
		rec.Meta.ParserVersion = ParserVersion
	}
	if rec.Invoice.Currency == "" {
		rec.Invoice.Currency = "EUR"
	}
	if rec.Errors == nil {
		rec.Errors = []string{}
	}

	// The model is told to do the arithmetic itself, but the invariants are
	// ours to keep.
	invoice.ApplyCalculations(&rec)

	return &rec, nil
}

// checkSchema enforces the fields the response schema marks required. A
// record without them cannot drive aggregation or declarations.
func checkSchema(rec *invoice.Record) error {
	switch {
	case rec.Invoice.InvoiceNumber == "":
		return fmt.Errorf("missing invoice_number")
	case rec.Invoice.InvoiceDate == "":
		return fmt.Errorf("missing invoice_date")
	case rec.Supplier.Name == "":
		return fmt.Errorf("missing supplier name")
	case rec.Buyer.Name == "":
		return fmt.Errorf("missing buyer name")
	}
	return nil
}

// normalizeDate coerces the common date shapes the model emits into
// YYYY-MM-DD. Unparseable values pass through untouched; the record-level
// errors field carries the diagnosis in that case.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return s
	}
	formats := []string{
		"2006/01/02",
		"02.01.2006",
		"02.01.2006.",
		"01/02/2006",
		"02-01-2006",
	}
	for _, format := range formats {
		if d, err := time.Parse(format, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return s
}
