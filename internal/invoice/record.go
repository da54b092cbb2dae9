package invoice

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Meta describes the provenance of a parsed record.
type Meta struct {
	ParsedAt      string `json:"parsed_at"`
	SourceFile    string `json:"source_file"`
	ParserVersion string `json:"parser_version"`
	AuditHash     string `json:"audit_hash"`
}

// Supplier identifies the invoice issuer.
type Supplier struct {
	Name         string `json:"name"`
	Address      string `json:"address"`
	VATID        string `json:"vat_id"`
	IsEUVATValid bool   `json:"is_eu_vat_valid"`
}

// Buyer identifies the invoice recipient (the taxpayer).
type Buyer struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	VATID   string `json:"vat_id"`
}

// Details holds the core invoice identification fields.
type Details struct {
	InvoiceNumber     string `json:"invoice_number"`
	InvoiceDate       string `json:"invoice_date"` // YYYY-MM-DD
	ServicePeriodFrom string `json:"service_period_from"`
	ServicePeriodTo   string `json:"service_period_to"`
	Currency          string `json:"currency"`
}

// LineItem is one billed item on the invoice.
type LineItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Calculations holds the reverse-charge VAT figures derived from the line items.
type Calculations struct {
	CommissionBase         decimal.Decimal `json:"commission_base"`
	VATRatePercent         decimal.Decimal `json:"vat_rate_percent"`
	VATAmount              decimal.Decimal `json:"vat_amount"`
	CommissionTotalWithVAT decimal.Decimal `json:"commission_total_with_vat"`
	Notes                  string          `json:"notes"`
}

// Actions holds the recommended follow-up actions for the taxpayer.
type Actions struct {
	ReverseChargeApplies   bool   `json:"reverse_charge_applies"`
	InstructionsForPDVForm string `json:"instructions_for_pdv_form"`
	ManualReviewRequired   bool   `json:"manual_review_required"`
}

// Record is one parsed invoice. It is produced whole by the extractor and
// only ever replaced whole on a manual edit; individual fields are never
// mutated in place.
type Record struct {
	Meta         Meta         `json:"meta"`
	Supplier     Supplier     `json:"supplier"`
	Buyer        Buyer        `json:"buyer"`
	Invoice      Details      `json:"invoice"`
	LineItems    []LineItem   `json:"line_items"`
	Calculations Calculations `json:"calculations"`
	Actions      Actions      `json:"actions"`
	Errors       []string     `json:"errors"`
}

// PeriodKey returns the calendar month of issuance (YYYY-MM), the grouping
// key for declarations. Empty when the issue date is too short to carry one.
func (r *Record) PeriodKey() string {
	if len(r.Invoice.InvoiceDate) < 7 {
		return ""
	}
	return r.Invoice.InvoiceDate[:7]
}

// commissionKeywords mark line items that enter the VAT base. Croatian and
// English variants; matched case-insensitively as substrings so that
// "Rezervacije" and "reservation fee" both qualify.
var commissionKeywords = []string{
	"provizij",
	"commission",
	"rezervacij",
	"reservation",
}

// IsCommissionItem reports whether a line-item description counts toward the
// VAT base.
func IsCommissionItem(description string) bool {
	d := strings.ToLower(description)
	for _, kw := range commissionKeywords {
		if strings.Contains(d, kw) {
			return true
		}
	}
	return false
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Recompute derives the VAT figures from a line-item list and a rate percent:
// the base is the unrounded sum of all commission items, the VAT amount is
// round2(base*rate/100) and the total is round2(base+vat). Running it twice
// over its own output changes nothing.
func Recompute(items []LineItem, ratePercent decimal.Decimal) (base, vat, total decimal.Decimal) {
	base = decimal.Zero
	for _, it := range items {
		if IsCommissionItem(it.Description) {
			base = base.Add(it.Amount)
		}
	}
	vat = round2(base.Mul(ratePercent).Div(decimal.NewFromInt(100)))
	total = round2(base.Add(vat))
	base = round2(base)
	return base, vat, total
}

// FieldError reports a validation failure for a single editable field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries per-field failures for an edit that must be
// rejected as a whole; no partial commit happens.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return fmt.Sprintf("validation failed: %s: %s", e.Fields[0].Field, e.Fields[0].Message)
	}
	return fmt.Sprintf("validation failed: %d fields invalid", len(e.Fields))
}

// LineItemEdit is one edited line item with the amount still in text form,
// as submitted by the caller.
type LineItemEdit struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// ParseLineItems validates edited line items. Every amount must parse as a
// non-negative decimal; failures are reported per field and no items are
// returned alongside an error.
func ParseLineItems(edits []LineItemEdit) ([]LineItem, error) {
	items := make([]LineItem, 0, len(edits))
	var verr ValidationError
	for i, e := range edits {
		field := fmt.Sprintf("line_items[%d].amount", i)
		amount, err := decimal.NewFromString(strings.TrimSpace(e.Amount))
		if err != nil {
			verr.Fields = append(verr.Fields, FieldError{Field: field, Message: fmt.Sprintf("%q is not a valid amount", e.Amount)})
			continue
		}
		if amount.IsNegative() {
			verr.Fields = append(verr.Fields, FieldError{Field: field, Message: "amount must not be negative"})
			continue
		}
		items = append(items, LineItem{Description: e.Description, Amount: amount})
	}
	if len(verr.Fields) > 0 {
		return nil, &verr
	}
	return items, nil
}

// ValidateRecord checks an edited record before it replaces the stored one.
// Line-item amounts and the rate must be non-negative.
func ValidateRecord(rec *Record) error {
	var verr ValidationError
	for i, it := range rec.LineItems {
		if it.Amount.IsNegative() {
			verr.Fields = append(verr.Fields, FieldError{
				Field:   fmt.Sprintf("line_items[%d].amount", i),
				Message: "amount must not be negative",
			})
		}
	}
	if rec.Calculations.VATRatePercent.IsNegative() {
		verr.Fields = append(verr.Fields, FieldError{
			Field:   "calculations.vat_rate_percent",
			Message: "rate must not be negative",
		})
	}
	if len(verr.Fields) > 0 {
		return &verr
	}
	return nil
}

// ApplyCalculations recomputes the derived VAT figures on a record in place,
// preserving the notes. Call after every accepted edit.
func ApplyCalculations(rec *Record) {
	base, vat, total := Recompute(rec.LineItems, rec.Calculations.VATRatePercent)
	rec.Calculations.CommissionBase = base
	rec.Calculations.VATAmount = vat
	rec.Calculations.CommissionTotalWithVAT = total
}
