// Package payment serializes payment instructions into the Croatian HUB3
// fixed-field payload and renders it as a scannable payment-order slip.
package payment

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Instruction is one payment order. Addresses are given as a single line;
// the encoder splits them into street and locality at the last comma.
type Instruction struct {
	PayerName        string          `json:"payer_name"`
	PayerAddress     string          `json:"payer_address"`
	RecipientName    string          `json:"recipient_name"`
	RecipientAddress string          `json:"recipient_address"`
	RecipientIBAN    string          `json:"recipient_iban"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Model            string          `json:"model"`
	Reference        string          `json:"reference"`
	PurposeCode      string          `json:"purpose_code"`
	Description      string          `json:"description"`
}

const (
	formatMarker   = "HRVHUB30"
	versionMarker  = "01"
	encodingMarker = "UTF-8"
)

// Free-text field widths are fixed by the payload format; longer input is
// silently truncated, never rejected.
const (
	maxPayerName     = 25
	maxPayerStreet   = 25
	maxPayerCity     = 27
	maxRecipientName = 25
	maxRecipientStr  = 25
	maxRecipientCity = 27
	maxDescription   = 35
)

// translitTable folds diacritics to their base Latin letter. Croatian letters
// first, then the common western European set.
var translitTable = map[rune]string{
	'č': "c", 'ć': "c", 'đ': "d", 'š': "s", 'ž': "z",
	'Č': "C", 'Ć': "C", 'Đ': "D", 'Š': "S", 'Ž': "Z",
	'ä': "a", 'ö': "o", 'ü': "u", 'ß': "ss",
	'Ä': "A", 'Ö': "O", 'Ü': "U",
	'á': "a", 'à': "a", 'â': "a", 'é': "e", 'è': "e", 'ê': "e",
	'í': "i", 'ì': "i", 'î': "i", 'ó': "o", 'ò': "o", 'ô': "o",
	'ú': "u", 'ù': "u", 'û': "u", 'ñ': "n", 'ç': "c",
	'Á': "A", 'À': "A", 'Â': "A", 'É': "E", 'È': "E", 'Ê': "E",
	'Í': "I", 'Ì': "I", 'Î': "I", 'Ó': "O", 'Ò': "O", 'Ô': "O",
	'Ú': "U", 'Ù': "U", 'Û': "U", 'Ñ': "N", 'Ç': "C",
}

// sanitize transliterates diacritics, drops every character outside
// [A-Za-z0-9 .,-] and truncates to the field width.
func sanitize(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if repl, ok := translitTable[r]; ok {
			b.WriteString(repl)
			continue
		}
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return strings.TrimSpace(out)
}

// splitAddress separates a one-line address into street and locality at the
// last comma. Without a comma the whole line is the street.
func splitAddress(addr string) (street, city string) {
	if i := strings.LastIndex(addr, ","); i >= 0 {
		return strings.TrimSpace(addr[:i]), strings.TrimSpace(addr[i+1:])
	}
	return strings.TrimSpace(addr), ""
}

// formatAmount renders a fixed-point amount with a literal decimal comma, at
// least two decimals, no thousands separator and no sign.
func formatAmount(d decimal.Decimal) string {
	return strings.Replace(d.Abs().StringFixed(2), ".", ",", 1)
}

// Encode serializes the instruction into the 16-field newline-delimited HUB3
// payload. The function is total: fields are sanitized and truncated rather
// than rejected, and identical input always yields identical bytes.
func Encode(in Instruction) string {
	payerStreet, payerCity := splitAddress(in.PayerAddress)
	recipientStreet, recipientCity := splitAddress(in.RecipientAddress)

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "EUR"
	}

	fields := []string{
		formatMarker,
		versionMarker,
		encodingMarker,
		currency,
		formatAmount(in.Amount),
		sanitize(in.PayerName, maxPayerName),
		sanitize(payerStreet, maxPayerStreet),
		sanitize(payerCity, maxPayerCity),
		sanitize(in.RecipientName, maxRecipientName),
		sanitize(recipientStreet, maxRecipientStr),
		sanitize(recipientCity, maxRecipientCity),
		strings.ToUpper(strings.TrimSpace(in.RecipientIBAN)),
		strings.ToUpper(strings.TrimSpace(in.Model)),
		strings.TrimSpace(in.Reference),
		strings.ToUpper(strings.TrimSpace(in.PurposeCode)),
		sanitize(in.Description, maxDescription),
	}
	return strings.Join(fields, "\n")
}
