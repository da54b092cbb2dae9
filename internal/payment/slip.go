package payment

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/pdf417"
	"github.com/go-pdf/fpdf"

	"github.com/fiskal-hr/pdv-assistant/internal/period"
)

// Slip page dimensions follow the standard Croatian payment-order form.
const (
	slipWidthMM  = 185.0
	slipHeightMM = 85.0
)

// Croatian state budget account for VAT payments.
const (
	stateBudgetIBAN = "HR1210010051863000160"
	stateBudgetName = "Državni proračun Republike Hrvatske"
	vatModel        = "HR68"
	vatPurposeCode  = "GOVT"
	vatRefPrefix    = "1201"
)

// ForPeriod builds the VAT payment instruction for one declaration group:
// the aggregate VAT due, payable to the state budget with the standard model
// and an OIB-based reference.
func ForPeriod(g *period.Group) Instruction {
	oib := period.OIB(g.Buyer.VATID)
	return Instruction{
		PayerName:        g.Buyer.Name,
		PayerAddress:     g.Buyer.Address,
		RecipientName:    stateBudgetName,
		RecipientAddress: "Katančićeva 5, Zagreb",
		RecipientIBAN:    stateBudgetIBAN,
		Amount:           g.TotalVAT,
		Currency:         g.Currency,
		Model:            vatModel,
		Reference:        fmt.Sprintf("%s-%s", vatRefPrefix, oib),
		PurposeCode:      vatPurposeCode,
		Description:      fmt.Sprintf("PDV za %s", g.Period),
	}
}

// Barcode encodes the payload as a PDF417 symbol sized for the slip.
func Barcode(payload string) ([]byte, error) {
	bc, err := pdf417.Encode(payload, 4)
	if err != nil {
		return nil, fmt.Errorf("encoding PDF417: %w", err)
	}
	scaled, err := barcode.Scale(bc, 580, 160)
	if err != nil {
		return nil, fmt.Errorf("scaling barcode: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("encoding barcode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// SlipPDF renders the instruction onto a 185x85mm payment-order page with
// the PDF417 code in the lower left, the way teller scanners expect it.
func SlipPDF(in Instruction) ([]byte, error) {
	payload := Encode(in)
	barcodePNG, err := Barcode(payload)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "L",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: slipWidthMM, Ht: slipHeightMM},
	})
	tr := pdf.UnicodeTranslatorFromDescriptor("cp1250")
	pdf.SetMargins(5, 5, 5)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	payerStreet, payerCity := splitAddress(in.PayerAddress)
	recipientStreet, recipientCity := splitAddress(in.RecipientAddress)

	label := func(x, y float64, s string) {
		pdf.SetFont("Helvetica", "", 5.5)
		pdf.SetXY(x, y)
		pdf.CellFormat(40, 2.5, tr(s), "", 0, "L", false, 0, "")
	}
	value := func(x, y, w float64, s string) {
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetXY(x, y)
		pdf.CellFormat(w, 4, tr(s), "", 0, "L", false, 0, "")
	}

	// Payer block.
	label(6, 6, "PLATITELJ / naziv i adresa")
	value(6, 9, 70, in.PayerName)
	value(6, 13, 70, payerStreet)
	value(6, 17, 70, payerCity)

	// Amount box, top right.
	label(112, 6, "VALUTA")
	value(112, 9, 16, in.Currency)
	label(134, 6, "IZNOS")
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetXY(134, 9)
	pdf.CellFormat(44, 5, "="+formatAmount(in.Amount), "1", 0, "R", false, 0, "")

	// Recipient block.
	label(6, 26, "PRIMATELJ / naziv i adresa")
	value(6, 29, 70, in.RecipientName)
	value(6, 33, 70, recipientStreet)
	value(6, 37, 70, recipientCity)

	label(112, 26, "IBAN PRIMATELJA")
	pdf.SetFont("Courier", "", 9)
	pdf.SetXY(112, 29)
	pdf.CellFormat(66, 4.5, in.RecipientIBAN, "1", 0, "C", false, 0, "")

	label(112, 36, "MODEL I POZIV NA BROJ PRIMATELJA")
	pdf.SetFont("Courier", "", 9)
	pdf.SetXY(112, 39)
	pdf.CellFormat(14, 4.5, in.Model, "1", 0, "C", false, 0, "")
	pdf.SetXY(128, 39)
	pdf.CellFormat(50, 4.5, in.Reference, "1", 0, "C", false, 0, "")

	label(112, 46, "ŠIFRA NAMJENE")
	value(112, 49, 16, in.PurposeCode)
	label(134, 46, "OPIS PLAĆANJA")
	value(134, 49, 44, in.Description)

	// Machine-readable symbol, lower left.
	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("hub3-barcode", opts, bytes.NewReader(barcodePNG))
	pdf.ImageOptions("hub3-barcode", 6, 58, 58, 16, false, opts, 0, "")

	pdf.SetFont("Helvetica", "", 5.5)
	pdf.SetXY(6, 76)
	pdf.CellFormat(100, 2.5, tr("Obrazac HUB3A generirao pdv-assistant"), "", 0, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing slip PDF: %w", err)
	}
	return buf.Bytes(), nil
}
