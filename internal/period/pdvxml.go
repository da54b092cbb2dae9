package period

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// The declaration payloads follow the fixed e-Porezna template shape: a
// metadata block with a unique submission identifier, a header identifying
// the taxpayer and the filing period, and a body carrying the aggregate
// amounts at stable element paths.

const (
	pdvNamespace  = "http://e-porezna.porezna-uprava.hr/sheme/zahtjevi/ObrazacPDV/v9-0"
	pdvsNamespace = "http://e-porezna.porezna-uprava.hr/sheme/zahtjevi/ObrazacPDVS/v3-0"
)

type metadata struct {
	Identifier string `xml:"Identifikator"`
	Created    string `xml:"Datum"`
	Author     string `xml:"Autor"`
}

type taxpayer struct {
	OIB     string `xml:"OIB"`
	Name    string `xml:"Naziv"`
	Address string `xml:"Adresa"`
}

type filingPeriod struct {
	From string `xml:"DatumOd"`
	To   string `xml:"DatumDo"`
}

type pdvHeader struct {
	Period   filingPeriod `xml:"Razdoblje"`
	Taxpayer taxpayer     `xml:"Obveznik"`
}

// pdvBody carries only the reverse-charge positions: II.1.3 (acquisitions of
// goods and services from other EU member states) and III.1.3 (input VAT on
// those acquisitions).
type pdvBody struct {
	EUAcquisitionsBase string `xml:"OporeziveTransakcije>StjecanjeDobaraIUslugaEU>Osnovica"`
	EUAcquisitionsVAT  string `xml:"Pretporez>PretporezStjecanjeEU>Iznos"`
}

type pdvDeclaration struct {
	XMLName  xml.Name  `xml:"ObrazacPDV"`
	Xmlns    string    `xml:"xmlns,attr"`
	Version  string    `xml:"verzijaSheme,attr"`
	Metadata metadata  `xml:"Metapodaci"`
	Header   pdvHeader `xml:"Zaglavlje"`
	Body     pdvBody   `xml:"Tijelo"`
}

type pdvsAcquisition struct {
	Ordinal     int    `xml:"RedniBroj"`
	Kind        string `xml:"VrstaStjecanja"` // "a" for services under art. 17(1)
	SupplierVAT string `xml:"PDVIdBroj"`
	Supplier    string `xml:"NazivDobavljaca"`
	Value       string `xml:"Vrijednost"`
}

type pdvsBody struct {
	Acquisitions []pdvsAcquisition `xml:"Stjecanja>Stjecanje"`
	Total        string            `xml:"Ukupno"`
}

type pdvsDeclaration struct {
	XMLName  xml.Name  `xml:"ObrazacPDVS"`
	Xmlns    string    `xml:"xmlns,attr"`
	Version  string    `xml:"verzijaSheme,attr"`
	Metadata metadata  `xml:"Metapodaci"`
	Header   pdvHeader `xml:"Zaglavlje"`
	Body     pdvsBody  `xml:"Tijelo"`
}

// OIB strips the country prefix from a Croatian VAT ID; the forms want the
// bare 11-digit number.
func OIB(vatID string) string {
	return strings.TrimPrefix(strings.TrimSpace(vatID), "HR")
}

// periodBounds expands a YYYY-MM key to the first and last day of the month.
func periodBounds(period string) (from, to string, err error) {
	t, err := time.Parse("2006-01", period)
	if err != nil {
		return "", "", fmt.Errorf("invalid period %q: %w", period, err)
	}
	first := t
	last := t.AddDate(0, 1, -1)
	return first.Format("2006-01-02"), last.Format("2006-01-02"), nil
}

func marshalDeclaration(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding declaration: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func newMetadata(now time.Time) metadata {
	return metadata{
		Identifier: uuid.NewString(),
		Created:    now.Format(time.RFC3339),
		Author:     "pdv-assistant",
	}
}

// EncodePDV produces the main PDV declaration XML for one declaration group.
func EncodePDV(g *Group, now time.Time) ([]byte, error) {
	from, to, err := periodBounds(g.Period)
	if err != nil {
		return nil, err
	}
	decl := pdvDeclaration{
		Xmlns:    pdvNamespace,
		Version:  "9.0",
		Metadata: newMetadata(now),
		Header: pdvHeader{
			Period: filingPeriod{From: from, To: to},
			Taxpayer: taxpayer{
				OIB:     OIB(g.Buyer.VATID),
				Name:    g.Buyer.Name,
				Address: g.Buyer.Address,
			},
		},
		Body: pdvBody{
			EUAcquisitionsBase: g.TotalBase.StringFixed(2),
			EUAcquisitionsVAT:  g.TotalVAT.StringFixed(2),
		},
	}
	return marshalDeclaration(decl)
}

// EncodePDVS produces the PDV-S (EU acquisitions) declaration XML for one
// declaration group.
func EncodePDVS(g *Group, now time.Time) ([]byte, error) {
	from, to, err := periodBounds(g.Period)
	if err != nil {
		return nil, err
	}
	decl := pdvsDeclaration{
		Xmlns:    pdvsNamespace,
		Version:  "3.0",
		Metadata: newMetadata(now),
		Header: pdvHeader{
			Period: filingPeriod{From: from, To: to},
			Taxpayer: taxpayer{
				OIB:     OIB(g.Buyer.VATID),
				Name:    g.Buyer.Name,
				Address: g.Buyer.Address,
			},
		},
		Body: pdvsBody{
			Acquisitions: []pdvsAcquisition{
				{
					Ordinal:     1,
					Kind:        "a",
					SupplierVAT: g.Supplier.VATID,
					Supplier:    fmt.Sprintf("%s, %s", g.Supplier.Name, g.Supplier.Address),
					Value:       g.TotalBase.StringFixed(2),
				},
			},
			Total: g.TotalBase.StringFixed(2),
		},
	}
	return marshalDeclaration(decl)
}
