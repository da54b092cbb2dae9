package render

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"github.com/fiskal-hr/pdv-assistant/internal/period"
)

// PageRenderer draws the templates onto A4 pages and rasterizes them. Layout
// is settled by construction: the page is only rasterized after the drawing
// calls have all completed.
type PageRenderer struct{}

// NewPageRenderer returns the default page renderer.
func NewPageRenderer() *PageRenderer {
	return &PageRenderer{}
}

// Render dispatches on the template tag and returns the settled page as PNG.
func (r *PageRenderer) Render(ctx context.Context, tmpl Template, in Input) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	var pdfBytes []byte
	var err error
	switch tmpl {
	case TemplateReport:
		pdfBytes, err = reportPage(in)
	case TemplateSummary:
		pdfBytes, err = summaryPage(in)
	case TemplateDeclarationStatement:
		pdfBytes, err = statementPage(in)
	case TemplateInstructions:
		pdfBytes, err = instructionsPage(in)
	case TemplateTaxForm:
		pdfBytes, err = taxFormPage(in)
	default:
		return nil, fmt.Errorf("unknown template %s", tmpl)
	}
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", tmpl, err)
	}
	return rasterize(pdfBytes)
}

// rasterize renders the first page of the drawn PDF to PNG.
func rasterize(pdfBytes []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfBytes)
	if err != nil {
		return nil, fmt.Errorf("opening rendered page: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rasterizing rendered page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding rendered page: %w", err)
	}
	return buf.Bytes(), nil
}

type page struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func newPage() *page {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("cp1250")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	return &page{pdf: pdf, tr: tr}
}

func (p *page) output() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *page) title(s string) {
	p.pdf.SetFont("Helvetica", "B", 16)
	p.pdf.SetTextColor(30, 64, 175)
	p.pdf.CellFormat(0, 9, p.tr(s), "", 1, "L", false, 0, "")
	p.pdf.SetTextColor(0, 0, 0)
}

func (p *page) subtitle(s string) {
	p.pdf.SetFont("Helvetica", "", 9)
	p.pdf.SetTextColor(100, 116, 139)
	p.pdf.CellFormat(0, 5, p.tr(s), "", 1, "L", false, 0, "")
	p.pdf.SetTextColor(0, 0, 0)
	p.pdf.Ln(3)
}

func (p *page) section(s string) {
	p.pdf.Ln(2)
	p.pdf.SetFont("Helvetica", "B", 11)
	p.pdf.CellFormat(0, 6, p.tr(s), "B", 1, "L", false, 0, "")
	p.pdf.Ln(1)
}

func (p *page) kv(key, val string) {
	p.pdf.SetFont("Helvetica", "B", 9)
	p.pdf.CellFormat(55, 5, p.tr(key), "", 0, "L", false, 0, "")
	p.pdf.SetFont("Helvetica", "", 9)
	p.pdf.MultiCell(0, 5, p.tr(val), "", "L", false)
}

func (p *page) footer(s string) {
	p.pdf.Ln(6)
	p.pdf.SetFont("Helvetica", "I", 7.5)
	p.pdf.SetTextColor(100, 116, 139)
	p.pdf.MultiCell(0, 4, p.tr(s), "T", "C", false)
	p.pdf.SetTextColor(0, 0, 0)
}

const adviceFooter = "Ovo je informativni izračun generiran pomoću AI. Za konačni porezni savjet, molimo konzultirajte svog računovođu."

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func reportPage(in Input) ([]byte, error) {
	rec := in.Record
	if rec == nil {
		return nil, fmt.Errorf("report template needs a record")
	}
	p := newPage()
	p.title("Izvještaj o Obradi Fakture")
	p.subtitle(fmt.Sprintf("Generirano: %s", in.Now.Format("02.01.2006. 15:04")))

	p.section("Dobavljač")
	p.kv("Naziv:", rec.Supplier.Name)
	p.kv("Adresa:", rec.Supplier.Address)
	vat := rec.Supplier.VATID
	if rec.Supplier.IsEUVATValid {
		vat += " (Valjan EU PDV ID)"
	}
	p.kv("PDV ID:", vat)

	p.section("Kupac")
	p.kv("Naziv:", rec.Buyer.Name)
	p.kv("Adresa:", rec.Buyer.Address)
	p.kv("PDV ID (OIB):", rec.Buyer.VATID)

	p.section("Detalji Fakture")
	p.kv("Broj:", rec.Invoice.InvoiceNumber)
	p.kv("Datum:", rec.Invoice.InvoiceDate)
	p.kv("Razdoblje:", fmt.Sprintf("%s - %s", rec.Invoice.ServicePeriodFrom, rec.Invoice.ServicePeriodTo))
	p.kv("Valuta:", rec.Invoice.Currency)

	p.section("Stavke")
	p.pdf.SetFont("Helvetica", "B", 9)
	p.pdf.SetFillColor(241, 245, 249)
	p.pdf.CellFormat(130, 6, p.tr("Opis"), "1", 0, "L", true, 0, "")
	p.pdf.CellFormat(50, 6, p.tr(fmt.Sprintf("Iznos (%s)", rec.Invoice.Currency)), "1", 1, "R", true, 0, "")
	p.pdf.SetFont("Helvetica", "", 9)
	for _, item := range rec.LineItems {
		p.pdf.CellFormat(130, 6, p.tr(item.Description), "1", 0, "L", false, 0, "")
		p.pdf.CellFormat(50, 6, money(item.Amount), "1", 1, "R", false, 0, "")
	}

	p.section("Obračun PDV-a (Reverse Charge)")
	p.kv("Osnovica za PDV (provizija):", fmt.Sprintf("%s %s", money(rec.Calculations.CommissionBase), rec.Invoice.Currency))
	p.kv("Stopa PDV-a:", rec.Calculations.VATRatePercent.String()+"%")
	p.kv("Iznos obračunatog PDV-a:", fmt.Sprintf("%s %s", money(rec.Calculations.VATAmount), rec.Invoice.Currency))
	p.kv("Ukupno s PDV-om:", fmt.Sprintf("%s %s", money(rec.Calculations.CommissionTotalWithVAT), rec.Invoice.Currency))
	if rec.Calculations.Notes != "" {
		p.pdf.SetFont("Helvetica", "I", 8)
		p.pdf.MultiCell(0, 4.5, p.tr("Napomena: "+rec.Calculations.Notes), "", "L", false)
	}

	if rec.Actions.InstructionsForPDVForm != "" {
		p.section("Upute za PDV Prijavu")
		p.pdf.SetFont("Courier", "", 8)
		p.pdf.MultiCell(0, 4, p.tr(rec.Actions.InstructionsForPDVForm), "", "L", false)
	}

	p.footer(adviceFooter + "\nIzvorni dokument: " + rec.Meta.SourceFile)
	return p.output()
}

func summaryPage(in Input) ([]byte, error) {
	if len(in.Records) == 0 {
		return nil, fmt.Errorf("summary template needs at least one record")
	}
	p := newPage()
	p.title("Zbirni Izvještaj o Obradi Faktura")
	p.subtitle(fmt.Sprintf("Generirano: %s", in.Now.Format("02.01.2006. 15:04")))

	buyer := in.Records[0].Buyer
	currency := in.Records[0].Invoice.Currency
	p.pdf.SetFont("Helvetica", "B", 13)
	p.pdf.CellFormat(0, 7, p.tr(buyer.Name), "", 1, "C", false, 0, "")
	p.pdf.SetFont("Helvetica", "", 9)
	p.pdf.CellFormat(0, 5, p.tr(fmt.Sprintf("%s | OIB: %s", buyer.Address, period.OIB(buyer.VATID))), "", 1, "C", false, 0, "")

	p.section("Pojedinačne Stavke")
	p.pdf.SetFont("Helvetica", "B", 8)
	p.pdf.SetFillColor(241, 245, 249)
	p.pdf.CellFormat(50, 6, p.tr("Dobavljač"), "1", 0, "L", true, 0, "")
	p.pdf.CellFormat(35, 6, p.tr("Broj fakture"), "1", 0, "L", true, 0, "")
	p.pdf.CellFormat(23, 6, p.tr("Datum"), "1", 0, "L", true, 0, "")
	p.pdf.CellFormat(24, 6, p.tr("Osnovica"), "1", 0, "R", true, 0, "")
	p.pdf.CellFormat(24, 6, p.tr("PDV"), "1", 0, "R", true, 0, "")
	p.pdf.CellFormat(24, 6, p.tr("Ukupno"), "1", 1, "R", true, 0, "")

	totalBase, totalVAT, totalAll := decimal.Zero, decimal.Zero, decimal.Zero
	p.pdf.SetFont("Helvetica", "", 8)
	for _, rec := range in.Records {
		p.pdf.CellFormat(50, 6, p.tr(rec.Supplier.Name), "1", 0, "L", false, 0, "")
		p.pdf.CellFormat(35, 6, p.tr(rec.Invoice.InvoiceNumber), "1", 0, "L", false, 0, "")
		p.pdf.CellFormat(23, 6, rec.Invoice.InvoiceDate, "1", 0, "L", false, 0, "")
		p.pdf.CellFormat(24, 6, money(rec.Calculations.CommissionBase), "1", 0, "R", false, 0, "")
		p.pdf.CellFormat(24, 6, money(rec.Calculations.VATAmount), "1", 0, "R", false, 0, "")
		p.pdf.CellFormat(24, 6, money(rec.Calculations.CommissionTotalWithVAT), "1", 1, "R", false, 0, "")
		totalBase = totalBase.Add(rec.Calculations.CommissionBase)
		totalVAT = totalVAT.Add(rec.Calculations.VATAmount)
		totalAll = totalAll.Add(rec.Calculations.CommissionTotalWithVAT)
	}
	p.pdf.SetFont("Helvetica", "B", 8)
	p.pdf.SetFillColor(226, 232, 240)
	p.pdf.CellFormat(108, 6, p.tr(fmt.Sprintf("UKUPNO (%s)", currency)), "1", 0, "L", true, 0, "")
	p.pdf.CellFormat(24, 6, money(totalBase.Round(2)), "1", 0, "R", true, 0, "")
	p.pdf.CellFormat(24, 6, money(totalVAT.Round(2)), "1", 0, "R", true, 0, "")
	p.pdf.CellFormat(24, 6, money(totalAll.Round(2)), "1", 1, "R", true, 0, "")

	p.footer(adviceFooter)
	return p.output()
}

func statementPage(in Input) ([]byte, error) {
	g := in.Group
	if g == nil {
		return nil, fmt.Errorf("declaration statement template needs a group")
	}
	p := newPage()

	p.pdf.SetFont("Helvetica", "B", 10)
	p.pdf.CellFormat(0, 5, p.tr(g.Buyer.Name), "", 1, "R", false, 0, "")
	p.pdf.SetFont("Helvetica", "", 10)
	p.pdf.CellFormat(0, 5, p.tr(g.Buyer.Address), "", 1, "R", false, 0, "")
	p.pdf.CellFormat(0, 5, p.tr("OIB: "+period.OIB(g.Buyer.VATID)), "", 1, "R", false, 0, "")
	p.pdf.Ln(8)
	p.pdf.CellFormat(0, 5, p.tr("Porezna uprava"), "", 1, "L", false, 0, "")
	p.pdf.CellFormat(0, 5, p.tr("N/R nadležne ispostave"), "", 1, "L", false, 0, "")
	p.pdf.Ln(10)

	p.pdf.SetFont("Helvetica", "B", 13)
	p.pdf.MultiCell(0, 7, p.tr("IZJAVA O OBRAČUNU PDV-A NA USLUGE INOZEMNOG DOBAVLJAČA"), "", "C", false)
	p.pdf.Ln(6)

	p.pdf.SetFont("Helvetica", "", 10)
	paragraphs := []string{
		fmt.Sprintf("Predmet: Objašnjenje metode obračuna PDV-a na fakture primljene od %s.", g.Supplier.Name),
		"Poštovani,",
		fmt.Sprintf("Ovom izjavom, pod materijalnom i kaznenom odgovornošću, izjavljujemo da smo za primljene usluge posredovanja pri rezervacijama od tvrtke %s, sa sjedištem na adresi %s, PDV ID: %s, izvršili obračun PDV-a primjenom mehanizma prijenosa porezne obveze (eng. reverse charge).",
			g.Supplier.Name, g.Supplier.Address, g.Supplier.VATID),
		"Obračun je izvršen sukladno članku 17. stavku 1. Zakona o porezu na dodanu vrijednost, koji propisuje da je mjesto oporezivanja usluga koje se obavljaju između dva porezna obveznika (B2B) mjesto gdje primatelj usluge ima sjedište svoje djelatnosti. Budući da je sjedište naše tvrtke u Republici Hrvatskoj, a primatelji smo usluge od poreznog obveznika iz druge države članice EU, u obvezi smo obračunati i platiti hrvatski PDV.",
		"Naglašavamo da osnovica za obračun PDV-a uključuje isključivo iznos provizije za usluge posredovanja, kako je specificirano na pripadajućim fakturama pod stavkom \"Provizija\" ili \"Commission\". Eventualne ostale stavke na fakturama ne predstavljaju naknadu za uslugu pruženu našoj tvrtki i ne ulaze u osnovicu za obračun PDV-a.",
		"S poštovanjem,",
	}
	for _, para := range paragraphs {
		p.pdf.MultiCell(0, 5.5, p.tr(para), "", "L", false)
		p.pdf.Ln(3)
	}

	p.pdf.Ln(14)
	p.pdf.CellFormat(0, 5, p.tr(fmt.Sprintf("U ____________________, dana %s.", in.Now.Format("02.01.2006."))), "", 1, "L", false, 0, "")
	p.pdf.Ln(14)
	p.pdf.CellFormat(80, 5, "", "T", 1, "L", false, 0, "")
	p.pdf.CellFormat(80, 5, p.tr(g.Buyer.Name+", potpis"), "", 1, "L", false, 0, "")
	return p.output()
}

func instructionsPage(in Input) ([]byte, error) {
	p := newPage()
	p.title("Upute za Popunjavanje PDV i PDV-S Obrasca putem e-Porezne")
	p.subtitle("Vodič za ispravan unos podataka o uslugama primljenim iz EU.")

	p.section("Korak 1: Popunjavanje Obrasca PDV-S")
	steps1 := []string{
		"1. Prijavite se u sustav e-Porezna koristeći svoju vjerodajnicu.",
		"2. U izborniku odaberite \"Obrasci\", a zatim otvorite \"Obrazac PDV-S\".",
		"3. Odaberite ispravno razdoblje (mjesec i godinu) za koje podnosite prijavu.",
		"4. U stupac 4 (Vrsta stjecanja) odaberite oznaku \"a)\" - stjecanje usluga iz čl. 17. st. 1. Zakona.",
		"5. U stupac 6 upišite PDV identifikacijski broj dobavljača, bez slovne oznake države.",
		"6. U stupac 8 upišite ukupnu osnovicu za sve fakture u tom mjesecu (vrijednost iz Zbirnog izvještaja).",
		"7. Ako ste imali usluge od više EU dobavljača, dodajte novi redak za svakog od njih.",
		"8. Provjerite unesene podatke i kliknite \"Podnesi obrazac\".",
	}
	p.pdf.SetFont("Helvetica", "", 9.5)
	for _, s := range steps1 {
		p.pdf.MultiCell(0, 5.5, p.tr(s), "", "L", false)
	}

	p.section("Korak 2: Popunjavanje Glavnog Obrasca PDV")
	steps2 := []string{
		"1. U sustavu e-Porezna otvorite \"Obrazac PDV\" za isto porezno razdoblje.",
		"2. U polje II.1.3. (Stjecanje dobara i usluga iz drugih država članica EU) upisuje se ukupna osnovica.",
		"3. U polje III.1.3. (Obračunati pretporez na stjecanje) upisuje se iznos obračunatog PDV-a (osnovica x 25%).",
		"4. KLJUČNI KORAK: isti iznos PDV-a priznaje se i kao pretporez, čime se obveza i pravo na odbitak poništavaju. Neto efekt na vašu uplatu PDV-a je nula.",
		"5. Popunite ostatak PDV obrasca s podacima o domaćim transakcijama, ako ih imate.",
		"6. Provjerite cijeli obrazac i podnesite ga.",
	}
	p.pdf.SetFont("Helvetica", "", 9.5)
	for _, s := range steps2 {
		p.pdf.MultiCell(0, 5.5, p.tr(s), "", "L", false)
	}

	p.footer("Ove upute su informativnog karaktera. Za sva specifična pitanja obratite se svom računovođi ili nadležnoj ispostavi Porezne uprave.")
	return p.output()
}

func taxFormPage(in Input) ([]byte, error) {
	g := in.Group
	if g == nil {
		return nil, fmt.Errorf("tax form template needs a group")
	}
	p := newPage()
	oib := period.OIB(g.Buyer.VATID)
	periodFormatted := g.Period
	if len(g.Period) == 7 {
		periodFormatted = g.Period[5:7] + "/" + g.Period[0:4]
	}

	p.pdf.SetFont("Helvetica", "B", 14)
	p.pdf.CellFormat(0, 8, p.tr("Obrazac PDV-S"), "", 1, "C", false, 0, "")
	p.pdf.SetFont("Helvetica", "", 9)
	p.pdf.CellFormat(0, 5, p.tr("Prijava za stjecanje dobara i primljene usluge iz drugih država članica Europske unije"), "", 1, "C", false, 0, "")
	p.pdf.Ln(4)

	p.kv("Porezni obveznik:", fmt.Sprintf("%s, %s", g.Buyer.Name, g.Buyer.Address))
	p.kv("OIB:", oib)
	p.kv("Razdoblje:", periodFormatted)
	p.pdf.Ln(2)

	p.pdf.SetFont("Helvetica", "B", 8)
	p.pdf.SetFillColor(229, 231, 235)
	p.pdf.CellFormat(12, 6, p.tr("Red. br."), "1", 0, "C", true, 0, "")
	p.pdf.CellFormat(18, 6, p.tr("Vrsta"), "1", 0, "C", true, 0, "")
	p.pdf.CellFormat(76, 6, p.tr("Naziv i adresa dobavljača"), "1", 0, "C", true, 0, "")
	p.pdf.CellFormat(40, 6, p.tr("PDV ID / OIB"), "1", 0, "C", true, 0, "")
	p.pdf.CellFormat(34, 6, p.tr("Vrijednost (EUR)"), "1", 1, "C", true, 0, "")
	p.pdf.SetFont("Helvetica", "", 8)
	p.pdf.CellFormat(12, 6, "1.", "1", 0, "C", false, 0, "")
	p.pdf.CellFormat(18, 6, "a)", "1", 0, "C", false, 0, "")
	p.pdf.CellFormat(76, 6, p.tr(fmt.Sprintf("%s, %s", g.Supplier.Name, g.Supplier.Address)), "1", 0, "L", false, 0, "")
	p.pdf.CellFormat(40, 6, g.Supplier.VATID, "1", 0, "C", false, 0, "")
	p.pdf.CellFormat(34, 6, money(g.TotalBase), "1", 1, "R", false, 0, "")
	p.pdf.SetFont("Helvetica", "B", 9)
	p.pdf.CellFormat(0, 6, p.tr(fmt.Sprintf("UKUPNO (a): %s EUR", money(g.TotalBase))), "", 1, "R", false, 0, "")
	p.pdf.Ln(8)

	p.pdf.SetFont("Helvetica", "B", 14)
	p.pdf.CellFormat(0, 8, p.tr("Obrazac PDV (Izdvojeni dio)"), "", 1, "C", false, 0, "")
	p.pdf.SetFont("Helvetica", "", 9)
	p.pdf.CellFormat(0, 5, p.tr("Prijava poreza na dodanu vrijednost"), "", 1, "C", false, 0, "")
	p.pdf.Ln(4)

	row := func(label, value string, highlight bool) {
		p.pdf.SetFont("Helvetica", "", 8.5)
		fill := false
		if highlight {
			p.pdf.SetFillColor(254, 240, 138)
			fill = true
		}
		p.pdf.CellFormat(140, 6, p.tr(label), "1", 0, "L", fill, 0, "")
		p.pdf.CellFormat(40, 6, value, "1", 1, "R", fill, 0, "")
	}
	p.pdf.SetFont("Helvetica", "B", 10)
	p.pdf.CellFormat(0, 6, p.tr("II. OPOREZIVE TRANSAKCIJE"), "1", 1, "L", false, 0, "")
	row("II.1.1. Isporuke dobara i usluga po stopi 5%", "0.00", false)
	row("II.1.2. Isporuke dobara i usluga po stopi 13%", "0.00", false)
	row("II.1.3. Stjecanje dobara i usluga iz drugih država članica EU", money(g.TotalBase), true)
	p.pdf.SetFont("Helvetica", "B", 10)
	p.pdf.CellFormat(0, 6, p.tr("III. PRETPOREZ"), "1", 1, "L", false, 0, "")
	row("III.1.1. Pretporez od primljenih isporuka po stopi 5%", "0.00", false)
	row("III.1.2. Pretporez od primljenih isporuka po stopi 13%", "0.00", false)
	row("III.1.3. Pretporez na stjecanja i uvoz (po stopi 25%)", money(g.TotalVAT), true)

	p.footer("Prikazani su samo dijelovi Obrasca PDV relevantni za prijenos porezne obveze. Obveza i pravo na odbitak se međusobno poništavaju, što rezultira neutralnim poreznim efektom.")
	return p.output()
}
