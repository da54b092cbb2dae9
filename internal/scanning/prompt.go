package scanning

import "github.com/google/generative-ai-go/genai"

// invoiceSystemPrompt instructs the model to parse Croatian reverse-charge
// invoices. The prompt is in Croatian because the invoices and the target
// forms are; field descriptions in the schema stay in English for the model.
const invoiceSystemPrompt = `**SISTEMSKE UPUTE ZA PARSIRANJE FAKTURA**

**ULOGA I SVRHA:**
* Ti si visoko specijalizirani AI za automatsku obradu i parsiranje faktura za hrvatsku tvrtku, obveznika PDV-a.
* Tvoja jedina svrha je precizno izvući podatke iz fakture, izračunati PDV prema mehanizmu prijenosa porezne obveze (reverse charge) i generirati strukturirani JSON izlaz.

**OBAVEZNA PRAVILA:**

1.  **STRIKTNO PREMA SHEMI:** Tvoj izlaz mora biti ISKLJUČIVO validan JSON objekt koji se u potpunosti pridržava zadane sheme. Ne dodaji nikakve komentare, objašnjenja ili markdown formatiranje izvan JSON-a. SVA OBAVEZNA POLJA MORAJU BITI POPUNJENA.
2.  **IZRAČUN PDV-a (REVERSE CHARGE):**
    *   **Osnovica (commission_base):** Zbroj iznosa svih stavki čiji opis sadrži "Reservations", "Rezervacije", "Commission" ili "Provizija".
    *   **Stopa PDV-a (vat_rate_percent):** Uvijek koristi 25.
    *   **Iznos PDV-a (vat_amount):** Izračunaj kao commission_base * 0.25. Zaokruži na 2 decimale.
    *   **Ukupno s PDV-om (commission_total_with_vat):** Izračunaj kao commission_base + vat_amount. Zaokruži na 2 decimale.
3.  **UPUTE ZA PDV OBRAZAC (instructions_for_pdv_form):**
    *   Ako se primjenjuje prijenos porezne obveze (reverse_charge_applies: true), generiraj precizne upute za popunjavanje PDV obrasca: osnovica u polje II.1.3., obračunati PDV u polje III.1.3., isti iznos priznaje se kao pretporez čime se postiže neutralan porezni efekt. Prilagodi iznose.
4.  **VALIDACIJA PODATAKA:**
    *   **PDV ID dobavljača (supplier.vat_id):** Provjeri je li to valjani EU VAT ID i na temelju toga postavi is_eu_vat_valid.
    *   **PDV ID kupca (buyer.vat_id):** Pronađi i izvuci OIB kupca.
    *   Ako je dobavljač iz EU, a kupac hrvatski porezni obveznik, postavi actions.reverse_charge_applies na true.
5.  **METADATA:**
    *   parsed_at: trenutni datum i vrijeme u ISO 8601 formatu.
    *   source_file: originalni naziv datoteke; ako ti nije poznat, ostavi prazno.
    *   parser_version: postavi na "` + ParserVersion + `".
    *   audit_hash: ostavi prazno.
6.  **UPRAVLJANJE GREŠKAMA:**
    *   Ako ne možeš pronaći ključne podatke (broj fakture, datumi, iznosi), dodaj jasan opis problema u errors polje.
    *   Ako postoji bilo kakva nejasnoća, postavi manual_review_required na true.
7.  **PODACI KOJI NEDOSTAJU:** Ako obavezan podatak nije prisutan na fakturi, upiši string "Nije naveden" u odgovarajuće polje kako bi se zadovoljila JSON shema.`

const extractionRequest = "Molim te parsiraj ovu fakturu prema sistemskim uputama."

// ParserVersion is recorded in every record's metadata.
const ParserVersion = "1.2-gemini-flash"

func stringField(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func numberField(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeNumber, Description: desc}
}

func boolField(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeBoolean, Description: desc}
}

// invoiceSchema is the strict response schema the model must satisfy. It
// mirrors invoice.Record one to one.
func invoiceSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"meta": {
				Type:        genai.TypeObject,
				Description: "Metadata about the parsing process.",
				Properties: map[string]*genai.Schema{
					"parsed_at":      stringField("ISO 8601 timestamp of when the parsing occurred."),
					"source_file":    stringField("The original filename of the invoice."),
					"parser_version": stringField("Version of the parsing model used."),
					"audit_hash":     stringField("SHA256 hash of the document content for auditing. Can be empty."),
				},
				Required: []string{"parsed_at", "source_file", "parser_version", "audit_hash"},
			},
			"supplier": {
				Type:        genai.TypeObject,
				Description: "Details about the invoice supplier.",
				Properties: map[string]*genai.Schema{
					"name":            stringField("Full legal name of the supplier."),
					"address":         stringField("Full address of the supplier."),
					"vat_id":          stringField("Supplier's VAT identification number."),
					"is_eu_vat_valid": boolField("Flag indicating if the supplier has a valid EU VAT ID."),
				},
				Required: []string{"name", "address", "vat_id", "is_eu_vat_valid"},
			},
			"buyer": {
				Type:        genai.TypeObject,
				Description: "Details about the invoice buyer.",
				Properties: map[string]*genai.Schema{
					"name":    stringField("Full legal name of the buyer."),
					"address": stringField("Full address of the buyer."),
					"vat_id":  stringField("Buyer's VAT identification number (OIB). If not present, use the string \"Nije naveden\"."),
				},
				Required: []string{"name", "address", "vat_id"},
			},
			"invoice": {
				Type:        genai.TypeObject,
				Description: "Core details of the invoice document.",
				Properties: map[string]*genai.Schema{
					"invoice_number":      stringField("The unique identification number of the invoice."),
					"invoice_date":        stringField("Date the invoice was issued, in YYYY-MM-DD format."),
					"service_period_from": stringField("Start date of the service period, in YYYY-MM-DD format."),
					"service_period_to":   stringField("End date of the service period, in YYYY-MM-DD format."),
					"currency":            stringField("Three-letter currency code (e.g., EUR, USD)."),
				},
				Required: []string{"invoice_number", "invoice_date", "service_period_from", "service_period_to", "currency"},
			},
			"line_items": {
				Type:        genai.TypeArray,
				Description: "A list of all items billed on the invoice.",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"description": stringField("Description of the service or product."),
						"amount":      numberField("The cost of the line item."),
					},
					Required: []string{"description", "amount"},
				},
			},
			"calculations": {
				Type:        genai.TypeObject,
				Description: "VAT calculation details based on the reverse charge mechanism.",
				Properties: map[string]*genai.Schema{
					"commission_base":           numberField("The base amount for VAT calculation (sum of commission/reservation items)."),
					"vat_rate_percent":          numberField("The VAT rate percentage applied (should be 25)."),
					"vat_amount":                numberField("The calculated amount of VAT."),
					"commission_total_with_vat": numberField("The total amount including the calculated VAT."),
					"notes":                     stringField("Any notes regarding the calculation, if necessary."),
				},
				Required: []string{"commission_base", "vat_rate_percent", "vat_amount", "commission_total_with_vat", "notes"},
			},
			"actions": {
				Type:        genai.TypeObject,
				Description: "Recommended actions and instructions.",
				Properties: map[string]*genai.Schema{
					"reverse_charge_applies":    boolField("Flag indicating if the reverse charge mechanism applies."),
					"instructions_for_pdv_form": stringField("Detailed instructions for filling the Croatian PDV form."),
					"manual_review_required":    boolField("Flag indicating if the invoice requires manual review due to ambiguities."),
				},
				Required: []string{"reverse_charge_applies", "instructions_for_pdv_form", "manual_review_required"},
			},
			"errors": {
				Type:        genai.TypeArray,
				Description: "A list of errors encountered during parsing.",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"meta", "supplier", "buyer", "invoice", "line_items", "calculations", "actions", "errors"},
	}
}
