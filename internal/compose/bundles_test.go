package compose

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/fiskal-hr/pdv-assistant/internal/invoice"
)

func testRecord() *invoice.Record {
	return &invoice.Record{
		Supplier: invoice.Supplier{Name: "Booking.com B.V.", Address: "Herengracht 597, Amsterdam", VATID: "NL805734958B01"},
		Buyer:    invoice.Buyer{Name: "Apartmani Test d.o.o.", Address: "Ilica 1, Zagreb", VATID: "HR12345678901"},
		Invoice:  invoice.Details{InvoiceNumber: "42", InvoiceDate: "2025-01-15", Currency: "EUR"},
		LineItems: []invoice.LineItem{
			{Description: "Provizija", Amount: decimal.NewFromInt(100)},
		},
		Calculations: invoice.Calculations{
			CommissionBase:         decimal.NewFromInt(100),
			VATRatePercent:         decimal.NewFromInt(25),
			VATAmount:              decimal.NewFromInt(25),
			CommissionTotalWithVAT: decimal.NewFromInt(125),
		},
	}
}

var _ = Describe("bundles", func() {
	var (
		composer *Composer
		ctx      context.Context
		now      time.Time
	)

	BeforeEach(func() {
		composer = NewComposer(&stubRenderer{png: pngFixture(400, 200)})
		ctx = context.Background()
		now = time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	})

	Describe("MergeOriginals", func() {
		It("concatenates the uploaded documents", func() {
			entries := []invoice.Entry{
				{Filename: "a.pdf", ContentType: "application/pdf", Data: pdfFixture(2)},
				{Filename: "b.png", ContentType: "image/png", Data: pngFixture(100, 100)},
			}
			out, err := composer.MergeOriginals(ctx, entries)
			Expect(err).NotTo(HaveOccurred())
			Expect(pageCount(out)).To(Equal(3))
		})

		It("fails explicitly when an entry has no original bytes", func() {
			entries := []invoice.Entry{
				{Filename: "restored.pdf", ContentType: "application/pdf"},
			}
			_, err := composer.MergeOriginals(ctx, entries)
			Expect(err).To(MatchError(invoice.ErrNoOriginalBytes))
		})
	})

	Describe("BundleReports", func() {
		It("renders the summary plus one report page per record", func() {
			records := []invoice.Record{*testRecord(), *testRecord()}
			out, err := composer.BundleReports(ctx, records, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(pageCount(out)).To(Equal(3))
		})
	})

	Describe("CombineAll", func() {
		It("builds summary, per-group filing pages and per-entry original plus report", func() {
			entries := []invoice.Entry{
				{
					Filename:    "a.pdf",
					ContentType: "application/pdf",
					Data:        pdfFixture(1),
					Status:      invoice.StatusSucceeded,
					Record:      testRecord(),
				},
			}
			out, err := composer.CombineAll(ctx, entries, now)
			Expect(err).NotTo(HaveOccurred())
			// summary + statement + instructions + tax form + original + report
			Expect(pageCount(out)).To(Equal(6))
		})

		It("aborts when a processed entry lost its original bytes", func() {
			entries := []invoice.Entry{
				{
					Filename:    "restored.pdf",
					ContentType: "application/pdf",
					Status:      invoice.StatusSucceeded,
					Record:      testRecord(),
				},
			}
			_, err := composer.CombineAll(ctx, entries, now)
			Expect(err).To(MatchError(invoice.ErrNoOriginalBytes))
		})
	})
})
