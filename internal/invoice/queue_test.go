package invoice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

// fakeExtractor is a controllable Extractor. Failures are configured per
// filename; an optional gate holds every extraction open until released.
type fakeExtractor struct {
	mu        sync.Mutex
	active    int
	maxActive int
	calls     []string
	errs      map[string]error
	gate      chan struct{}
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{errs: make(map[string]error)}
}

func (f *fakeExtractor) Extract(ctx context.Context, filename string, data []byte, contentType string) (*Record, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.calls = append(f.calls, filename)
	gate := f.gate
	err := f.errs[filename]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &Record{
		Supplier: Supplier{Name: "Booking.com B.V.", VATID: "NL805734958B01"},
		Buyer:    Buyer{Name: "Apartmani Test d.o.o.", VATID: "HR12345678901"},
		Invoice:  Details{InvoiceNumber: "INV-" + filename, InvoiceDate: "2025-01-15", Currency: "EUR"},
		LineItems: []LineItem{
			{Description: "Provizija", Amount: decimal.NewFromInt(100)},
		},
		Calculations: Calculations{VATRatePercent: decimal.NewFromInt(25)},
	}, nil
}

func (f *fakeExtractor) ModelID() string { return "fake-model" }

func (f *fakeExtractor) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeExtractor) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

var _ = ginkgo.Describe("Queue", func() {
	var (
		extractor *fakeExtractor
		queue     *Queue
		ctx       context.Context
		cancel    context.CancelFunc
	)

	ginkgo.BeforeEach(func() {
		extractor = newFakeExtractor()
		queue = NewQueue(extractor)
		ctx, cancel = context.WithCancel(context.Background())
	})

	ginkgo.AfterEach(func() {
		cancel()
	})

	settled := func(id string) func() bool {
		return func() bool {
			e, ok := queue.Get(id)
			return ok && e.Settled()
		}
	}

	ginkgo.When("several files are enqueued at once", func() {
		ginkgo.It("extracts strictly one at a time, in upload order", func() {
			extractor.gate = make(chan struct{})
			go queue.Run(ctx)

			idA := queue.Enqueue("a.pdf", 1, "application/pdf", []byte("a"))
			idB := queue.Enqueue("b.pdf", 2, "application/pdf", []byte("b"))
			idC := queue.Enqueue("c.pdf", 3, "application/pdf", []byte("c"))

			Eventually(extractor.callOrder).Should(HaveLen(1))
			Consistently(extractor.callOrder).Should(HaveLen(1))
			close(extractor.gate)

			Eventually(settled(idA)).Should(BeTrue())
			Eventually(settled(idB)).Should(BeTrue())
			Eventually(settled(idC)).Should(BeTrue())

			Expect(extractor.callOrder()).To(Equal([]string{"a.pdf", "b.pdf", "c.pdf"}))
			Expect(extractor.peakConcurrency()).To(Equal(1))
		})
	})

	ginkgo.When("an extraction fails mid-queue", func() {
		ginkgo.It("marks that entry failed and keeps draining the rest", func() {
			extractor.errs["b.pdf"] = errors.New("connection refused")
			go queue.Run(ctx)

			idA := queue.Enqueue("a.pdf", 1, "application/pdf", []byte("a"))
			idB := queue.Enqueue("b.pdf", 2, "application/pdf", []byte("b"))
			idC := queue.Enqueue("c.pdf", 3, "application/pdf", []byte("c"))

			Eventually(settled(idC)).Should(BeTrue())

			a, _ := queue.Get(idA)
			b, _ := queue.Get(idB)
			c, _ := queue.Get(idC)
			Expect(a.Status).To(Equal(StatusSucceeded))
			Expect(c.Status).To(Equal(StatusSucceeded))
			Expect(b.Status).To(Equal(StatusFailed))
			Expect(b.Failure).To(Equal(FailureNetwork))
			Expect(b.Error).NotTo(BeEmpty())
			Expect(b.Debug).NotTo(BeNil())
			Expect(b.Debug.ModelUsed).To(Equal("fake-model"))
			Expect(b.Debug.RawError).To(ContainSubstring("connection refused"))
		})
	})

	ginkgo.When("a successful extraction settles", func() {
		ginkgo.It("attaches the record and clears any failure state", func() {
			go queue.Run(ctx)
			id := queue.Enqueue("a.pdf", 1, "application/pdf", []byte("a"))

			Eventually(settled(id)).Should(BeTrue())
			e, _ := queue.Get(id)
			Expect(e.Status).To(Equal(StatusSucceeded))
			Expect(e.Record).NotTo(BeNil())
			Expect(e.Record.Invoice.InvoiceNumber).To(Equal("INV-a.pdf"))
			Expect(e.Error).To(BeEmpty())
			Expect(e.Debug).To(BeNil())
		})
	})

	ginkgo.Describe("duplicate detection", func() {
		ginkgo.It("silently returns the existing entry for the same filename and timestamp", func() {
			id1 := queue.Enqueue("a.pdf", 1000, "application/pdf", []byte("a"))
			id2 := queue.Enqueue("a.pdf", 1000, "application/pdf", []byte("a"))
			Expect(id2).To(Equal(id1))
			Expect(queue.Snapshot()).To(HaveLen(1))
		})

		ginkgo.It("treats a different timestamp as a different file", func() {
			id1 := queue.Enqueue("a.pdf", 1000, "application/pdf", []byte("a"))
			id2 := queue.Enqueue("a.pdf", 2000, "application/pdf", []byte("a"))
			Expect(id2).NotTo(Equal(id1))
			Expect(queue.Snapshot()).To(HaveLen(2))
		})

		ginkgo.It("re-attaches bytes to a restored entry instead of rejecting the upload", func() {
			queue.Restore([]Entry{{
				ID:           "a.pdf-1000",
				Filename:     "a.pdf",
				LastModified: 1000,
				Status:       StatusFailed,
				Failure:      FailureUnknown,
			}})
			id := queue.Enqueue("a.pdf", 1000, "application/pdf", []byte("fresh"))
			Expect(id).To(Equal("a.pdf-1000"))
			Expect(queue.Snapshot()).To(HaveLen(1))
			e, _ := queue.Get(id)
			Expect(e.HasOriginalBytes()).To(BeTrue())
			Expect(e.Status).To(Equal(StatusQueued))
		})
	})

	ginkgo.Describe("Reenqueue", func() {
		ginkgo.It("creates a distinct entry that processes independently", func() {
			go queue.Run(ctx)
			id := queue.Enqueue("a.pdf", 1, "application/pdf", []byte("a"))
			Eventually(settled(id)).Should(BeTrue())

			newID, err := queue.Reenqueue(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(newID).NotTo(Equal(id))
			Eventually(settled(newID)).Should(BeTrue())
			Expect(queue.Snapshot()).To(HaveLen(2))
		})

		ginkgo.It("refuses entries without original bytes", func() {
			queue.Restore([]Entry{{ID: "ghost", Filename: "ghost.pdf", Status: StatusSucceeded, Record: &Record{}}})
			_, err := queue.Reenqueue("ghost")
			Expect(err).To(MatchError(ErrNoOriginalBytes))
		})

		ginkgo.It("refuses unknown entries", func() {
			_, err := queue.Reenqueue("missing")
			Expect(err).To(HaveOccurred())
		})
	})

	ginkgo.Describe("Restore", func() {
		ginkgo.It("drops original bytes and fails entries persisted mid-flight", func() {
			queue.Restore([]Entry{
				{ID: "1", Status: StatusSucceeded, Record: &Record{}, Data: []byte("x")},
				{ID: "2", Status: StatusExtracting},
				{ID: "3", Status: StatusQueued},
			})
			entries := queue.Snapshot()
			Expect(entries).To(HaveLen(3))
			Expect(entries[0].Status).To(Equal(StatusSucceeded))
			Expect(entries[0].HasOriginalBytes()).To(BeFalse())
			Expect(entries[1].Status).To(Equal(StatusFailed))
			Expect(entries[2].Status).To(Equal(StatusFailed))
		})
	})

	ginkgo.Describe("UpdateRecord", func() {
		ginkgo.It("replaces the record wholesale and recomputes derived figures", func() {
			go queue.Run(ctx)
			id := queue.Enqueue("a.pdf", 1, "application/pdf", []byte("a"))
			Eventually(settled(id)).Should(BeTrue())

			edited := Record{
				LineItems: []LineItem{
					{Description: "Provizija", Amount: decimal.NewFromInt(200)},
				},
				Calculations: Calculations{VATRatePercent: decimal.NewFromInt(25)},
			}
			e, err := queue.UpdateRecord(id, edited)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Record.Calculations.CommissionBase).To(Equal(dec("200")))
			Expect(e.Record.Calculations.VATAmount).To(Equal(dec("50")))
			Expect(e.Record.Calculations.CommissionTotalWithVAT).To(Equal(dec("250")))
		})

		ginkgo.It("rejects invalid edits without touching the stored record", func() {
			go queue.Run(ctx)
			id := queue.Enqueue("a.pdf", 1, "application/pdf", []byte("a"))
			Eventually(settled(id)).Should(BeTrue())
			before, _ := queue.Get(id)

			bad := Record{
				LineItems:    []LineItem{{Description: "Provizija", Amount: decimal.NewFromInt(-1)}},
				Calculations: Calculations{VATRatePercent: decimal.NewFromInt(25)},
			}
			_, err := queue.UpdateRecord(id, bad)
			var verr *ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())

			after, _ := queue.Get(id)
			Expect(after.Record).To(Equal(before.Record))
		})

		ginkgo.It("refuses entries that did not succeed", func() {
			id := queue.Enqueue("a.pdf", 1, "application/pdf", []byte("a"))
			_, err := queue.UpdateRecord(id, Record{})
			Expect(err).To(HaveOccurred())
		})
	})

	ginkgo.When("a queued entry has lost its original bytes", func() {
		ginkgo.It("fails it with the re-upload classification instead of a file-format one", func() {
			queue.mu.Lock()
			queue.entries = append(queue.entries, &Entry{
				ID:       "ghost",
				Filename: "ghost.pdf",
				Status:   StatusQueued,
			})
			queue.mu.Unlock()
			go queue.Run(ctx)
			queue.signal()

			Eventually(settled("ghost")).Should(BeTrue())
			e, _ := queue.Get("ghost")
			Expect(e.Status).To(Equal(StatusFailed))
			Expect(e.Failure).To(Equal(FailureMissingOriginal))
			Expect(e.Error).To(ContainSubstring("Ponovno učitajte"))
			Expect(extractor.callOrder()).To(BeEmpty())
		})
	})

	ginkgo.Describe("ClassifyFailure", func() {
		ginkgo.It("classifies missing original bytes via the sentinel, not its wording", func() {
			Expect(ClassifyFailure(ErrNoOriginalBytes)).To(Equal(FailureMissingOriginal))
			Expect(ClassifyFailure(fmt.Errorf("draining entry: %w", ErrNoOriginalBytes))).To(Equal(FailureMissingOriginal))
		})

		ginkgo.It("classifies credential problems ahead of network wording", func() {
			Expect(ClassifyFailure(errors.New("API key not valid: connection closed"))).To(Equal(FailureCredentialMissing))
		})

		ginkgo.It("classifies quota exhaustion", func() {
			Expect(ClassifyFailure(errors.New("googleapi: Error 429: quota exceeded"))).To(Equal(FailureQuotaExceeded))
		})

		ginkgo.It("classifies timeouts as network failures", func() {
			Expect(ClassifyFailure(errors.New("context deadline exceeded"))).To(Equal(FailureNetwork))
		})

		ginkgo.It("falls back to unknown", func() {
			Expect(ClassifyFailure(errors.New("something odd"))).To(Equal(FailureUnknown))
		})
	})
})
