// Package app wires the processing queue, session store and document composer
// behind one service and exposes it over HTTP.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fiskal-hr/pdv-assistant/internal/compose"
	"github.com/fiskal-hr/pdv-assistant/internal/invoice"
	"github.com/fiskal-hr/pdv-assistant/internal/payment"
	"github.com/fiskal-hr/pdv-assistant/internal/period"
	"github.com/fiskal-hr/pdv-assistant/internal/scanning"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles invoice operations
type Service struct {
	queue      *invoice.Queue
	store      invoice.SessionStore
	composer   *compose.Composer
	timeSource TimeSource
}

// NewService creates a new Service with the default time source
func NewService(queue *invoice.Queue, store invoice.SessionStore, composer *compose.Composer) *Service {
	return &Service{
		queue:      queue,
		store:      store,
		composer:   composer,
		timeSource: &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(queue *invoice.Queue, store invoice.SessionStore, composer *compose.Composer, timeSrc TimeSource) *Service {
	return &Service{
		queue:      queue,
		store:      store,
		composer:   composer,
		timeSource: timeSrc,
	}
}

// RestoreSession loads the previous session into the queue. Restored entries
// come back without their original file bytes.
func (s *Service) RestoreSession() error {
	entries, err := s.store.LoadSession()
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}
	s.queue.Restore(entries)
	slog.Info("session restored", "entries", len(entries))
	return nil
}

// PersistSession writes the current entry list to the session store.
func (s *Service) PersistSession() error {
	if err := s.store.SaveSession(s.queue.Snapshot()); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// persist saves the session and only logs on failure; a persistence hiccup
// never fails the user-facing operation that triggered it.
func (s *Service) persist() {
	if err := s.PersistSession(); err != nil {
		slog.Warn("failed to persist session", "error", err)
	}
}

// Upload validates and enqueues one uploaded file, returning the entry in its
// current state. Duplicate uploads return the existing entry.
func (s *Service) Upload(filename string, lastModified int64, data []byte, contentType string) (invoice.Entry, error) {
	if len(data) == 0 {
		return invoice.Entry{}, fmt.Errorf("file %q is empty", filename)
	}
	if !scanning.SupportedMimeType(contentType) {
		return invoice.Entry{}, fmt.Errorf("unsupported file type %q", contentType)
	}
	id := s.queue.Enqueue(filename, lastModified, contentType, data)
	s.persist()
	entry, ok := s.queue.Get(id)
	if !ok {
		return invoice.Entry{}, fmt.Errorf("entry not found after enqueue: %s", id)
	}
	return entry, nil
}

// List returns a snapshot of all entries.
func (s *Service) List() []invoice.Entry {
	return s.queue.Snapshot()
}

// Get returns a snapshot of one entry.
func (s *Service) Get(id string) (invoice.Entry, bool) {
	return s.queue.Get(id)
}

// Reenqueue retries a settled entry as a distinct new entry.
func (s *Service) Reenqueue(id string) (invoice.Entry, error) {
	newID, err := s.queue.Reenqueue(id)
	if err != nil {
		return invoice.Entry{}, err
	}
	s.persist()
	entry, ok := s.queue.Get(newID)
	if !ok {
		return invoice.Entry{}, fmt.Errorf("entry not found after reenqueue: %s", newID)
	}
	return entry, nil
}

// UpdateRecord replaces the record of a succeeded entry with an edited one.
func (s *Service) UpdateRecord(id string, rec invoice.Record) (invoice.Entry, error) {
	entry, err := s.queue.UpdateRecord(id, rec)
	if err != nil {
		return invoice.Entry{}, err
	}
	s.persist()
	return entry, nil
}

// Clear removes every entry.
func (s *Service) Clear() {
	s.queue.Clear()
	s.persist()
}

// succeeded returns the succeeded entries and their records, oldest first.
func (s *Service) succeeded() ([]invoice.Entry, []invoice.Record, error) {
	entries := s.queue.Succeeded()
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("no successfully processed invoices")
	}
	records := make([]invoice.Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, *e.Record)
	}
	return entries, records, nil
}

// CombinedReportPDF renders the summary plus one report page per processed
// invoice.
func (s *Service) CombinedReportPDF(ctx context.Context) (string, []byte, error) {
	_, records, err := s.succeeded()
	if err != nil {
		return "", nil, err
	}
	now := s.timeSource.Now()
	data, err := s.composer.BundleReports(ctx, records, now)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("svi-izvjestaji-%s.pdf", now.Format("2006-01-02")), data, nil
}

// MergedOriginalsPDF concatenates the uploaded source documents of all
// processed invoices.
func (s *Service) MergedOriginalsPDF(ctx context.Context) (string, []byte, error) {
	entries, _, err := s.succeeded()
	if err != nil {
		return "", nil, err
	}
	now := s.timeSource.Now()
	data, err := s.composer.MergeOriginals(ctx, entries)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("objedinjene-fakture-%s.pdf", now.Format("2006-01-02")), data, nil
}

// CombineAllPDF builds the full filing bundle.
func (s *Service) CombineAllPDF(ctx context.Context) (string, []byte, error) {
	entries, _, err := s.succeeded()
	if err != nil {
		return "", nil, err
	}
	now := s.timeSource.Now()
	data, err := s.composer.CombineAll(ctx, entries, now)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("kompletna-dokumentacija-%s.pdf", now.Format("2006-01-02")), data, nil
}

// PeriodSummary is the JSON shape of one declaration group.
type PeriodSummary struct {
	Period       string           `json:"period"`
	SupplierVAT  string           `json:"supplier_vat_id"`
	Supplier     invoice.Supplier `json:"supplier"`
	Currency     string           `json:"currency"`
	InvoiceCount int              `json:"invoice_count"`
	TotalBase    decimal.Decimal  `json:"total_base"`
	TotalVAT     decimal.Decimal  `json:"total_vat"`
	TotalWithVAT decimal.Decimal  `json:"total_with_vat"`
}

// Periods returns one summary per (month, supplier) declaration group, sorted.
func (s *Service) Periods() []PeriodSummary {
	_, records, err := s.succeeded()
	if err != nil {
		return []PeriodSummary{}
	}
	groups := period.DeclarationGroups(records)
	out := make([]PeriodSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, PeriodSummary{
			Period:       g.Period,
			SupplierVAT:  g.SupplierVAT,
			Supplier:     g.Supplier,
			Currency:     g.Currency,
			InvoiceCount: len(g.Records),
			TotalBase:    g.TotalBase,
			TotalVAT:     g.TotalVAT,
			TotalWithVAT: g.TotalWithVAT,
		})
	}
	return out
}

// group finds one declaration group by month and supplier VAT ID. An empty
// supplierVAT matches a month with exactly one supplier.
func (s *Service) group(periodKey, supplierVAT string) (*period.Group, error) {
	_, records, err := s.succeeded()
	if err != nil {
		return nil, err
	}
	var matches []*period.Group
	for _, g := range period.DeclarationGroups(records) {
		if g.Period != periodKey {
			continue
		}
		if supplierVAT != "" && g.SupplierVAT != supplierVAT {
			continue
		}
		matches = append(matches, g)
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no processed invoices for period %s", periodKey)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("period %s spans %d suppliers; pass the supplier VAT ID", periodKey, len(matches))
	}
}

// PDVXML produces the main PDV declaration for one declaration group.
func (s *Service) PDVXML(periodKey, supplierVAT string) (string, []byte, error) {
	g, err := s.group(periodKey, supplierVAT)
	if err != nil {
		return "", nil, err
	}
	data, err := period.EncodePDV(g, s.timeSource.Now())
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("obrazac-pdv-%s.xml", g.Period), data, nil
}

// PDVSXML produces the PDV-S declaration for one declaration group.
func (s *Service) PDVSXML(periodKey, supplierVAT string) (string, []byte, error) {
	g, err := s.group(periodKey, supplierVAT)
	if err != nil {
		return "", nil, err
	}
	data, err := period.EncodePDVS(g, s.timeSource.Now())
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("obrazac-pdv-s-%s.xml", g.Period), data, nil
}

// PaymentSlipPDF renders the VAT payment slip for one declaration group.
func (s *Service) PaymentSlipPDF(periodKey, supplierVAT string) (string, []byte, error) {
	g, err := s.group(periodKey, supplierVAT)
	if err != nil {
		return "", nil, err
	}
	data, err := payment.SlipPDF(payment.ForPeriod(g))
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("uplatnica-pdv-%s.pdf", g.Period), data, nil
}

// PaymentPayload returns the raw fixed-field payment payload for one
// declaration group, for callers that generate their own barcode.
func (s *Service) PaymentPayload(periodKey, supplierVAT string) (string, error) {
	g, err := s.group(periodKey, supplierVAT)
	if err != nil {
		return "", err
	}
	return payment.Encode(payment.ForPeriod(g)), nil
}
