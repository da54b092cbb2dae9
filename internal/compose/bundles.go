package compose

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fiskal-hr/pdv-assistant/internal/invoice"
	"github.com/fiskal-hr/pdv-assistant/internal/period"
	"github.com/fiskal-hr/pdv-assistant/internal/render"
)

// originalSegment wraps an entry's uploaded bytes. Restored entries carry no
// bytes and cannot contribute.
func originalSegment(e invoice.Entry) (Segment, error) {
	if !e.HasOriginalBytes() {
		return nil, invoice.ErrNoOriginalBytes
	}
	if strings.HasPrefix(strings.ToLower(e.ContentType), "application/pdf") {
		return DocumentSegment{Name: e.Filename, Data: e.Data}, nil
	}
	return ImageSegment{Name: e.Filename, Data: e.Data}, nil
}

// MergeOriginals concatenates the uploaded source documents of the given
// entries, in order. Every entry must still hold its original bytes.
func (c *Composer) MergeOriginals(ctx context.Context, entries []invoice.Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, errors.New("no documents to merge")
	}
	segments := make([]Segment, 0, len(entries))
	for _, e := range entries {
		seg, err := originalSegment(e)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return c.Compose(ctx, segments)
}

// BundleReports renders the monthly summary followed by one report page per
// record.
func (c *Composer) BundleReports(ctx context.Context, records []invoice.Record, now time.Time) ([]byte, error) {
	if len(records) == 0 {
		return nil, errors.New("no records to report on")
	}
	segments := []Segment{
		RenderSegment{Template: render.TemplateSummary, Input: render.Input{Records: records, Now: now}},
	}
	for i := range records {
		segments = append(segments, RenderSegment{
			Template: render.TemplateReport,
			Input:    render.Input{Record: &records[i], Now: now},
		})
	}
	return c.Compose(ctx, segments)
}

// CombineAll builds the full filing bundle: the summary, then per declaration
// group the statement letter, the e-Porezna instructions and the form excerpt,
// then per entry the original document followed by its report. Entries without
// original bytes abort the bundle, the same as MergeOriginals.
func (c *Composer) CombineAll(ctx context.Context, entries []invoice.Entry, now time.Time) ([]byte, error) {
	if len(entries) == 0 {
		return nil, errors.New("no processed invoices to combine")
	}

	records := make([]invoice.Record, 0, len(entries))
	for _, e := range entries {
		if e.Record != nil {
			records = append(records, *e.Record)
		}
	}
	if len(records) == 0 {
		return nil, errors.New("no processed invoices to combine")
	}

	segments := []Segment{
		RenderSegment{Template: render.TemplateSummary, Input: render.Input{Records: records, Now: now}},
	}
	for _, g := range period.DeclarationGroups(records) {
		segments = append(segments,
			RenderSegment{Template: render.TemplateDeclarationStatement, Input: render.Input{Group: g, Now: now}},
			RenderSegment{Template: render.TemplateInstructions, Input: render.Input{Now: now}},
			RenderSegment{Template: render.TemplateTaxForm, Input: render.Input{Group: g, Now: now}},
		)
	}
	for _, e := range entries {
		if e.Record == nil {
			continue
		}
		seg, err := originalSegment(e)
		if err != nil {
			return nil, err
		}
		segments = append(segments,
			seg,
			RenderSegment{Template: render.TemplateReport, Input: render.Input{Record: e.Record, Now: now}},
		)
	}
	return c.Compose(ctx, segments)
}
