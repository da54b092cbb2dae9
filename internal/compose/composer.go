// Package compose assembles output PDFs from heterogeneous segments: existing
// PDF documents pass through page-for-page, raster images and rendered report
// pages each become exactly one page.
package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"strings"

	_ "github.com/gen2brain/heic"
	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/fiskal-hr/pdv-assistant/internal/render"
)

// Segment is one input to a composition. The three variants are the only
// implementations; Compose dispatches on the concrete type.
type Segment interface {
	segmentName() string
}

// DocumentSegment is an existing PDF whose pages are carried over unchanged.
type DocumentSegment struct {
	Name string
	Data []byte
}

// ImageSegment is a raster image placed on a single page, scaled to fit with
// preserved aspect ratio and centered.
type ImageSegment struct {
	Name string
	Data []byte
}

// RenderSegment is a report page produced by the renderer at compose time.
type RenderSegment struct {
	Template render.Template
	Input    render.Input
}

func (s DocumentSegment) segmentName() string { return s.Name }
func (s ImageSegment) segmentName() string    { return s.Name }
func (s RenderSegment) segmentName() string   { return s.Template.String() }

const imageMarginMM = 12.0

// Composer merges segments into one PDF.
type Composer struct {
	renderer render.Renderer
	conf     *model.Configuration
}

// NewComposer returns a composer backed by the given renderer. Validation is
// relaxed so mildly out-of-spec supplier PDFs still pass through.
func NewComposer(renderer render.Renderer) *Composer {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Composer{renderer: renderer, conf: conf}
}

// Compose builds every segment's contribution and merges them in input order.
// Encrypted documents are skipped with a warning; any other failure aborts the
// whole composition so a partial bundle is never returned.
func (c *Composer) Compose(ctx context.Context, segments []Segment) ([]byte, error) {
	if len(segments) == 0 {
		return nil, errors.New("nothing to compose")
	}

	parts := make([][]byte, len(segments))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for i, seg := range segments {
		eg.Go(func() error {
			part, err := c.buildPart(gctx, seg)
			if err != nil {
				return fmt.Errorf("segment %q: %w", seg.segmentName(), err)
			}
			parts[i] = part
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	readers := make([]io.ReadSeeker, 0, len(parts))
	for _, part := range parts {
		if part != nil {
			readers = append(readers, bytes.NewReader(part))
		}
	}
	if len(readers) == 0 {
		return nil, errors.New("no usable segments to compose")
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(readers, &buf, false, c.conf); err != nil {
		return nil, fmt.Errorf("merging %d segments: %w", len(readers), err)
	}
	return buf.Bytes(), nil
}

// buildPart returns the per-segment PDF, or (nil, nil) for a skipped segment.
func (c *Composer) buildPart(ctx context.Context, seg Segment) ([]byte, error) {
	switch s := seg.(type) {
	case DocumentSegment:
		if _, err := api.PageCount(bytes.NewReader(s.Data), c.conf); err != nil {
			if isEncrypted(err) {
				slog.Warn("skipping encrypted document", "name", s.Name)
				return nil, nil
			}
			return nil, fmt.Errorf("reading document: %w", err)
		}
		return s.Data, nil
	case ImageSegment:
		return imagePage(s.Name, s.Data)
	case RenderSegment:
		pagePNG, err := c.renderer.Render(ctx, s.Template, s.Input)
		if err != nil {
			return nil, err
		}
		return imagePage(s.Template.String(), pagePNG)
	default:
		return nil, fmt.Errorf("unknown segment type %T", seg)
	}
}

func isEncrypted(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encrypt") || strings.Contains(msg, "password")
}

// FitRect places an image of imgW x imgH inside a pageW x pageH page with the
// given margin, preserving aspect ratio and centering both ways. A wide image
// therefore gets equal top and bottom margins, a tall one equal left and
// right. The image is never scaled above its original size; a small image
// stays small and floats centered.
func FitRect(pageW, pageH, margin, imgW, imgH float64) (x, y, w, h float64) {
	availW := pageW - 2*margin
	availH := pageH - 2*margin
	scale := availW / imgW
	if s := availH / imgH; s < scale {
		scale = s
	}
	if scale > 1 {
		scale = 1
	}
	w = imgW * scale
	h = imgH * scale
	x = (pageW - w) / 2
	y = (pageH - h) / 2
	return x, y, w, h
}

// imagePage puts one raster image on one A4 page. The image is re-encoded as
// PNG so every registered source format ends up in a form the page writer
// accepts.
func imagePage(name string, data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("re-encoding image: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	pageW, pageH := pdf.GetPageSize()

	bounds := img.Bounds()
	x, y, w, h := FitRect(pageW, pageH, imageMarginMM, float64(bounds.Dx()), float64(bounds.Dy()))

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(pngBuf.Bytes()))
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("writing image page: %w", err)
	}
	return out.Bytes(), nil
}
