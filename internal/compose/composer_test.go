package compose

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/go-pdf/fpdf"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/fiskal-hr/pdv-assistant/internal/render"
)

func TestCompose(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Compose Suite")
}

// stubRenderer returns a fixed PNG page for every template.
type stubRenderer struct {
	png []byte
}

func (r *stubRenderer) Render(ctx context.Context, tmpl render.Template, in render.Input) ([]byte, error) {
	return r.png, nil
}

func pdfFixture(pages int) []byte {
	pdf := fpdf.New("P", "mm", "A4", "")
	for i := 0; i < pages; i++ {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "", 12)
		pdf.Cell(40, 10, "fixture")
	}
	var buf bytes.Buffer
	Expect(pdf.Output(&buf)).To(Succeed())
	return buf.Bytes()
}

func pngFixture(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

func pageCount(data []byte) int {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	Expect(err).NotTo(HaveOccurred())
	return n
}

var _ = Describe("FitRect", func() {
	It("centers a wide image with symmetric top and bottom margins", func() {
		x, y, w, h := FitRect(210, 297, 12, 200, 100)
		Expect(x).To(BeNumerically("~", 12, 0.001))
		Expect(w).To(BeNumerically("~", 186, 0.001))
		Expect(h).To(BeNumerically("~", 93, 0.001))
		topMargin := y
		bottomMargin := 297 - (y + h)
		Expect(topMargin).To(BeNumerically("~", bottomMargin, 0.001))
	})

	It("centers a tall image with symmetric left and right margins", func() {
		x, y, w, h := FitRect(210, 297, 12, 100, 400)
		Expect(y).To(BeNumerically("~", 12, 0.001))
		leftMargin := x
		rightMargin := 210 - (x + w)
		Expect(leftMargin).To(BeNumerically("~", rightMargin, 0.001))
		Expect(h).To(BeNumerically("~", 273, 0.001))
	})

	It("preserves the aspect ratio", func() {
		_, _, w, h := FitRect(210, 297, 12, 200, 100)
		Expect(w / h).To(BeNumerically("~", 2.0, 0.001))
	})

	It("never scales an image above its original size", func() {
		x, y, w, h := FitRect(210, 297, 12, 100, 50)
		Expect(w).To(BeNumerically("~", 100, 0.001))
		Expect(h).To(BeNumerically("~", 50, 0.001))
		Expect(x).To(BeNumerically("~", (210-100)/2.0, 0.001))
		Expect(y).To(BeNumerically("~", (297-50)/2.0, 0.001))
	})
})

var _ = Describe("Compose", func() {
	var (
		composer *Composer
		ctx      context.Context
	)

	BeforeEach(func() {
		composer = NewComposer(&stubRenderer{png: pngFixture(400, 200)})
		ctx = context.Background()
	})

	It("merges document pages, image pages and rendered pages in order", func() {
		out, err := composer.Compose(ctx, []Segment{
			DocumentSegment{Name: "three.pdf", Data: pdfFixture(3)},
			ImageSegment{Name: "photo.png", Data: pngFixture(400, 200)},
			DocumentSegment{Name: "one.pdf", Data: pdfFixture(1)},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(pageCount(out)).To(Equal(5))
	})

	It("turns a rendered template into exactly one page", func() {
		out, err := composer.Compose(ctx, []Segment{
			RenderSegment{Template: render.TemplateSummary},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(pageCount(out)).To(Equal(1))
	})

	It("aborts the whole composition on an unreadable document", func() {
		_, err := composer.Compose(ctx, []Segment{
			DocumentSegment{Name: "good.pdf", Data: pdfFixture(1)},
			DocumentSegment{Name: "broken.pdf", Data: []byte("not a pdf at all")},
		})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("broken.pdf"))
	})

	It("rejects an empty segment list", func() {
		_, err := composer.Compose(ctx, nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an undecodable image", func() {
		_, err := composer.Compose(ctx, []Segment{
			ImageSegment{Name: "junk.png", Data: []byte("junk")},
		})
		Expect(err).To(HaveOccurred())
	})
})
