// Package render produces the visual report pages: the per-invoice report,
// the monthly summary, the reverse-charge declaration statement, the
// e-Porezna filing instructions and the PDV/PDV-S form excerpt.
package render

import (
	"context"
	"fmt"
	"time"

	"github.com/fiskal-hr/pdv-assistant/internal/invoice"
	"github.com/fiskal-hr/pdv-assistant/internal/period"
)

// Template selects which page to render. One dispatcher consumes the tag; no
// dynamic lookup by name.
type Template int

const (
	TemplateReport Template = iota
	TemplateSummary
	TemplateDeclarationStatement
	TemplateInstructions
	TemplateTaxForm
)

func (t Template) String() string {
	switch t {
	case TemplateReport:
		return "report"
	case TemplateSummary:
		return "summary"
	case TemplateDeclarationStatement:
		return "declaration-statement"
	case TemplateInstructions:
		return "instructions"
	case TemplateTaxForm:
		return "tax-form"
	default:
		return fmt.Sprintf("template(%d)", int(t))
	}
}

// Input carries the data a template draws from. Which fields must be set
// depends on the template: Record for TemplateReport, Records for
// TemplateSummary, Group for the statement and the tax form.
type Input struct {
	Record  *invoice.Record
	Records []invoice.Record
	Group   *period.Group
	Now     time.Time
}

// Renderer turns a template selection into a fully settled raster page. The
// returned bytes are a PNG ready to be placed on an output page.
type Renderer interface {
	Render(ctx context.Context, tmpl Template, in Input) ([]byte, error)
}
