// Package period groups processed invoices by calendar month of issuance and
// turns the aggregates into PDV / PDV-S declaration payloads.
package period

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fiskal-hr/pdv-assistant/internal/invoice"
)

// Group is one aggregation unit: a calendar month, optionally narrowed to a
// single supplier for declarations. Totals are summed over unrounded record
// components and rounded once, so per-record rounding never compounds.
type Group struct {
	Period       string // YYYY-MM
	SupplierVAT  string // empty for month-level groups spanning suppliers
	Supplier     invoice.Supplier
	Buyer        invoice.Buyer
	Currency     string
	Records      []invoice.Record
	TotalBase    decimal.Decimal
	TotalVAT     decimal.Decimal
	TotalWithVAT decimal.Decimal
}

func newGroup(period string, rec invoice.Record) *Group {
	return &Group{
		Period:   period,
		Supplier: rec.Supplier,
		Buyer:    rec.Buyer,
		Currency: rec.Invoice.Currency,
	}
}

func (g *Group) add(rec invoice.Record) {
	g.Records = append(g.Records, rec)
	g.TotalBase = g.TotalBase.Add(rec.Calculations.CommissionBase)
	g.TotalVAT = g.TotalVAT.Add(rec.Calculations.VATAmount)
	g.TotalWithVAT = g.TotalWithVAT.Add(rec.Calculations.CommissionTotalWithVAT)
}

func (g *Group) round() {
	g.TotalBase = g.TotalBase.Round(2)
	g.TotalVAT = g.TotalVAT.Round(2)
	g.TotalWithVAT = g.TotalWithVAT.Round(2)
}

// GroupByPeriod groups records by calendar month of issuance (not the service
// period). The first record of a month stands in for supplier and buyer
// identity in summary views; declarations use DeclarationGroups instead.
func GroupByPeriod(records []invoice.Record) map[string]*Group {
	groups := make(map[string]*Group)
	for _, rec := range records {
		key := rec.PeriodKey()
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = newGroup(key, rec)
			groups[key] = g
		}
		g.add(rec)
	}
	for _, g := range groups {
		g.round()
	}
	return groups
}

// DeclarationGroups returns one group per (period, supplier VAT ID) pair,
// sorted by period then supplier. A month spanning several suppliers yields
// several declaration pairs; distinct suppliers are never collapsed into one
// filing.
func DeclarationGroups(records []invoice.Record) []*Group {
	type key struct {
		period string
		vat    string
	}
	groups := make(map[key]*Group)
	for _, rec := range records {
		period := rec.PeriodKey()
		if period == "" {
			continue
		}
		k := key{period: period, vat: rec.Supplier.VATID}
		g, ok := groups[k]
		if !ok {
			g = newGroup(period, rec)
			g.SupplierVAT = rec.Supplier.VATID
			groups[k] = g
		}
		g.add(rec)
	}
	out := make([]*Group, 0, len(groups))
	for _, g := range groups {
		g.round()
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].SupplierVAT < out[j].SupplierVAT
	})
	return out
}

// SortedPeriods returns the group keys in ascending month order.
func SortedPeriods(groups map[string]*Group) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
