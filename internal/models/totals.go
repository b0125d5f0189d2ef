package models

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimals monetary amounts are stored with.
const MoneyPlaces = 2

// DefaultVATRate is the VAT applied to purchases unless configured otherwise.
var DefaultVATRate = decimal.RequireFromString("0.19")

// Totals is the derived monetary breakdown of a purchase.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// RoundMoney rounds half away from zero to MoneyPlaces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// LinesSubtotal sums quantity × unit price over lines.
func LinesSubtotal(lines []PurchaseLine) decimal.Decimal {
	sum := decimal.Zero
	for i := range lines {
		sum = sum.Add(lines[i].Amount())
	}
	return sum
}

// ComputeTotals resolves subtotal/tax/total from the lines and the optional
// caller-supplied header amounts:
//
//   - total and tax given: both trusted as is, subtotal = total - tax
//   - only total: tax = total × rate / (1 + rate)
//   - only tax: subtotal from lines, total = subtotal + tax
//   - neither: tax = subtotal × rate, total = subtotal + tax
func ComputeTotals(lines []PurchaseLine, total, tax *decimal.Decimal, vatRate decimal.Decimal) Totals {
	switch {
	case total != nil && tax != nil:
		t, x := RoundMoney(*total), RoundMoney(*tax)
		return Totals{Subtotal: t.Sub(x), Tax: x, Total: t}
	case total != nil:
		t := RoundMoney(*total)
		x := RoundMoney(t.Mul(vatRate).Div(decimal.NewFromInt(1).Add(vatRate)))
		return Totals{Subtotal: t.Sub(x), Tax: x, Total: t}
	case tax != nil:
		sub := RoundMoney(LinesSubtotal(lines))
		x := RoundMoney(*tax)
		return Totals{Subtotal: sub, Tax: x, Total: sub.Add(x)}
	default:
		sub := RoundMoney(LinesSubtotal(lines))
		x := RoundMoney(sub.Mul(vatRate))
		return Totals{Subtotal: sub, Tax: x, Total: sub.Add(x)}
	}
}

// Apply copies the totals onto the purchase header.
func (t Totals) Apply(p *Purchase) {
	p.Subtotal = t.Subtotal
	p.Tax = t.Tax
	p.Total = t.Total
}
