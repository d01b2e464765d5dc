package ledger

import "github.com/shopspring/decimal"

// Money values travel as float64 for wire compatibility. Arithmetic on them
// goes through decimal so that incremental updates and a full recompute
// land on the same cent.

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(f float64) float64 {
	return dec(f).Round(2).InexactFloat64()
}

// DebtDelta is the receivable an active order adds to its customer:
// round2(max(0, total - discount - received)).
func DebtDelta(o Order) decimal.Decimal {
	d := dec(o.TotalAmount).Sub(dec(o.Discount)).Sub(dec(o.ReceivedAmount))
	if d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}

// clampZero floors a balance at zero.
func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func addMoney(a float64, b decimal.Decimal) float64 {
	return dec(a).Add(b).InexactFloat64()
}

func subMoneyClamped(a float64, b decimal.Decimal) float64 {
	return clampZero(dec(a).Sub(b)).InexactFloat64()
}

// addQty adds stock quantities or weights without float drift, so that an
// apply followed by a rollback restores the exact previous value.
func addQty(a, b float64) float64 {
	return dec(a).Add(dec(b)).InexactFloat64()
}
