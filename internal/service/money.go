package service

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func moneyFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
