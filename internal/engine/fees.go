package engine

import (
	"fmt"
	"math"
)

// FeeSchedule holds fee rates as fractions in [0,1) and the hauling cost
// in ISK per m3.
type FeeSchedule struct {
	BuyBrokerFee  float64 `json:"buy_broker_fee"`
	SellBrokerFee float64 `json:"sell_broker_fee"`
	SalesTax      float64 `json:"sales_tax"`
	HaulingPerM3  float64 `json:"hauling_per_m3"`
}

// Validate reports rates outside [0,1) and negative hauling.
func (fs FeeSchedule) Validate() error {
	var problems []string
	check := func(name string, v float64) {
		if math.IsNaN(v) || v < 0 || v >= 1 {
			problems = append(problems, fmt.Sprintf("%s %v not in [0,1)", name, v))
		}
	}
	check("buy broker fee", fs.BuyBrokerFee)
	check("sell broker fee", fs.SellBrokerFee)
	check("sales tax", fs.SalesTax)
	if math.IsNaN(fs.HaulingPerM3) || math.IsInf(fs.HaulingPerM3, 0) || fs.HaulingPerM3 < 0 {
		problems = append(problems, fmt.Sprintf("hauling cost %v must be >= 0", fs.HaulingPerM3))
	}
	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// FeeResult is the per-unit and total outcome of one trade.
type FeeResult struct {
	CostPerUnit     float64 // buy price plus buy-side broker fee
	ProceedsPerUnit float64 // sell price after fees, tax and hauling
	ProfitPerUnit   float64
	MarginPct       float64
	TotalProfit     float64
}

// Evaluate prices buying at buyPrice and selling at sellPrice, volume units
// of unitVolume m3 each. Negative profit is a valid result. NaN and Inf
// collapse to 0.
func Evaluate(buyPrice, sellPrice, unitVolume float64, volume int64, fs FeeSchedule) FeeResult {
	cost := buyPrice * (1 + fs.BuyBrokerFee)
	proceeds := sellPrice*(1-fs.SellBrokerFee)*(1-fs.SalesTax) - fs.HaulingPerM3*unitVolume
	profit := proceeds - cost

	var margin float64
	if cost != 0 {
		margin = profit / cost * 100
	}
	return FeeResult{
		CostPerUnit:     sanitizeFloat(cost),
		ProceedsPerUnit: sanitizeFloat(proceeds),
		ProfitPerUnit:   sanitizeFloat(profit),
		MarginPct:       sanitizeFloat(margin),
		TotalProfit:     sanitizeFloat(profit * float64(volume)),
	}
}

// sanitizeFloat replaces NaN/Inf with 0 to prevent JSON marshal errors.
func sanitizeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
