// Package cost implements the pure-function cost model described in
// spec.md §4.I: slippage, fees, gas cost and hedge cost combine into a
// net-profit estimate. Nothing here performs I/O.
package cost

import (
	"math"

	kimpgate "github.com/kimgate/kimpgate"
)

// DefaultSlippagePct is used when no orderbook is available.
const DefaultSlippagePct = 1.0

// UnfilledPenaltyPctPerUnit is the per-unit-of-unfilled-ratio penalty
// added to slippage when an orderbook cannot absorb the full order.
const UnfilledPenaltyPctPerUnit = 5.0

// FeeSchedule carries the configured fee/threshold inputs the model
// needs, sourced from configs/fees.yaml and configs/networks.yaml.
type FeeSchedule struct {
	DomesticTakerFeePct float64
	GlobalTakerFeePct   float64
	WithdrawalFeeUSDT   float64 // per-network withdrawal fee, in USDT
	GasWarnThresholdPct float64 // gas cost, in percent of amount_krw, above which GasWarn is set

	CEXHedgeTakerFeePct      float64 // perpetual taker fee for a HedgeCEX leg
	CEXHedgeFundingRate8hPct float64 // average 8h funding rate for a HedgeCEX leg
	DEXHedgeTakerFeePct      float64 // perpetual taker fee for a HedgeDexOnly leg
}

// Inputs are the per-decision parameters the model is evaluated against.
type Inputs struct {
	PremiumPct float64
	Network    string
	AmountKRW  float64
	HedgeType  kimpgate.HedgeType
	FXRate     float64
	Orderbook  *kimpgate.Orderbook // nil => use DefaultSlippagePct
	Fees       FeeSchedule
}

// Evaluate computes the full cost breakdown for one candidate trade.
// All output fields are rounded to 4 decimal places per spec.md §4.I.
func Evaluate(in Inputs) kimpgate.CostResult {
	slippage := slippagePct(in.Orderbook, in.AmountKRW)
	gasCostKRW := in.Fees.WithdrawalFeeUSDT * in.FXRate
	gasCostPct := 0.0
	if in.AmountKRW > 0 {
		gasCostPct = gasCostKRW / in.AmountKRW * 100
	}
	gasWarn := in.AmountKRW > 0 && gasCostPct > threshold(in.Fees.GasWarnThresholdPct)

	exchangeFeePct := in.Fees.DomesticTakerFeePct + in.Fees.GlobalTakerFeePct
	hedgeCostPct := hedgeCost(in.HedgeType, in.Fees)

	totalCostPct := round4(slippage + gasCostPct + exchangeFeePct + hedgeCostPct)
	netProfitPct := round4(in.PremiumPct - totalCostPct)

	return kimpgate.CostResult{
		SlippagePct:   round4(slippage),
		GasCostKRW:    round4(gasCostKRW),
		ExchangeFeePc: round4(exchangeFeePct),
		HedgeCostPct:  round4(hedgeCostPct),
		TotalCostPct:  totalCostPct,
		NetProfitPct:  netProfitPct,
		GasWarn:       gasWarn,
	}
}

func threshold(configured float64) float64 {
	if configured == 0 {
		return 1.0 // 1% default small-order threshold
	}
	return configured
}

// slippagePct walks the ask side consuming levels until amountKRW is
// filled. With no orderbook, a conservative default is used. Any
// unfilled remainder adds a penalty proportional to the unfilled ratio.
func slippagePct(ob *kimpgate.Orderbook, amountKRW float64) float64 {
	if ob == nil || len(ob.Asks) == 0 {
		return DefaultSlippagePct
	}

	bestAsk := ob.Asks[0].Price
	if bestAsk <= 0 {
		return DefaultSlippagePct
	}

	var filledQty, filledCost float64
	remaining := amountKRW
	for _, lvl := range ob.Asks {
		if remaining <= 0 {
			break
		}
		levelValue := lvl.Price * lvl.Qty
		take := math.Min(levelValue, remaining)
		qtyTaken := take / lvl.Price
		filledQty += qtyTaken
		filledCost += qtyTaken * lvl.Price
		remaining -= take
	}

	if filledQty == 0 {
		return DefaultSlippagePct
	}

	avgFillPrice := filledCost / filledQty
	slippage := (avgFillPrice - bestAsk) / bestAsk * 100

	if remaining > 0 {
		unfilledRatio := remaining / amountKRW
		slippage += unfilledRatio * UnfilledPenaltyPctPerUnit
	}
	return slippage
}

func hedgeCost(ht kimpgate.HedgeType, fees FeeSchedule) float64 {
	switch ht {
	case kimpgate.HedgeCEX:
		return fees.CEXHedgeTakerFeePct + fees.CEXHedgeFundingRate8hPct
	case kimpgate.HedgeDexOnly:
		return fees.DEXHedgeTakerFeePct
	default:
		return 0
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Premium computes the domestic-vs-global premium percentage: positive
// when the domestic price trades above the FX-converted global
// reference. Returns exactly 0 when krwPrice equals globalUSD*fxRate.
func Premium(krwPrice, globalUSD, fxRate float64) float64 {
	globalKRW := globalUSD * fxRate
	if globalKRW == 0 {
		return 0
	}
	return (krwPrice - globalKRW) / globalKRW * 100
}
