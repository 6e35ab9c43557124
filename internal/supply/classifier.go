// Package supply implements the Supply Classifier described in
// spec.md §4.L: a five-factor weighted scoring model producing a
// constrained/neutral/smooth classification of how freely a token's
// circulating supply can reach the market.
package supply

import (
	"fmt"

	kimpgate "github.com/kimgate/kimpgate"
)

// DefaultWeights are used when airdrop data is present.
var DefaultWeights = map[string]float64{
	"hot_wallet":    0.30,
	"dex_liquidity": 0.25,
	"withdrawal":    0.20,
	"airdrop":       0.15,
	"network":       0.10,
}

// FallbackWeightsNoAirdrop are used when airdrop data is absent; the
// airdrop weight is redistributed across the remaining four factors.
var FallbackWeightsNoAirdrop = map[string]float64{
	"hot_wallet":    0.35,
	"dex_liquidity": 0.30,
	"withdrawal":    0.23,
	"network":       0.12,
}

// LowConfidenceThreshold halves a factor's effective weight when its
// confidence falls below this value.
const LowConfidenceThreshold = 0.3

// Classification thresholds on the final blended score.
const (
	ConstrainedBelow = -0.3
	SmoothAbove      = 0.3
)

// Turnover-ratio (5m volume / deposit balance) percentile thresholds.
var turnoverThresholds = struct {
	ExtremeHigh, High, Normal, Low float64
}{ExtremeHigh: 10.0, High: 5.0, Normal: 2.1, Low: 1.0}

// Input carries whatever raw supply-side signals are currently
// available for a symbol on an exchange. A nil pointer means no data
// for that factor; the classifier degrades rather than failing.
type Input struct {
	Symbol, Exchange string

	HotWalletUSD       *float64
	HotWalletConfidence float64 // default 0.5

	DexLiquidityUSD    *float64
	DexConfidence      float64 // default 0.5

	WithdrawalOpen     *bool
	WithdrawalConfidence float64 // default 1.0

	AirdropClaimRate  *float64
	AirdropConfidence float64 // default 0.5

	NetworkSpeedMin    *float64
	NetworkConfidence  float64 // default 0.8

	DepositKRW   *float64
	Volume5mKRW  *float64
}

type factor struct {
	name       string
	score      float64
	weight     float64
	confidence float64
	reason     string
}

// Classify never fails: any unusable or absent input degrades to a
// lower-confidence result rather than an error, per the "decision
// degradation" error-handling category.
func Classify(in Input) kimpgate.SupplyResult {
	weights := DefaultWeights
	if in.AirdropClaimRate == nil {
		weights = FallbackWeightsNoAirdrop
	}

	var factors []factor
	if f, ok := scoreHotWallet(in, weights); ok {
		factors = append(factors, f)
	}
	if f, ok := scoreDexLiquidity(in, weights); ok {
		factors = append(factors, f)
	}
	if f, ok := scoreWithdrawal(in, weights); ok {
		factors = append(factors, f)
	}
	if f, ok := scoreAirdrop(in, weights); ok {
		factors = append(factors, f)
	}
	if f, ok := scoreNetwork(in, weights); ok {
		factors = append(factors, f)
	}

	if len(factors) == 0 {
		return kimpgate.SupplyResult{
			Classification: kimpgate.SupplyUnknown,
			Score:          0,
			FactorsUsed:    0,
			Warnings:       []string{"no supply factor data available"},
		}
	}

	var warnings []string
	var weightedScore, totalWeight float64
	for _, f := range factors {
		effective := f.weight
		if f.confidence < LowConfidenceThreshold {
			effective *= 0.5
			warnings = append(warnings, fmt.Sprintf("%s low confidence (%.1f, %s) — weight halved", f.name, f.confidence, f.reason))
		}
		weightedScore += f.score * effective
		totalWeight += effective
	}

	score := 0.0
	if totalWeight > 0 {
		score = weightedScore / totalWeight
	}

	if turnover, ok := turnoverRatio(in); ok {
		score = (score + turnoverAdjustment(turnover)) / 2
	}

	return kimpgate.SupplyResult{
		Score:          score,
		Classification: classify(score),
		FactorsUsed:    len(factors),
		Warnings:       warnings,
	}
}

func scoreHotWallet(in Input, weights map[string]float64) (factor, bool) {
	if in.HotWalletUSD == nil {
		return factor{}, false
	}
	hw := *in.HotWalletUSD
	var score float64
	switch {
	case hw >= 1_000_000:
		score = 0.8
	case hw >= 500_000:
		score = 0.4
	case hw >= 100_000:
		score = 0.0
	case hw >= 50_000:
		score = -0.4
	default:
		score = -0.8
	}
	return factor{
		name: "hot_wallet", score: score, weight: weights["hot_wallet"],
		confidence: defaultConfidence(in.HotWalletConfidence, 0.5),
		reason:     fmt.Sprintf("hot wallet $%.0f", hw),
	}, true
}

func scoreDexLiquidity(in Input, weights map[string]float64) (factor, bool) {
	if in.DexLiquidityUSD == nil {
		return factor{}, false
	}
	dex := *in.DexLiquidityUSD
	var score float64
	switch {
	case dex >= 500_000:
		score = 0.8
	case dex >= 200_000:
		score = 0.4
	case dex >= 50_000:
		score = 0.0
	case dex >= 10_000:
		score = -0.4
	default:
		score = -0.8
	}
	return factor{
		name: "dex_liquidity", score: score, weight: weights["dex_liquidity"],
		confidence: defaultConfidence(in.DexConfidence, 0.5),
		reason:     fmt.Sprintf("dex liquidity $%.0f", dex),
	}, true
}

func scoreWithdrawal(in Input, weights map[string]float64) (factor, bool) {
	if in.WithdrawalOpen == nil {
		return factor{}, false
	}
	score, reason := -1.0, "withdrawal closed (supply blocked)"
	if *in.WithdrawalOpen {
		score, reason = 0.6, "withdrawal open"
	}
	return factor{
		name: "withdrawal", score: score, weight: weights["withdrawal"],
		confidence: defaultConfidence(in.WithdrawalConfidence, 1.0),
		reason:     reason,
	}, true
}

func scoreAirdrop(in Input, weights map[string]float64) (factor, bool) {
	if in.AirdropClaimRate == nil {
		return factor{}, false
	}
	rate := *in.AirdropClaimRate
	var score float64
	switch {
	case rate >= 0.8:
		score = 0.8
	case rate >= 0.5:
		score = 0.3
	case rate >= 0.2:
		score = -0.3
	default:
		score = -0.8
	}
	return factor{
		name: "airdrop", score: score, weight: weights["airdrop"],
		confidence: defaultConfidence(in.AirdropConfidence, 0.5),
		reason:     fmt.Sprintf("claim rate %.0f%%", rate*100),
	}, true
}

func scoreNetwork(in Input, weights map[string]float64) (factor, bool) {
	if in.NetworkSpeedMin == nil {
		return factor{}, false
	}
	speed := *in.NetworkSpeedMin
	var score float64
	switch {
	case speed <= 2:
		score = 0.6
	case speed <= 5:
		score = 0.3
	case speed <= 15:
		score = 0.0
	case speed <= 30:
		score = -0.4
	default:
		score = -0.8
	}
	return factor{
		name: "network", score: score, weight: weights["network"],
		confidence: defaultConfidence(in.NetworkConfidence, 0.8),
		reason:     fmt.Sprintf("transfer %.0f min", speed),
	}, true
}

func turnoverRatio(in Input) (float64, bool) {
	if in.DepositKRW == nil || in.Volume5mKRW == nil || *in.DepositKRW <= 0 {
		return 0, false
	}
	return *in.Volume5mKRW / *in.DepositKRW, true
}

// turnoverAdjustment: high turnover (volume far exceeds deposits) means
// the market is churning existing supply rather than receiving fresh
// coins, which tightens the float — so it pushes the score negative.
func turnoverAdjustment(turnover float64) float64 {
	switch {
	case turnover >= turnoverThresholds.ExtremeHigh:
		return -1.0
	case turnover >= turnoverThresholds.High:
		return -0.6
	case turnover >= turnoverThresholds.Normal:
		return -0.2
	case turnover >= turnoverThresholds.Low:
		return 0.2
	default:
		return 0.6
	}
}

func classify(score float64) kimpgate.SupplyClassification {
	switch {
	case score < ConstrainedBelow:
		return kimpgate.SupplyConstrained
	case score > SmoothAbove:
		return kimpgate.SupplySmooth
	default:
		return kimpgate.SupplyNeutral
	}
}

func defaultConfidence(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

