package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"

	kimpgate "github.com/kimgate/kimpgate"
)

func TestGenerate_ConstrainedSupplyNoHedgeHighProb_IsHeungBig(t *testing.T) {
	result := Generate(Input{
		Exchange: "upbit",
		Supply:    kimpgate.SupplyConstrained,
		HedgeType: kimpgate.HedgeNone,
		Market:    MarketBull,
		TGE:       TGEVeryLow,
		RefPriceConfidence: 1.0,
	})
	assert.Equal(t, kimpgate.OutcomeHeungBig, result.Likely.Outcome)
	assert.GreaterOrEqual(t, result.Likely.Probability, 0.7)
}

func TestGenerate_SmoothSupplyCEXHedgeBear_IsMangOrNeutral(t *testing.T) {
	result := Generate(Input{
		Exchange:  "upbit",
		Supply:    kimpgate.SupplySmooth,
		HedgeType: kimpgate.HedgeCEX,
		Market:    MarketBear,
		TGE:       TGEUnknown,
		RefPriceConfidence: 1.0,
	})
	assert.Contains(t, []kimpgate.ScenarioOutcome{kimpgate.OutcomeMang, kimpgate.OutcomeNeutral}, result.Likely.Outcome)
}

func TestGenerate_BestCaseProbabilityExceedsWorstCase(t *testing.T) {
	in := Input{
		Exchange:  "upbit",
		Supply:    kimpgate.SupplyNeutral,
		HedgeType: kimpgate.HedgeCEX,
		Market:    MarketBear,
		TGE:       TGEHigh,
		RefPriceConfidence: 0.7,
	}
	result := Generate(in)
	assert.GreaterOrEqual(t, result.Best.Probability, result.Likely.Probability)
	assert.GreaterOrEqual(t, result.Likely.Probability, result.Worst.Probability)
}

func TestGenerate_LowRefPriceConfidence_PullsProbabilityDown(t *testing.T) {
	high := Generate(Input{Exchange: "upbit", RefPriceConfidence: 1.0})
	low := Generate(Input{Exchange: "upbit", RefPriceConfidence: 0.5})
	assert.Less(t, low.Likely.Probability, high.Likely.Probability)
}

func TestGenerate_HedgeNoneOrDexOnly_FlagsUnderSampled(t *testing.T) {
	none := Generate(Input{HedgeType: kimpgate.HedgeNone})
	assert.True(t, none.UnderSampled)

	cex := Generate(Input{HedgeType: kimpgate.HedgeCEX, Market: MarketNeutral, TGE: TGEUnknown})
	assert.False(t, cex.UnderSampled)
}

func TestGenerate_UpbitBaseLowerThanGenericBase(t *testing.T) {
	upbit := calculate(Input{Exchange: "upbit"})
	other := calculate(Input{Exchange: "binance"})
	assert.Less(t, upbit.base, other.base)
}

func TestShrunkCoeff_BelowMinSampleSize_IsScaledDown(t *testing.T) {
	raw := coefficients["hedge_none"].value
	shrunk := shrunkCoeff("hedge_none")
	assert.Less(t, shrunk, raw)
}

func TestShrunkCoeff_AtOrAboveMinSampleSize_IsUnscaled(t *testing.T) {
	raw := coefficients["market_neutral"].value
	shrunk := shrunkCoeff("market_neutral")
	assert.Equal(t, raw, shrunk)
}

func TestProject_ProbabilityClampedToUnitInterval(t *testing.T) {
	result := project(Input{
		Exchange: "upbit", Supply: kimpgate.SupplyConstrained, HedgeType: kimpgate.HedgeNone,
		Market: MarketBull, TGE: TGEVeryLow, RefPriceConfidence: 1.0,
	})
	assert.LessOrEqual(t, result.Probability, 1.0)
	assert.GreaterOrEqual(t, result.Probability, 0.0)
}
