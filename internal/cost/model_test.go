package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	kimpgate "github.com/kimgate/kimpgate"
)

func TestPremium_ZeroWhenEqual(t *testing.T) {
	assert.Equal(t, 0.0, Premium(1_350_000, 1000, 1350))
}

func TestPremium_SignMatchesDirection(t *testing.T) {
	assert.Greater(t, Premium(1_400_000, 1000, 1350), 0.0)
	assert.Less(t, Premium(1_300_000, 1000, 1350), 0.0)
}

func TestSlippage_SingleLevelFullyFilled_IsZero(t *testing.T) {
	ob := &kimpgate.Orderbook{Asks: []kimpgate.PriceLevel{{Price: 100, Qty: 1000}}}
	got := slippagePct(ob, 10_000)
	assert.Equal(t, 0.0, got)
}

func TestSlippage_EmptyOrderbook_UsesDefault(t *testing.T) {
	got := slippagePct(nil, 10_000)
	assert.Equal(t, DefaultSlippagePct, got)
}

func TestSlippage_WalksMultipleLevels(t *testing.T) {
	ob := &kimpgate.Orderbook{Asks: []kimpgate.PriceLevel{
		{Price: 10000, Qty: 1.0},
		{Price: 10010, Qty: 2.0},
		{Price: 10020, Qty: 3.0},
		{Price: 10050, Qty: 5.0},
	}}
	// the book holds only 110,330 KRW: all four levels fill at an average
	// of 10030 (0.3% over best ask) and the 98.8967% unfilled remainder
	// adds 0.988967 * 5 = 4.944835 points.
	got := slippagePct(ob, 10_000_000)
	assert.Greater(t, got, 0.0)
	assert.InDelta(t, 5.2448, got, 0.0001)
}

func TestEvaluate_NetProfitHasNoHiddenTerms(t *testing.T) {
	in := Inputs{
		PremiumPct: 11.11,
		Network:    "solana",
		AmountKRW:  10_000_000,
		HedgeType:  kimpgate.HedgeCEX,
		FXRate:     1350,
		Orderbook: &kimpgate.Orderbook{Asks: []kimpgate.PriceLevel{
			{Price: 10000, Qty: 1.0}, {Price: 10010, Qty: 2.0}, {Price: 10020, Qty: 3.0}, {Price: 10050, Qty: 5.0},
		}},
		Fees: FeeSchedule{DomesticTakerFeePct: 0.04, GlobalTakerFeePct: 0.05, CEXHedgeTakerFeePct: 0.05, CEXHedgeFundingRate8hPct: 0.01, WithdrawalFeeUSDT: 1, GasWarnThresholdPct: 0.01},
	}
	result := Evaluate(in)
	assert.InDelta(t, in.PremiumPct-result.TotalCostPct, result.NetProfitPct, 0.0001)
}

func TestEvaluate_GasWarnSetWhenGasExceedsThreshold(t *testing.T) {
	in := Inputs{
		AmountKRW: 1000,
		FXRate:    1350,
		Fees:      FeeSchedule{WithdrawalFeeUSDT: 10, GasWarnThresholdPct: 0.01},
	}
	result := Evaluate(in)
	assert.True(t, result.GasWarn)
}

func TestEvaluate_HedgeNoneHasZeroHedgeCost(t *testing.T) {
	in := Inputs{HedgeType: kimpgate.HedgeNone, Fees: FeeSchedule{GlobalTakerFeePct: 0.05, CEXHedgeTakerFeePct: 0.05, CEXHedgeFundingRate8hPct: 0.01}}
	result := Evaluate(in)
	assert.Equal(t, 0.0, result.HedgeCostPct)
}

func TestHedgeCost_UsesHedgeFeeNotGlobalTaker(t *testing.T) {
	fees := FeeSchedule{GlobalTakerFeePct: 0.04, CEXHedgeTakerFeePct: 0.06, CEXHedgeFundingRate8hPct: 0.01, DEXHedgeTakerFeePct: 0.07}
	assert.InDelta(t, 0.07, hedgeCost(kimpgate.HedgeCEX, fees), 0.0001)
	assert.InDelta(t, 0.07, hedgeCost(kimpgate.HedgeDexOnly, fees), 0.0001)
}

func TestEvaluate_UnprofitableScenario(t *testing.T) {
	in := Inputs{
		PremiumPct: 0.5,
		Network:    "ethereum",
		AmountKRW:  10_000_000,
		HedgeType:  kimpgate.HedgeCEX,
		FXRate:     1350,
		Fees:       FeeSchedule{DomesticTakerFeePct: 0.04, GlobalTakerFeePct: 0.05, CEXHedgeTakerFeePct: 0.05, CEXHedgeFundingRate8hPct: 0.01, WithdrawalFeeUSDT: 30, GasWarnThresholdPct: 0.01},
	}
	result := Evaluate(in)
	assert.Less(t, result.NetProfitPct, 0.0)
}
