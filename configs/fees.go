package configs

// Fees mirrors fees.yaml: the taker-fee schedule per domestic exchange
// and the shared hedge-cost/gas-warning parameters the cost model needs.
type Fees struct {
	GlobalTakerFeePct   float64                `yaml:"global_taker_fee_pct"`
	GasWarnThresholdPct float64                `yaml:"gas_warn_threshold_pct"`
	Domestic            map[string]ExchangeFee `yaml:"domestic"`
	HedgeFees           HedgeFees              `yaml:"hedge_fees"`
}

// ExchangeFee is one domestic exchange's taker fee.
type ExchangeFee struct {
	TakerFeePct float64 `yaml:"taker_fee_pct"`
}

// HedgeFees carries the hedge-leg costs, kept separate from the global
// spot taker fee since a perpetual hedge trades on a different market
// with its own taker schedule and funding rate.
type HedgeFees struct {
	CEXPerpetual CEXPerpetualFee `yaml:"cex_perpetual"`
	DEXPerpetual DEXPerpetualFee `yaml:"dex_perpetual"`
}

// CEXPerpetualFee is the taker fee and average funding rate for hedging
// via a centralized-exchange perpetual.
type CEXPerpetualFee struct {
	TakerFeePct      float64 `yaml:"taker"`
	FundingRate8hPct float64 `yaml:"funding_8h_avg"`
}

// DEXPerpetualFee is the taker fee for hedging via an on-chain
// perpetual. DEX funding is left out: it floats too much to model as a
// fixed average.
type DEXPerpetualFee struct {
	TakerFeePct float64 `yaml:"taker"`
}

func defaultFees() Fees {
	return Fees{
		GlobalTakerFeePct:   0.04,
		GasWarnThresholdPct: 1.0,
		Domestic: map[string]ExchangeFee{
			"upbit":   {TakerFeePct: 0.04},
			"bithumb": {TakerFeePct: 0.04},
		},
		HedgeFees: HedgeFees{
			CEXPerpetual: CEXPerpetualFee{TakerFeePct: 0.05, FundingRate8hPct: 0.01},
			DEXPerpetual: DEXPerpetualFee{TakerFeePct: 0.05},
		},
	}
}

// domesticTakerFeePct looks up exchange's taker fee, falling back to the
// shared global taker fee when exchange is unconfigured.
func (f Fees) domesticTakerFeePct(exchange string) float64 {
	if ex, ok := f.Domestic[exchange]; ok {
		return ex.TakerFeePct
	}
	return f.GlobalTakerFeePct
}
