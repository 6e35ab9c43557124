// Package kimpgate implements the real-time new-listing detection and
// trade-decision pipeline for Korean cryptocurrency exchanges: collectors
// feed a second-level OHLCV aggregator, a listing detector watches exchange
// catalogs, and a gate engine turns a new listing into a graded alert.
package kimpgate

import "time"

// AlertLevel is the graded output of the Gate Engine, consumed by the
// Alert Router to pick a delivery strategy.
type AlertLevel int

const (
	AlertInfo AlertLevel = iota
	AlertLow
	AlertMedium
	AlertHigh
	AlertCritical
)

func (l AlertLevel) String() string {
	switch l {
	case AlertInfo:
		return "INFO"
	case AlertLow:
		return "LOW"
	case AlertMedium:
		return "MEDIUM"
	case AlertHigh:
		return "HIGH"
	case AlertCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// HedgeType identifies how (if at all) a listing-exchange position can be
// hedged against the global market.
type HedgeType int

const (
	HedgeNone HedgeType = iota
	HedgeDexOnly
	HedgeCEX
)

func (h HedgeType) String() string {
	switch h {
	case HedgeCEX:
		return "cex"
	case HedgeDexOnly:
		return "dex_only"
	default:
		return "none"
	}
}

// ListingType distinguishes a first-ever listing (TGE) from a domestic
// listing that follows an existing foreign or domestic one.
type ListingType int

const (
	ListingUnknown ListingType = iota
	ListingTGE
	ListingDirect
	ListingSide
)

func (t ListingType) String() string {
	switch t {
	case ListingTGE:
		return "TGE"
	case ListingDirect:
		return "DIRECT"
	case ListingSide:
		return "SIDE"
	default:
		return "UNKNOWN"
	}
}

// SupplyClassification is the Supply Classifier's output bucket.
type SupplyClassification int

const (
	SupplyUnknown SupplyClassification = iota
	SupplyConstrained
	SupplyNeutral
	SupplySmooth
)

func (s SupplyClassification) String() string {
	switch s {
	case SupplyConstrained:
		return "constrained"
	case SupplyNeutral:
		return "neutral"
	case SupplySmooth:
		return "smooth"
	default:
		return "unknown"
	}
}

// ScenarioOutcome is the Scenario Planner's output bucket.
type ScenarioOutcome int

const (
	OutcomeMang ScenarioOutcome = iota
	OutcomeNeutral
	OutcomeHeung
	OutcomeHeungBig
)

func (o ScenarioOutcome) String() string {
	switch o {
	case OutcomeHeungBig:
		return "HEUNG_BIG"
	case OutcomeHeung:
		return "HEUNG"
	case OutcomeNeutral:
		return "NEUTRAL"
	default:
		return "MANG"
	}
}

// FXSource tags where a resolved FX rate came from. Only the implied
// sources, naver and hardcodedFallback carry trust semantics the Gate
// Engine understands; the rest are opaque labels for logging/persistence.
type FXSource int

const (
	FXUnknown FXSource = iota
	FXNaver
	FXPublicAPI
	FXUSDTDirect
	FXBTCImplied
	FXETHImplied
	FXCached
	FXHardcodedFallback
)

func (s FXSource) String() string {
	switch s {
	case FXNaver:
		return "naver"
	case FXPublicAPI:
		return "public_api"
	case FXUSDTDirect:
		return "usdt_direct"
	case FXBTCImplied:
		return "btc_implied"
	case FXETHImplied:
		return "eth_implied"
	case FXCached:
		return "cached"
	case FXHardcodedFallback:
		return "hardcoded_fallback"
	default:
		return "unknown"
	}
}

// Trusted reports whether this FX source is trustworthy enough to drive an
// actionable (non watch-only) decision. spec.md §4.G.
func (s FXSource) Trusted() bool {
	switch s {
	case FXBTCImplied, FXETHImplied, FXNaver:
		return true
	default:
		return false
	}
}

// ReferenceSource tags the origin of a global reference price.
type ReferenceSource int

const (
	RefUnknown ReferenceSource = iota
	RefFuturesAlpha
	RefFuturesBeta
	RefSpotAlpha
	RefSpotBeta
	RefSpotGamma
	RefAggregated
)

func (s ReferenceSource) String() string {
	switch s {
	case RefFuturesAlpha:
		return "futures_alpha"
	case RefFuturesBeta:
		return "futures_beta"
	case RefSpotAlpha:
		return "spot_alpha"
	case RefSpotBeta:
		return "spot_beta"
	case RefSpotGamma:
		return "spot_gamma"
	case RefAggregated:
		return "aggregated"
	default:
		return "unknown"
	}
}

// VASPStatus describes whether compliance rules allow an on-chain transfer
// between two exchanges.
type VASPStatus int

const (
	VASPUnknown VASPStatus = iota
	VASPOk
	VASPPartial
	VASPBlocked
)

func (s VASPStatus) String() string {
	switch s {
	case VASPOk:
		return "ok"
	case VASPPartial:
		return "partial"
	case VASPBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// PriceLevel is one level of an orderbook side: price and base-asset
// quantity available at that price.
type PriceLevel struct {
	Price float64
	Qty   float64
}

// Orderbook is a capped, two-sided view of a market's depth. Asks sort
// ascending by price, Bids descending, both capped at 50 levels
// (spec.md §4.D).
type Orderbook struct {
	Market string
	Asks   []PriceLevel
	Bids   []PriceLevel
	Ts     time.Time
}

// BestAsk returns the lowest ask price, or 0 if the book is empty.
func (ob *Orderbook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// BestBid returns the highest bid price, or 0 if the book is empty.
func (ob *Orderbook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// TokenIdentity is the canonical symbol -> metadata mapping owned by the
// Token Registry (spec.md §3, §4.B).
type TokenIdentity struct {
	Symbol       string
	CanonicalID  string
	Name         string
	ChainBinding []ChainBinding
}

// ChainBinding ties a token symbol to one on-chain contract.
type ChainBinding struct {
	Chain           string
	ContractAddress string
	Decimals        int
}

// FXSnapshot is an append-only record of a resolved FX rate (spec.md §3).
type FXSnapshot struct {
	Ts             time.Time
	RateKRWPerUSD  float64
	Source         FXSource
	BTCKRW         *float64
	BTCUSD         *float64
	USDTKRWUpbit   *float64
	USDTKRWBithumb *float64
	RealFXRate     *float64
}

// GateInput is the fully-resolved set of facts the Gate Engine evaluates
// hard blockers and warnings against (spec.md §4.J step 5).
type GateInput struct {
	Symbol            string
	Exchange          string
	PremiumPct        float64
	Cost              CostResult
	DepositOpen       bool
	WithdrawalOpen    bool
	TransferTimeMin   float64
	GlobalVolumeUSD   float64
	FXSource          FXSource
	HedgeType         HedgeType
	Network           string
	TopGlobalExchange string
	VASP              VASPStatus
	RefConfidence     float64
	WatchOnly         bool
}

// CostResult is the output of the Cost Model (spec.md §4.I).
type CostResult struct {
	SlippagePct   float64
	GasCostKRW    float64
	ExchangeFeePc float64
	HedgeCostPct  float64
	TotalCostPct  float64
	NetProfitPct  float64
	GasWarn       bool
}

// GateResult is the Gate Engine's decision output (spec.md §4.J). The Gate
// Engine never returns a bare error from its entry point — every failure
// path is folded into one of these, per spec.md §7's propagation policy.
type GateResult struct {
	ID              string
	Symbol          string
	Exchange        string
	CanProceed      bool
	AlertLevel      AlertLevel
	PremiumPct      float64
	NetProfitPct    float64
	TotalCostPct    float64
	FXSource        FXSource
	Blockers        []string
	Warnings        []string
	HedgeType       HedgeType
	Network         string
	GlobalVolumeUSD float64
	DurationMS      int64
	Scenario        *ScenarioResult
	Supply          SupplyResult
}

// ScenarioResult is the Scenario Planner's output (spec.md §4.K).
// UnderSampled is an informational annotation: it is true whenever any
// factor this projection used draws on a coefficient backed by fewer
// than MinSampleSize observations. It never gates the projection — the
// coefficient itself is already shrunk toward zero proportionally to
// its sample count before it ever reaches Probability, so there is no
// unshrunk value for UnderSampled to protect against.
type ScenarioResult struct {
	Probability  float64
	Outcome      ScenarioOutcome
	Best         ScenarioVariant
	Likely       ScenarioVariant
	Worst        ScenarioVariant
	UnderSampled bool
}

// ScenarioVariant is one of the Best/Likely/Worst perturbations of a
// scenario projection.
type ScenarioVariant struct {
	Probability float64
	Outcome     ScenarioOutcome
}

// SupplyResult is the Supply Classifier's output (spec.md §4.L).
type SupplyResult struct {
	Score          float64
	Classification SupplyClassification
	FactorsUsed    int
	Warnings       []string
}
