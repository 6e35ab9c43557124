// Package gate implements the Gate Engine described in spec.md §4.J:
// the single entry point that turns a detected listing into a graded
// Go/No-Go decision by combining FX, reference-price, cost, supply and
// scenario signals against a fixed set of hard blockers and warnings.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	kimpgate "github.com/kimgate/kimpgate"
	"github.com/kimgate/kimpgate/internal/cost"
	"github.com/kimgate/kimpgate/internal/fx"
	"github.com/kimgate/kimpgate/internal/refprice"
	"github.com/kimgate/kimpgate/internal/scenario"
	"github.com/kimgate/kimpgate/internal/storage"
	"github.com/kimgate/kimpgate/internal/supply"
)

// MinGlobalVolumeUSD / MaxTransferMinutes are the warning/blocker
// thresholds from spec.md §4.J (liquidity floor, transfer-time cap).
// These are vars rather than consts so configs.Config.ApplyGateThresholds
// can override them
// from thresholds.yaml at startup, before the first Evaluate call.
var (
	MinGlobalVolumeUSD     = 100_000.0
	MaxTransferMinutes     = 30.0
	WatchOnlyRefConfidence = 0.6
	DefaultAmountKRW       = 10_000_000.0
)

// VASPLookup resolves the compliance status of transferring from one
// exchange to another; returns VASPUnknown when the route isn't known.
type VASPLookup func(from, to string) kimpgate.VASPStatus

// MarketFacts is everything the engine must fetch live to evaluate a
// listing beyond what FX/reference-price/cost/supply already provide.
type MarketFacts struct {
	DomesticPriceKRW  float64
	DepositOpen       bool
	WithdrawalOpen    bool
	TransferTimeMin   float64
	GlobalVolumeUSD   float64
	HedgeType         kimpgate.HedgeType
	Network           string
	TopGlobalExchange string
	Fees              cost.FeeSchedule
	Orderbook         *kimpgate.Orderbook
	Supply            supply.Input
	Market            scenario.MarketCondition
	TGE               scenario.TGERisk
}

// FactsFetcher resolves MarketFacts for a symbol/exchange pair; any
// error is folded into a gate blocker rather than propagated.
type FactsFetcher func(ctx context.Context, symbol, exchange string) (MarketFacts, error)

// Engine is the Gate Engine's single entry point.
type Engine struct {
	FX       *fx.Resolver
	Ref      *refprice.Fetcher
	Facts    FactsFetcher
	VASP     VASPLookup
	Writer   *storage.Writer
	Log      zerolog.Logger
	AmountKRW float64
}

// New builds an Engine with spec.md's default trade-sizing amount.
func New(fxResolver *fx.Resolver, refFetcher *refprice.Fetcher, facts FactsFetcher, vasp VASPLookup, w *storage.Writer, log zerolog.Logger) *Engine {
	return &Engine{FX: fxResolver, Ref: refFetcher, Facts: facts, VASP: vasp, Writer: w, Log: log, AmountKRW: DefaultAmountKRW}
}

// AnalyzeListing is the Gate Engine's entry point, called once per
// detected listing. It never returns a bare error: any upstream fetch
// failure degrades to a NO-GO GateResult with an explanatory blocker,
// per spec.md §7's propagation policy.
func (e *Engine) AnalyzeListing(ctx context.Context, symbol, exchange string) kimpgate.GateResult {
	facts, err := e.Facts(ctx, symbol, exchange)
	if err != nil {
		return kimpgate.GateResult{
			Symbol: symbol, Exchange: exchange, CanProceed: false,
			Blockers:   []string{fmt.Sprintf("market data fetch failed: %v", err)},
			AlertLevel: kimpgate.AlertHigh,
		}
	}
	if facts.DomesticPriceKRW <= 0 {
		return kimpgate.GateResult{
			Symbol: symbol, Exchange: exchange, CanProceed: false,
			Blockers:   []string{fmt.Sprintf("domestic price lookup failed: %s@%s", symbol, exchange)},
			AlertLevel: kimpgate.AlertHigh,
		}
	}

	fxSnap := e.FX.Resolve(ctx)
	quote, refErr := e.Ref.Fetch(ctx, symbol)
	if refErr != nil {
		return kimpgate.GateResult{
			Symbol: symbol, Exchange: exchange, CanProceed: false,
			Blockers:   []string{fmt.Sprintf("reference price lookup failed: %v", refErr)},
			AlertLevel: kimpgate.AlertHigh,
		}
	}

	premiumPct := cost.Premium(facts.DomesticPriceKRW, quote.PriceUSD, fxSnap.RateKRWPerUSD)
	costResult := cost.Evaluate(cost.Inputs{
		PremiumPct: premiumPct,
		AmountKRW:  e.AmountKRW,
		FXRate:     fxSnap.RateKRWPerUSD,
		Network:    facts.Network,
		HedgeType:  facts.HedgeType,
		Orderbook:  facts.Orderbook,
		Fees:       facts.Fees,
	})

	vasp := kimpgate.VASPUnknown
	if e.VASP != nil {
		vasp = e.VASP(exchange, facts.TopGlobalExchange)
	}

	in := kimpgate.GateInput{
		Symbol: symbol, Exchange: exchange, PremiumPct: premiumPct, Cost: costResult,
		DepositOpen: facts.DepositOpen, WithdrawalOpen: facts.WithdrawalOpen,
		TransferTimeMin: facts.TransferTimeMin, GlobalVolumeUSD: facts.GlobalVolumeUSD,
		FXSource: fxSnap.Source, HedgeType: facts.HedgeType, Network: facts.Network,
		TopGlobalExchange: facts.TopGlobalExchange, VASP: vasp, RefConfidence: quote.Confidence,
	}

	start := time.Now()
	result := Evaluate(in)
	result.ID = uuid.NewString()
	result.Symbol, result.Exchange = symbol, exchange
	result.GlobalVolumeUSD = facts.GlobalVolumeUSD
	result.DurationMS = time.Since(start).Milliseconds()

	supplyResult := supply.Classify(facts.Supply)
	scenarioResult := scenario.Generate(scenario.Input{
		Symbol: symbol, Exchange: exchange, Supply: supplyResult.Classification,
		HedgeType: facts.HedgeType, Market: facts.Market, TGE: facts.TGE,
		RefPriceConfidence: quote.Confidence,
	})
	result.Supply = supplyResult
	result.Scenario = &scenarioResult

	e.persist(result)
	return result
}

// persist records the decision to gate_analysis_log through the
// durable-queue Writer at Normal priority: a dropped analysis-log row
// loses an audit trail entry, not a live decision, so it doesn't
// warrant blocking the caller the way an FX snapshot miss does.
func (e *Engine) persist(result kimpgate.GateResult) {
	if e.Writer == nil {
		return
	}
	blockersJSON, _ := json.Marshal(result.Blockers)
	warningsJSON, _ := json.Marshal(result.Warnings)
	scenarioOutcome := ""
	if result.Scenario != nil {
		scenarioOutcome = result.Scenario.Outcome.String()
	}
	e.Writer.Enqueue(
		`INSERT INTO gate_analysis_log (
			id, ts, symbol, exchange, can_proceed, alert_level, premium_pct,
			net_profit_pct, total_cost_pct, fx_source, blockers_json,
			warnings_json, hedge_type, network, global_volume_usd,
			duration_ms, scenario_outcome, supply_classification
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		[]any{
			result.ID, time.Now().Unix(), result.Symbol, result.Exchange, result.CanProceed,
			result.AlertLevel.String(), result.PremiumPct, result.NetProfitPct, result.TotalCostPct,
			result.FXSource.String(), string(blockersJSON), string(warningsJSON),
			result.HedgeType.String(), result.Network, result.GlobalVolumeUSD,
			result.DurationMS, scenarioOutcome, result.Supply.Classification.String(),
		},
		storage.Normal,
	)
}

// Evaluate is the Gate Engine's pure decision function: five hard
// blockers, four warnings, two watch-only blockers, then an alert-level
// derivation. It is
// deterministic and side-effect-free so every spec.md §8 boundary case
// can be tested directly against it.
func Evaluate(in kimpgate.GateInput) kimpgate.GateResult {
	var blockers, warnings []string

	if !in.DepositOpen {
		blockers = append(blockers, fmt.Sprintf("deposit closed: %s", in.Exchange))
	}
	if !in.WithdrawalOpen {
		blockers = append(blockers, fmt.Sprintf("withdrawal closed: %s", in.Exchange))
	}
	if in.Cost.NetProfitPct <= 0 {
		blockers = append(blockers, fmt.Sprintf(
			"insufficient profit: net %.2f%% (premium %.2f%% - cost %.2f%%)",
			in.Cost.NetProfitPct, in.PremiumPct, in.Cost.TotalCostPct,
		))
	}
	if in.TransferTimeMin > MaxTransferMinutes {
		blockers = append(blockers, fmt.Sprintf(
			"transfer time exceeds cap: %.0f min (max %.0f)", in.TransferTimeMin, MaxTransferMinutes,
		))
	}
	if in.VASP == kimpgate.VASPBlocked {
		blockers = append(blockers, fmt.Sprintf("VASP blocked: %s -> %s", in.Exchange, in.TopGlobalExchange))
	}

	if in.GlobalVolumeUSD < MinGlobalVolumeUSD {
		warnings = append(warnings, fmt.Sprintf(
			"low liquidity: global 24h volume $%.0f (min $%.0f)", in.GlobalVolumeUSD, MinGlobalVolumeUSD,
		))
	}
	if in.Cost.GasWarn {
		warnings = append(warnings, fmt.Sprintf("gas warning: %s (%.0f KRW)", in.Network, in.Cost.GasCostKRW))
	}
	if in.HedgeType == kimpgate.HedgeDexOnly {
		warnings = append(warnings, "dex-only hedge: no CEX futures support")
	}
	if in.VASP == kimpgate.VASPPartial || in.VASP == kimpgate.VASPUnknown {
		warnings = append(warnings, fmt.Sprintf("VASP caution: %s -> %s (%s)", in.Exchange, in.TopGlobalExchange, in.VASP))
	}

	if in.FXSource == kimpgate.FXHardcodedFallback {
		blockers = append(blockers, "FX hardcoded fallback in use — premium not trustworthy (watch-only)")
	}
	if in.RefConfidence > 0 && in.RefConfidence < WatchOnlyRefConfidence {
		blockers = append(blockers, fmt.Sprintf("reference price confidence too low: %.2f (min %.2f, watch-only)", in.RefConfidence, WatchOnlyRefConfidence))
	}

	canProceed := len(blockers) == 0

	return kimpgate.GateResult{
		CanProceed:      canProceed,
		AlertLevel:      determineAlertLevel(canProceed, blockers, warnings, in),
		PremiumPct:      in.PremiumPct,
		NetProfitPct:    in.Cost.NetProfitPct,
		TotalCostPct:    in.Cost.TotalCostPct,
		FXSource:        in.FXSource,
		Blockers:        blockers,
		Warnings:        warnings,
		HedgeType:       in.HedgeType,
		Network:         in.Network,
		GlobalVolumeUSD: in.GlobalVolumeUSD,
	}
}

// determineAlertLevel mirrors the decision table: a NO-GO always means
// at least one blocker (canProceed := len(blockers) == 0), so it is
// HIGH unconditionally — listing detection is time-sensitive and a
// no-go still needs immediate human review. A GO with an actionable
// hedge, a trusted FX source and no warnings is CRITICAL. Among the
// remaining GOs, an untrusted FX source or more than one compounding
// warning is degraded enough to send immediately (HIGH); exactly one
// warning is informational enough to batch (LOW); a clean GO that
// merely isn't actionable (no hedge) or isn't CRITICAL for any other
// single reason is a log-only INFO.
func determineAlertLevel(canProceed bool, blockers, warnings []string, in kimpgate.GateInput) kimpgate.AlertLevel {
	if !canProceed {
		return kimpgate.AlertHigh
	}

	actionable := in.HedgeType != kimpgate.HedgeNone
	trustedFX := in.FXSource.Trusted()

	switch {
	case trustedFX && actionable && len(warnings) == 0:
		return kimpgate.AlertCritical
	case !trustedFX || len(warnings) > 1:
		return kimpgate.AlertHigh
	case len(warnings) == 1:
		return kimpgate.AlertLow
	default:
		return kimpgate.AlertInfo
	}
}
