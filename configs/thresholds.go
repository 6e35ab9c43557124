package configs

import "time"

// Thresholds mirrors thresholds.yaml: every numeric knob in the pipeline
// that isn't fee/network/exchange/VASP/feature data. Grouped by the
// component it tunes, matching SPEC_FULL.md's §4 section numbering.
type Thresholds struct {
	FX             FXThresholds       `yaml:"fx"`
	RefPrice       RefPriceThresholds `yaml:"refprice"`
	Gate           GateThresholds     `yaml:"gate"`
	Supply         SupplyThresholds   `yaml:"supply_weights"`
	Alert          AlertThresholds    `yaml:"alert"`
	HTTPTimeoutSec float64            `yaml:"http_timeout_sec"`
}

// FXThresholds tunes internal/fx.Resolver.
type FXThresholds struct {
	CacheTTLSec                float64 `yaml:"cache_ttl_sec"`
	HardcodedFallbackKRWPerUSD float64 `yaml:"hardcoded_fallback_krw_per_usd"`
}

// RefPriceThresholds tunes internal/refprice.Fetcher.
type RefPriceThresholds struct {
	CacheSize int `yaml:"cache_size"`
}

// GateThresholds tunes internal/gate's blocker/warning cutoffs.
type GateThresholds struct {
	MinGlobalVolumeUSD     float64 `yaml:"min_global_volume_usd"`
	MaxTransferMinutes     float64 `yaml:"max_transfer_minutes"`
	WatchOnlyRefConfidence float64 `yaml:"watch_only_ref_confidence"`
	DefaultAmountKRW       float64 `yaml:"default_amount_krw"`
}

// SupplyThresholds tunes internal/supply.Classify's weight sets.
type SupplyThresholds struct {
	Default   map[string]float64 `yaml:"default"`
	NoAirdrop map[string]float64 `yaml:"no_airdrop"`
}

// AlertThresholds tunes internal/alert.Router.
type AlertThresholds struct {
	DebounceTTLSec   float64 `yaml:"debounce_ttl_sec"`
	BatchIntervalSec float64 `yaml:"batch_interval_sec"`
	MaxBatch         int     `yaml:"max_batch"`
}

func defaultThresholds() Thresholds {
	return Thresholds{
		FX: FXThresholds{
			CacheTTLSec:                300,
			HardcodedFallbackKRWPerUSD: 1350.0,
		},
		RefPrice: RefPriceThresholds{CacheSize: 1024},
		Gate: GateThresholds{
			MinGlobalVolumeUSD:     100_000.0,
			MaxTransferMinutes:     30.0,
			WatchOnlyRefConfidence: 0.6,
			DefaultAmountKRW:       10_000_000.0,
		},
		Supply: SupplyThresholds{
			Default: map[string]float64{
				"hot_wallet": 0.30, "dex_liquidity": 0.25, "withdrawal": 0.20,
				"airdrop": 0.15, "network": 0.10,
			},
			NoAirdrop: map[string]float64{
				"hot_wallet": 0.35, "dex_liquidity": 0.30, "withdrawal": 0.23, "network": 0.12,
			},
		},
		Alert: AlertThresholds{
			DebounceTTLSec:   300,
			BatchIntervalSec: 3600,
			MaxBatch:         500,
		},
		HTTPTimeoutSec: 10,
	}
}

// CacheTTL converts FX.CacheTTLSec to a time.Duration.
func (f FXThresholds) CacheTTL() time.Duration {
	return time.Duration(f.CacheTTLSec * float64(time.Second))
}

// DebounceTTL converts Alert.DebounceTTLSec to a time.Duration.
func (a AlertThresholds) DebounceTTL() time.Duration {
	return time.Duration(a.DebounceTTLSec * float64(time.Second))
}

// BatchInterval converts Alert.BatchIntervalSec to a time.Duration.
func (a AlertThresholds) BatchInterval() time.Duration {
	return time.Duration(a.BatchIntervalSec * float64(time.Second))
}

// HTTPTimeout converts HTTPTimeoutSec to a time.Duration.
func (t Thresholds) HTTPTimeout() time.Duration {
	return time.Duration(t.HTTPTimeoutSec * float64(time.Second))
}
