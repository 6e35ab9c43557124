// Package configs loads the six YAML files that parameterize the
// pipeline (fees, networks, exchanges, vasp, features, thresholds) and
// composes them into the shapes internal/* components expect.
package configs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/kimgate/kimpgate/internal/cost"
	"github.com/kimgate/kimpgate/internal/gate"
)

// Config is the fully-resolved, process-lifetime configuration.
type Config struct {
	Fees       Fees
	Networks   Networks
	Exchanges  Exchanges
	VASP       VASP
	Features   Features
	Thresholds Thresholds
}

// Default returns the shipped-constant configuration, equivalent to
// what Load returns when dir contains no YAML files at all.
func Default() *Config {
	return &Config{
		Fees:       defaultFees(),
		Networks:   defaultNetworks(),
		Exchanges:  defaultExchanges(),
		VASP:       defaultVASP(),
		Features:   defaultFeatures(),
		Thresholds: defaultThresholds(),
	}
}

// Load reads fees.yaml, networks.yaml, exchanges.yaml, vasp.yaml,
// features.yaml and thresholds.yaml from dir. A missing file keeps that
// section's shipped defaults and logs a warning; a present-but-malformed
// file is fatal, since a typo'd threshold silently falling back to a
// default is worse than a hard startup failure.
func Load(dir string, log zerolog.Logger) (*Config, error) {
	cfg := Default()

	if err := loadYAML(dir, "fees.yaml", &cfg.Fees, log); err != nil {
		return nil, err
	}
	if err := loadYAML(dir, "networks.yaml", &cfg.Networks, log); err != nil {
		return nil, err
	}
	if err := loadYAML(dir, "exchanges.yaml", &cfg.Exchanges, log); err != nil {
		return nil, err
	}
	if err := loadYAML(dir, "vasp.yaml", &cfg.VASP, log); err != nil {
		return nil, err
	}
	if err := loadYAML(dir, "features.yaml", &cfg.Features, log); err != nil {
		return nil, err
	}
	if err := loadYAML(dir, "thresholds.yaml", &cfg.Thresholds, log); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadYAML(dir, name string, out any, log zerolog.Logger) error {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("file", name).Msg("config file not found, using defaults")
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// FeeSchedule composes Fees and Networks into the cost.FeeSchedule shape
// internal/cost.Evaluate needs for one (exchange, network) pair.
func (c *Config) FeeSchedule(exchange, network string) cost.FeeSchedule {
	return cost.FeeSchedule{
		DomesticTakerFeePct:      c.Fees.domesticTakerFeePct(exchange),
		GlobalTakerFeePct:        c.Fees.GlobalTakerFeePct,
		WithdrawalFeeUSDT:        c.Networks.Profile(network).WithdrawalFeeUSDT,
		GasWarnThresholdPct:      c.Fees.GasWarnThresholdPct,
		CEXHedgeTakerFeePct:      c.Fees.HedgeFees.CEXPerpetual.TakerFeePct,
		CEXHedgeFundingRate8hPct: c.Fees.HedgeFees.CEXPerpetual.FundingRate8hPct,
		DEXHedgeTakerFeePct:      c.Fees.HedgeFees.DEXPerpetual.TakerFeePct,
	}
}

// ApplyGateThresholds overrides internal/gate's package-level threshold
// vars from configuration. Must be called before the first
// gate.Evaluate/AnalyzeListing call, since Evaluate reads them directly
// rather than taking them as arguments.
func (c *Config) ApplyGateThresholds() {
	gate.MinGlobalVolumeUSD = c.Thresholds.Gate.MinGlobalVolumeUSD
	gate.MaxTransferMinutes = c.Thresholds.Gate.MaxTransferMinutes
	gate.WatchOnlyRefConfidence = c.Thresholds.Gate.WatchOnlyRefConfidence
	gate.DefaultAmountKRW = c.Thresholds.Gate.DefaultAmountKRW
}
