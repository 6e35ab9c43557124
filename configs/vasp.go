package configs

import (
	kimpgate "github.com/kimgate/kimpgate"
)

// VASP mirrors vasp.yaml: travel-rule compliance status for specific
// (from-exchange, to-exchange) transfer routes, with a configurable
// default for routes not explicitly listed.
type VASP struct {
	Default string      `yaml:"default"`
	Routes  []VASPRoute `yaml:"routes"`
}

// VASPRoute is one explicitly-classified transfer route.
type VASPRoute struct {
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Status string `yaml:"status"`
}

func defaultVASP() VASP {
	return VASP{
		Default: "unknown",
		Routes: []VASPRoute{
			{From: "upbit", To: "binance", Status: "ok"},
			{From: "bithumb", To: "binance", Status: "ok"},
		},
	}
}

func parseVASPStatus(s string) kimpgate.VASPStatus {
	switch s {
	case "ok":
		return kimpgate.VASPOk
	case "partial":
		return kimpgate.VASPPartial
	case "blocked":
		return kimpgate.VASPBlocked
	default:
		return kimpgate.VASPUnknown
	}
}

// Lookup returns the configured status for the from -> to route, or the
// Default status when no route matches; its signature matches
// gate.VASPLookup, so the method value can be passed as one.
func (v VASP) Lookup(from, to string) kimpgate.VASPStatus {
	for _, r := range v.Routes {
		if r.From == from && r.To == to {
			return parseVASPStatus(r.Status)
		}
	}
	return parseVASPStatus(v.Default)
}
