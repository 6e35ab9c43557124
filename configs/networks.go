package configs

// Networks mirrors networks.yaml: per-chain withdrawal economics and
// expected transfer time, keyed by network name (e.g. "ethereum").
type Networks struct {
	Chains map[string]NetworkProfile `yaml:"chains"`
}

// NetworkProfile is one chain's withdrawal fee and expected transfer
// time, used by the cost model (withdrawal fee) and the Gate Engine
// (transfer-time cap).
type NetworkProfile struct {
	WithdrawalFeeUSDT float64 `yaml:"withdrawal_fee_usdt"`
	TransferTimeMin   float64 `yaml:"transfer_time_min"`
}

func defaultNetworks() Networks {
	return Networks{Chains: map[string]NetworkProfile{
		"ethereum": {WithdrawalFeeUSDT: 5.0, TransferTimeMin: 15},
		"tron":     {WithdrawalFeeUSDT: 1.0, TransferTimeMin: 5},
		"bsc":      {WithdrawalFeeUSDT: 0.3, TransferTimeMin: 5},
		"polygon":  {WithdrawalFeeUSDT: 0.5, TransferTimeMin: 5},
	}}
}

// Profile looks up network, falling back to the most conservative
// (Ethereum) profile when unconfigured.
func (n Networks) Profile(network string) NetworkProfile {
	if p, ok := n.Chains[network]; ok {
		return p
	}
	return n.Chains["ethereum"]
}
