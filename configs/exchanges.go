package configs

// Exchanges mirrors exchanges.yaml: which global venue each domestic
// exchange's premium is measured against, and whether its catalog/
// deposit-withdrawal status endpoints are enabled.
type Exchanges struct {
	TopGlobalExchange string                    `yaml:"top_global_exchange"`
	Domestic          map[string]ExchangeConfig `yaml:"domestic"`
}

// ExchangeConfig is one domestic exchange's catalog/status endpoints.
type ExchangeConfig struct {
	CatalogEnabled bool   `yaml:"catalog_enabled"`
	StatusEnabled  bool   `yaml:"status_enabled"`
	HedgeType      string `yaml:"hedge_type"`       // "cex", "dex_only", or "none" — default for this exchange's listings
	NoticeBoardURL string `yaml:"notice_board_url"` // empty disables notice polling for this exchange
}

func defaultExchanges() Exchanges {
	return Exchanges{
		TopGlobalExchange: "binance",
		Domestic: map[string]ExchangeConfig{
			"upbit":   {CatalogEnabled: true, StatusEnabled: true, HedgeType: "cex", NoticeBoardURL: "https://upbit.com/service_center/notice"},
			"bithumb": {CatalogEnabled: true, StatusEnabled: true, HedgeType: "cex", NoticeBoardURL: "https://feed.bithumb.com/notice"},
		},
	}
}
