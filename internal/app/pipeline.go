package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	kimpgate "github.com/kimgate/kimpgate"
	"github.com/kimgate/kimpgate/configs"
	"github.com/kimgate/kimpgate/internal/aggregator"
	"github.com/kimgate/kimpgate/internal/alert"
	"github.com/kimgate/kimpgate/internal/bucket"
	"github.com/kimgate/kimpgate/internal/collector"
	"github.com/kimgate/kimpgate/internal/fx"
	"github.com/kimgate/kimpgate/internal/gate"
	"github.com/kimgate/kimpgate/internal/health"
	"github.com/kimgate/kimpgate/internal/hotwallet"
	"github.com/kimgate/kimpgate/internal/listing"
	"github.com/kimgate/kimpgate/internal/orchestrator"
	"github.com/kimgate/kimpgate/internal/refprice"
	"github.com/kimgate/kimpgate/internal/registry"
	"github.com/kimgate/kimpgate/internal/scenario"
	"github.com/kimgate/kimpgate/internal/storage"
	"github.com/kimgate/kimpgate/internal/supply"
)

// Pipeline is the top-level handle a caller (cmd/kimpgated or a test)
// builds once and runs for the life of the process: every Component A-O
// wired together per spec.md §4's data-flow paragraph.
type Pipeline struct {
	Config *configs.Config

	DB     *sql.DB
	Writer *storage.Writer

	FX        *fx.Resolver
	Ref       *refprice.Fetcher
	Registry  *registry.Registry
	HotWallet *hotwallet.Tracker
	Gate      *gate.Engine
	Alert     *alert.Router
	Health    *health.Monitor

	orch *orchestrator.Orchestrator
	log  zerolog.Logger
}

// Options carries the optional external dependencies a caller may wire
// in; everything else is derived from cfg. A zero-value Options is a
// perfectly valid, if minimally-capable, configuration: no chain RPCs,
// default reference-price sources, no interactive bot.
type Options struct {
	DBPath         string // defaults to "kimpgate.db"
	HealthPath     string // defaults to "health.json"
	ChainClients   map[string]*ethclient.Client
	HotWallets     map[string][]hotwallet.Wallet
	RefPriceStages [6]refprice.FetchFunc // futures alpha/beta, spot alpha/beta/gamma, aggregated
	InteractiveBot func(ctx context.Context)
}

// New opens storage, applies migrations, and wires every component
// against cfg. It never starts any goroutine; call Run to start the
// daemon.
func New(cfg *configs.Config, opts Options, log zerolog.Logger) (*Pipeline, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = "kimpgate.db"
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("app: open storage: %w", err)
	}
	if err := storage.ApplyMigrations(db); err != nil {
		return nil, fmt.Errorf("app: apply migrations: %w", err)
	}

	w := storage.New(db, log)
	cfg.ApplyGateThresholds()

	fxResolver := fx.New(w)
	fxResolver.CacheTTL = cfg.Thresholds.FX.CacheTTL()
	fxResolver.HardcodedFallback = cfg.Thresholds.FX.HardcodedFallbackKRWPerUSD

	refFetcher := refprice.New(
		opts.RefPriceStages[0], opts.RefPriceStages[1],
		opts.RefPriceStages[2], opts.RefPriceStages[3], opts.RefPriceStages[4],
		opts.RefPriceStages[5],
	)

	reg := registry.New(w)
	wallets := hotwallet.New(opts.ChainClients, opts.HotWallets)

	obCache := collector.NewOrderbookCache()
	upbitBucket, bithumbBucket := bucket.New(), bucket.New()
	upbitCollector := collector.New(collector.NewUpbit(upbitBucket, obCache), collector.Config{}, log)
	bithumbCollector := collector.New(collector.NewBithumb(bithumbBucket, obCache), collector.Config{}, log)

	facts := newFactsFetcher(cfg, obCache, reg, wallets, refFetcher)

	vaspLookup := gate.VASPLookup(cfg.VASP.Lookup)
	gateEngine := gate.New(fxResolver, refFetcher, facts, vaspLookup, w, log)

	alertRouter := alert.New(db, w, log)
	alertRouter.DebounceTTL = cfg.Thresholds.Alert.DebounceTTL()
	alertRouter.BatchInterval = cfg.Thresholds.Alert.BatchInterval()
	alertRouter.MaxBatch = cfg.Thresholds.Alert.MaxBatch

	healthPath := opts.HealthPath
	if healthPath == "" {
		healthPath = "health.json"
	}
	sources := []health.Source{upbitCollector, bithumbCollector}
	monitor := health.New(healthPath, 1, sources, w, log)

	agg := aggregator.New(db, w, log)

	orchCfg := orchestrator.Config{
		DB:     db,
		Writer: w,
		Collectors: []orchestrator.CollectorSource{
			{Exchange: "upbit", Collector: upbitCollector, Bucket: upbitBucket, Catalog: listing.NewUpbitCatalog(), NoticeURL: cfg.Exchanges.Domestic["upbit"].NoticeBoardURL},
			{Exchange: "bithumb", Collector: bithumbCollector, Bucket: bithumbBucket, Catalog: listing.NewBithumbCatalog(), NoticeURL: cfg.Exchanges.Domestic["bithumb"].NoticeBoardURL},
		},
		Aggregator:          agg,
		Gate:                gateEngine,
		Alert:               alertRouter,
		Health:              monitor,
		ListingPollInterval: orchestrator.DefaultListingPollInterval,
		InteractiveBot:      opts.InteractiveBot,
		Log:                 log,
	}
	if cfg.Features.NoticePollerEnabled {
		orchCfg.NoticeFetcher = listing.NewHTTPNoticeFetcher()
	}

	return &Pipeline{
		Config:    cfg,
		DB:        db,
		Writer:    w,
		FX:        fxResolver,
		Ref:       refFetcher,
		Registry:  reg,
		HotWallet: wallets,
		Gate:      gateEngine,
		Alert:     alertRouter,
		Health:    monitor,
		orch:      orchestrator.New(orchCfg),
		log:       log,
	}, nil
}

// Run starts every component and blocks until ctx is cancelled, then
// runs the orchestrator's ordered shutdown before returning.
func (p *Pipeline) Run(ctx context.Context) error {
	return p.orch.Run(ctx)
}

// Stop requests a graceful shutdown; Run returns once it completes.
func (p *Pipeline) Stop() {
	p.orch.Stop()
}

// nativeTokenSymbol maps an EVM chain name to the reference-price
// symbol for its native gas token, so hot-wallet native balances can be
// priced in USD instead of defaulting to zero.
var nativeTokenSymbol = map[string]string{
	"ethereum":  "ETH",
	"arbitrum":  "ETH",
	"optimism":  "ETH",
	"bsc":       "BNB",
	"polygon":   "MATIC",
	"avalanche": "AVAX",
}

// nativeUSDPrices resolves the USD price of every native-gas-token chain
// exchange's hot wallets actually touch, via the same Reference-Price
// Fetcher the Gate Engine uses for the traded symbol itself. A chain
// with no known native symbol or a failed fetch is simply omitted: the
// caller already treats a missing entry in the returned map as "no
// price available" rather than "worth zero".
func nativeUSDPrices(ctx context.Context, ref *refprice.Fetcher, wallets *hotwallet.Tracker, exchange string) map[string]float64 {
	prices := make(map[string]float64)
	seen := make(map[string]bool)
	for _, w := range wallets.Wallets[exchange] {
		if !w.IsNative() || seen[w.Chain] {
			continue
		}
		seen[w.Chain] = true
		symbol, ok := nativeTokenSymbol[w.Chain]
		if !ok {
			continue
		}
		if quote, err := ref.Fetch(ctx, symbol); err == nil {
			prices[w.Chain] = quote.PriceUSD
		}
	}
	return prices
}

// newFactsFetcher closes over the components available at construction
// time to build the gate.FactsFetcher the Gate Engine calls once per
// detected listing. Every unresolved fact degrades to a conservative
// default rather than failing the whole fetch, per spec.md §4.J's "gate
// never blocks on missing data" rule.
func newFactsFetcher(cfg *configs.Config, obCache *collector.OrderbookCache, reg *registry.Registry, wallets *hotwallet.Tracker, ref *refprice.Fetcher) gate.FactsFetcher {
	return func(ctx context.Context, symbol, exchange string) (gate.MarketFacts, error) {
		exCfg := cfg.Exchanges.Domestic[exchange]
		hedgeType := parseHedgeType(exCfg.HedgeType)

		network := "ethereum"
		if id, ok := reg.Lookup(symbol); ok && len(id.ChainBinding) > 0 {
			network = id.ChainBinding[0].Chain
		}

		market := collector.Qualify(exchange, symbol)
		var obPtr *kimpgate.Orderbook
		var domesticPriceKRW float64
		if ob, ok := obCache.Get(market); ok {
			obPtr = &ob
			domesticPriceKRW = ob.BestAsk()
		}

		var hotWalletUSD *float64
		hotWalletConfidence := 0.5
		nativePrices := nativeUSDPrices(ctx, ref, wallets, exchange)
		if usd, conf, ok := wallets.Balance(ctx, exchange, nativePrices); ok {
			hotWalletUSD = &usd
			hotWalletConfidence = conf
		}

		supplyInput := supply.Input{
			Symbol:              symbol,
			Exchange:            exchange,
			HotWalletUSD:        hotWalletUSD,
			HotWalletConfidence: hotWalletConfidence,
		}

		return gate.MarketFacts{
			DomesticPriceKRW:  domesticPriceKRW,
			DepositOpen:       exCfg.StatusEnabled,
			WithdrawalOpen:    exCfg.StatusEnabled,
			TransferTimeMin:   cfg.Networks.Profile(network).TransferTimeMin,
			HedgeType:         hedgeType,
			Network:           network,
			TopGlobalExchange: cfg.Exchanges.TopGlobalExchange,
			Fees:              cfg.FeeSchedule(exchange, network),
			Orderbook:         obPtr,
			Supply:            supplyInput,
			Market:            scenario.MarketNeutral,
			TGE:               scenario.TGEUnknown,
		}, nil
	}
}

func parseHedgeType(s string) kimpgate.HedgeType {
	switch s {
	case "cex":
		return kimpgate.HedgeCEX
	case "dex_only":
		return kimpgate.HedgeDexOnly
	default:
		return kimpgate.HedgeNone
	}
}

