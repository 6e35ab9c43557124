// Package orchestrator wires every component into the long-lived daemon
// described in spec.md §4.O: an ordered startup, N concurrently-running
// tasks supervised by a context.Context/sync.WaitGroup pair generalizing
// a single report-channel pattern into many, and an ordered shutdown.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	kimpgate "github.com/kimgate/kimpgate"
	"github.com/kimgate/kimpgate/internal/aggregator"
	"github.com/kimgate/kimpgate/internal/bucket"
	"github.com/kimgate/kimpgate/internal/collector"
	"github.com/kimgate/kimpgate/internal/health"
	"github.com/kimgate/kimpgate/internal/listing"
	"github.com/kimgate/kimpgate/internal/storage"
)

// GateAnalyzer is the subset of *gate.Engine the orchestrator drives;
// narrowed to an interface so the listing -> decision -> alert handoff
// is testable without a fully-wired Engine.
type GateAnalyzer interface {
	AnalyzeListing(ctx context.Context, symbol, exchange string) kimpgate.GateResult
}

// AlertSender is the subset of *alert.Router the orchestrator drives.
type AlertSender interface {
	Send(ctx context.Context, level kimpgate.AlertLevel, message, key string)
	FlushBatch(ctx context.Context)
}

// DefaultListingPollInterval is how often each exchange's catalog
// fetcher is polled for new symbols.
const DefaultListingPollInterval = 30 * time.Second

// consecutiveFailureEscalation is how many back-to-back catalog poll
// failures before the poller escalates from a Warn log to an Error log,
// per spec.md §7's consecutive-failure escalation requirement.
const consecutiveFailureEscalation = 5

// DefaultNoticePollInterval is how often each exchange's notice board
// is polled for new posts.
const DefaultNoticePollInterval = 60 * time.Second

// CollectorSource pairs a running Collector with the Second Bucket it
// feeds, so the orchestrator can drive shutdown's flush step without the
// collector package needing to know about buckets.
type CollectorSource struct {
	Exchange  string
	Collector *collector.Collector
	Bucket    *bucket.SecondBucket
	Catalog   listing.CatalogFetcher
	// NoticeURL is the exchange's notice board, polled by runNoticePoller
	// when both this and Config.NoticeFetcher are set. Empty disables
	// notice polling for this exchange.
	NoticeURL string
}

// Config is everything the Orchestrator needs to start the daemon.
// Writer-dependent components (FX, reference price, gate engine, alert
// router) are supplied pre-built by the caller, since they must be
// constructed after the Writer exists.
type Config struct {
	DB     *sql.DB
	Writer *storage.Writer

	Collectors []CollectorSource

	Aggregator *aggregator.Aggregator

	Gate  GateAnalyzer
	Alert AlertSender

	Health              *health.Monitor
	ListingPollInterval time.Duration
	NoticePollInterval  time.Duration

	// NoticeFetcher, if non-nil, enables the notice-board poll loop for
	// every CollectorSource with a non-empty NoticeURL.
	NoticeFetcher listing.NoticeFetcher

	// InteractiveBot, if non-nil, is started as an optional additional
	// task per spec.md §4.O step 5 (e.g. a Telegram command listener).
	InteractiveBot func(ctx context.Context)

	Log zerolog.Logger
}

// Orchestrator drives startup, the steady-state task set, and ordered
// shutdown for one process.
type Orchestrator struct {
	cfg    Config
	log    zerolog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup

	seen map[string]map[string]bool // exchange -> symbol -> true, across poll cycles
	mu   sync.Mutex

	seenNotices map[string]bool // DedupKey -> true, across poll cycles
	noticesMu   sync.Mutex
}

// New builds an Orchestrator. DB open and migration (spec.md §4.O step 1)
// happen before Config is built, via storage.Open/storage.ApplyMigrations,
// since every other component needs the opened *sql.DB or *storage.Writer.
func New(cfg Config) *Orchestrator {
	if cfg.ListingPollInterval == 0 {
		cfg.ListingPollInterval = DefaultListingPollInterval
	}
	if cfg.NoticePollInterval == 0 {
		cfg.NoticePollInterval = DefaultNoticePollInterval
	}
	return &Orchestrator{
		cfg:         cfg,
		log:         cfg.Log.With().Str("component", "orchestrator").Logger(),
		seen:        make(map[string]map[string]bool),
		seenNotices: make(map[string]bool),
	}
}

// Run starts the Writer and every concurrent task (step 2-4), optionally
// the interactive bot (step 5), then blocks until ctx is cancelled, at
// which point it runs the full shutdown sequence before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.cfg.Writer.Start()
	o.log.Info().Msg("writer started")

	for _, src := range o.cfg.Collectors {
		src := src
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			src.Collector.Run(runCtx)
		}()
		if src.Catalog != nil {
			o.wg.Add(1)
			go func() {
				defer o.wg.Done()
				o.runListingPoller(runCtx, src.Exchange, src.Catalog)
			}()
		}
		if o.cfg.NoticeFetcher != nil && src.NoticeURL != "" {
			o.wg.Add(1)
			go func() {
				defer o.wg.Done()
				o.runNoticePoller(runCtx, src.Exchange, src.NoticeURL)
			}()
		}
	}

	if o.cfg.Aggregator != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.runAggregator(runCtx)
		}()
	}

	if o.cfg.Health != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.cfg.Health.Run(runCtx.Done())
		}()
	}

	if o.cfg.InteractiveBot != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.cfg.InteractiveBot(runCtx)
		}()
	}

	<-runCtx.Done()
	o.shutdown()
	return nil
}

// Stop triggers the shutdown sequence; safe to call once Run has started.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
}

// shutdown implements spec.md §4.O's ordered teardown: sockets close,
// pending seconds flush, the current minute force-rolls up, the alert
// batch flushes, background tasks are waited out, then the Writer gets
// its sentinel.
func (o *Orchestrator) shutdown() {
	o.log.Info().Msg("shutdown: closing collector sockets")
	for _, src := range o.cfg.Collectors {
		src.Collector.Close()
	}

	o.log.Info().Msg("shutdown: flushing pending second buckets")
	for _, src := range o.cfg.Collectors {
		src.Bucket.FlushAll(o.cfg.Writer)
	}

	if o.cfg.Aggregator != nil {
		if err := o.cfg.Aggregator.ForceRollup(time.Now()); err != nil {
			o.log.Warn().Err(err).Msg("shutdown: force-rollup failed")
		}
	}

	if o.cfg.Alert != nil {
		o.log.Info().Msg("shutdown: flushing alert batch")
		o.cfg.Alert.FlushBatch(context.Background())
	}

	o.log.Info().Msg("shutdown: waiting for background tasks")
	o.wg.Wait()

	if o.cfg.Writer != nil {
		o.log.Info().Msg("shutdown: draining writer queue")
		o.cfg.Writer.Shutdown()
	}
}

// runListingPoller polls exchange's catalog every ListingPollInterval;
// a newly-seen symbol triggers the Gate Engine and, if configured,
// the Alert Router.
func (o *Orchestrator) runListingPoller(ctx context.Context, exchange string, fetcher listing.CatalogFetcher) {
	detector := listing.NewDetector(fetcher, o.log)
	ticker := time.NewTicker(o.cfg.ListingPollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		newSymbols, err := detector.Poll(ctx)
		if err != nil {
			consecutiveFailures++
			ev := o.log.Warn()
			if consecutiveFailures >= consecutiveFailureEscalation {
				ev = o.log.Error()
			}
			ev.Err(err).Str("exchange", exchange).Int("consecutive_failures", consecutiveFailures).Msg("catalog poll failed")
			continue
		}
		consecutiveFailures = 0
		for _, symbol := range newSymbols {
			if !o.markSeen(exchange, symbol) {
				continue
			}
			o.onListing(ctx, symbol, exchange)
		}
	}
}

// runNoticePoller polls exchange's notice board every NoticePollInterval,
// classifying and routing each newly-seen notice.
func (o *Orchestrator) runNoticePoller(ctx context.Context, exchange, boardURL string) {
	ticker := time.NewTicker(o.cfg.NoticePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		html, err := o.cfg.NoticeFetcher.FetchHTML(ctx, boardURL)
		if err != nil {
			o.log.Warn().Err(err).Str("exchange", exchange).Msg("notice board fetch failed")
			continue
		}

		for _, raw := range listing.ExtractNotices(exchange, html) {
			result := listing.ParseNotice(raw.Title, "")
			key := listing.DedupKey(exchange, result.Type, raw.ID)
			if !o.markNoticeSeen(key) {
				continue
			}
			o.onNotice(ctx, exchange, raw, result)
		}
	}
}

func (o *Orchestrator) markNoticeSeen(key string) bool {
	o.noticesMu.Lock()
	defer o.noticesMu.Unlock()
	if o.seenNotices[key] {
		return false
	}
	o.seenNotices[key] = true
	return true
}

func (o *Orchestrator) onNotice(ctx context.Context, exchange string, raw listing.RawNotice, result listing.NoticeResult) {
	o.log.Info().
		Str("exchange", exchange).Str("notice_id", raw.ID).
		Str("type", result.Type.String()).Str("title", raw.Title).
		Msg("notice parsed")

	if o.cfg.Alert == nil || result.Action == listing.ActionNone {
		return
	}
	level := noticeAlertLevel(result.Severity)
	msg := fmt.Sprintf("[%s] %s notice: %s", exchange, result.Type.String(), raw.Title)
	if len(result.Symbols) > 0 {
		msg += fmt.Sprintf(" (%s)", strings.Join(result.Symbols, ", "))
	}
	o.cfg.Alert.Send(ctx, level, msg, "")
}

// noticeAlertLevel maps a parsed notice's severity onto the same
// AlertLevel scale the Gate Engine uses, so the Alert Router's
// debounce/batch/send rules apply uniformly regardless of source.
func noticeAlertLevel(s listing.Severity) kimpgate.AlertLevel {
	switch s {
	case listing.SeverityCritical:
		return kimpgate.AlertCritical
	case listing.SeverityHigh:
		return kimpgate.AlertHigh
	case listing.SeverityMedium:
		return kimpgate.AlertMedium
	case listing.SeverityLow:
		return kimpgate.AlertLow
	default:
		return kimpgate.AlertInfo
	}
}

func (o *Orchestrator) markSeen(exchange, symbol string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen[exchange] == nil {
		o.seen[exchange] = make(map[string]bool)
	}
	if o.seen[exchange][symbol] {
		return false
	}
	o.seen[exchange][symbol] = true
	return true
}

// onListing is the Gate Engine -> Alert Router handoff spec.md §4's data
// flow names: J orchestrates G/H/I/L/K into a decision, which M then
// routes by level.
func (o *Orchestrator) onListing(ctx context.Context, symbol, exchange string) {
	if o.cfg.Gate == nil {
		return
	}
	result := o.cfg.Gate.AnalyzeListing(ctx, symbol, exchange)
	o.log.Info().
		Str("symbol", symbol).Str("exchange", exchange).
		Bool("can_proceed", result.CanProceed).
		Str("alert_level", result.AlertLevel.String()).
		Msg("listing analyzed")

	if o.cfg.Alert == nil {
		return
	}
	key := ""
	if result.AlertLevel == kimpgate.AlertMedium {
		key = fmt.Sprintf("listing:%s:%s", exchange, symbol)
	}
	o.cfg.Alert.Send(ctx, result.AlertLevel, formatListingMessage(symbol, exchange, result), key)
}

func formatListingMessage(symbol, exchange string, result kimpgate.GateResult) string {
	verdict := "NO-GO"
	if result.CanProceed {
		verdict = "GO"
	}
	msg := fmt.Sprintf("%s %s@%s — premium %.2f%%, net %.2f%%", verdict, symbol, exchange, result.PremiumPct, result.NetProfitPct)
	for _, b := range result.Blockers {
		msg += "\n- blocked: " + b
	}
	for _, w := range result.Warnings {
		msg += "\n- warn: " + w
	}
	return msg
}

// runAggregator self-heals SelfHealWindow of history on first run, then
// hands off to Aggregator.Run for the steady-state rollup+purge cycle
// (spec.md §4.E) — the retention purge only happens inside Run, so this
// must not reimplement the ticker loop without it.
func (o *Orchestrator) runAggregator(ctx context.Context) {
	if err := o.cfg.Aggregator.SelfHeal(time.Now()); err != nil {
		o.log.Warn().Err(err).Msg("self-heal rollup failed")
	}
	o.cfg.Aggregator.Run(ctx)
}
