// Package listing implements the Listing Detector described in spec.md
// §4.F: a catalog-diff poller per domestic exchange, with an optional
// notice-text parser companion path.
package listing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// MaxNewSymbolsPerPoll bounds how many new symbols a single poll may
// introduce before the detector treats the diff as a catalog reshuffle
// or stale baseline rather than real listings (spec.md §4.F).
const MaxNewSymbolsPerPoll = 10

// CatalogFetcher is the small capability each exchange's catalog client
// implements, per spec.md §9's polymorphism note.
type CatalogFetcher interface {
	Name() string
	FetchCatalog(ctx context.Context) (map[string]bool, error)
}

// Detector polls one exchange's catalog and reports new-symbol diffs.
type Detector struct {
	fetcher     CatalogFetcher
	log         zerolog.Logger
	lastSeen    map[string]bool
	initialized bool
}

// NewDetector builds a Detector for the given catalog fetcher.
func NewDetector(fetcher CatalogFetcher, log zerolog.Logger) *Detector {
	return &Detector{
		fetcher: fetcher,
		log:     log.With().Str("component", "listing_detector").Str("exchange", fetcher.Name()).Logger(),
	}
}

// Poll fetches the current catalog and returns newly-appeared symbols.
// The very first successful fetch seeds the baseline and reports no
// listings: there is nothing to diff against yet. A poll that would
// introduce more than MaxNewSymbolsPerPoll symbols at once is treated as
// a reshuffle: the baseline is reset to the fetched set and nothing is
// reported.
func (d *Detector) Poll(ctx context.Context) ([]string, error) {
	current, err := d.fetcher.FetchCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing: fetch catalog for %s: %w", d.fetcher.Name(), err)
	}

	if !d.initialized {
		d.lastSeen = current
		d.initialized = true
		return nil, nil
	}

	var newSymbols []string
	for symbol := range current {
		if !d.lastSeen[symbol] {
			newSymbols = append(newSymbols, symbol)
		}
	}

	if len(newSymbols) > MaxNewSymbolsPerPoll {
		d.log.Warn().Int("new_count", len(newSymbols)).Msg("catalog reshuffle or stale baseline suspected, resetting baseline silently")
		d.lastSeen = current
		return nil, nil
	}

	d.lastSeen = current
	return newSymbols, nil
}
