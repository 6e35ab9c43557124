// Package registry implements the Token Registry described in spec.md
// §4.B: an in-memory, read-mostly map from symbol to canonical identity
// and cross-chain bindings, with writes flowing through the Writer so
// the in-memory view and the durable table never diverge.
package registry

import (
	"sync"

	kimpgate "github.com/kimgate/kimpgate"
	"github.com/kimgate/kimpgate/internal/storage"
)

// Registry holds the current symbol -> identity map. Reads take the
// shared side of an RWMutex, so concurrent lookups do not block each
// other; writes are rare (new token onboarding only).
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]kimpgate.TokenIdentity

	w *storage.Writer
}

// New constructs an empty Registry backed by w for durable writes.
func New(w *storage.Writer) *Registry {
	return &Registry{byKey: make(map[string]kimpgate.TokenIdentity), w: w}
}

// Lookup returns the identity known for symbol, and whether it is known.
func (r *Registry) Lookup(symbol string) (kimpgate.TokenIdentity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[symbol]
	return id, ok
}

// Register records a (possibly partial) identity for symbol. Subsequent
// calls for the same symbol fill in only a name or canonical id that is
// still empty and append chain bindings for chains not yet bound, never
// replacing existing values, mirroring the
// upstream "INSERT OR IGNORE" idempotence the original registry used to
// avoid clobbering already-confirmed bindings (spec.md §4.B).
func (r *Registry) Register(id kimpgate.TokenIdentity) {
	r.mu.Lock()
	existing, ok := r.byKey[id.Symbol]
	if ok {
		existing.Name = firstNonEmpty(existing.Name, id.Name)
		existing.CanonicalID = firstNonEmpty(existing.CanonicalID, id.CanonicalID)
		existing.ChainBinding = mergeBindings(existing.ChainBinding, id.ChainBinding)
		r.byKey[id.Symbol] = existing
		id = existing
	} else {
		r.byKey[id.Symbol] = id
	}
	r.mu.Unlock()

	r.persist(id)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func mergeBindings(existing, incoming []kimpgate.ChainBinding) []kimpgate.ChainBinding {
	seen := make(map[string]bool, len(existing))
	for _, cb := range existing {
		seen[cb.Chain] = true
	}
	for _, cb := range incoming {
		if !seen[cb.Chain] {
			existing = append(existing, cb)
			seen[cb.Chain] = true
		}
	}
	return existing
}

// persist mirrors the in-memory state to the tokens/chain_bindings tables.
// Uses Normal priority: a dropped registry write under backpressure is
// recoverable (the in-memory map still serves lookups) and re-attempted
// on the next Register call for that symbol, unlike OHLCV data which is
// never resubmitted.
func (r *Registry) persist(id kimpgate.TokenIdentity) {
	r.w.Enqueue(
		`INSERT INTO tokens (symbol, canonical_id, name) VALUES (?, ?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET canonical_id=excluded.canonical_id, name=excluded.name`,
		[]any{id.Symbol, id.CanonicalID, id.Name},
		storage.Normal,
	)
	for _, cb := range id.ChainBinding {
		r.w.Enqueue(
			`INSERT INTO chain_bindings (symbol, chain, contract_address, decimals) VALUES (?, ?, ?, ?)
			 ON CONFLICT(symbol, chain) DO UPDATE SET contract_address=excluded.contract_address, decimals=excluded.decimals`,
			[]any{id.Symbol, cb.Chain, cb.ContractAddress, cb.Decimals},
			storage.Normal,
		)
	}
}

// Len reports how many symbols are currently known, for diagnostics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
