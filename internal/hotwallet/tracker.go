// Package hotwallet implements the optional EVM hot-wallet-balance
// factor feeding the Supply Classifier (internal/supply), reading
// native and ERC-20 balances over JSON-RPC via go-ethereum. Unlike the
// Collectors or the Writer, this is a best-effort side signal: a
// missing RPC endpoint or a failed call degrades to "no data" rather
// than blocking the pipeline.
package hotwallet

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// DefaultTTL mirrors the original's 15-minute cache window: on-chain
// hot-wallet balances move slowly relative to an exchange's order book.
const DefaultTTL = 15 * time.Minute

// balanceOfSelector is the 4-byte selector for ERC-20 balanceOf(address).
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// Wallet is one address this tracker watches for a given exchange.
type Wallet struct {
	Address common.Address
	Label   string
	Chain   string
	// Token is the ERC-20 contract to query; the zero address means
	// "native balance" (ETH, MATIC, BNB, ...).
	Token common.Address
}

// IsNative reports whether w tracks the chain's native balance (ETH,
// BNB, MATIC, ...) rather than an ERC-20 token.
func (w Wallet) IsNative() bool {
	return w.Token == (common.Address{})
}

type cachedResult struct {
	usd        float64
	confidence float64
	at         time.Time
}

// Tracker queries configured wallets across one RPC client per chain.
// A Tracker with no clients is inert: Balance always returns
// (0, 0, false), so callers can construct one unconditionally and let
// missing RPC configuration degrade rather than branch on it.
type Tracker struct {
	Clients map[string]*ethclient.Client // chain name -> client
	Wallets map[string][]Wallet          // exchange -> wallets to sum
	TTL     time.Duration

	mu    sync.Mutex
	cache map[string]cachedResult
}

// New builds a Tracker. clients/wallets may be nil or partially
// populated; chains or exchanges absent from either map are simply
// skipped.
func New(clients map[string]*ethclient.Client, wallets map[string][]Wallet) *Tracker {
	return &Tracker{
		Clients: clients,
		Wallets: wallets,
		TTL:     DefaultTTL,
		cache:   make(map[string]cachedResult),
	}
}

// Enabled reports whether any chain has a configured RPC client, the
// Go equivalent of the original's "no API key => feature disabled".
func (t *Tracker) Enabled() bool {
	return len(t.Clients) > 0
}

// Balance returns exchange's total hot-wallet balance in USD, given
// nativeUSDPerChain maps a chain name to its native token's USD price
// (needed to convert native-balance wei into dollars; a reachable ERC-20
// token wallet counts toward confidence but adds nothing to the USD
// total). On RPC failure it
// falls back to the last successful snapshot within TTL*4 (a more
// generous staleness window than the cache's own TTL, since a stale
// hot-wallet figure is still informative input to a classifier that
// already discounts low-confidence factors).
func (t *Tracker) Balance(ctx context.Context, exchange string, nativeUSDPerChain map[string]float64) (usd float64, confidence float64, ok bool) {
	if !t.Enabled() {
		return 0, 0, false
	}
	wallets := t.Wallets[exchange]
	if len(wallets) == 0 {
		return 0, 0, false
	}

	t.mu.Lock()
	if cached, found := t.cache[exchange]; found && time.Since(cached.at) < t.TTL {
		t.mu.Unlock()
		return cached.usd, cached.confidence, true
	}
	t.mu.Unlock()

	total := 0.0
	checked := 0
	for _, w := range wallets {
		client := t.Clients[w.Chain]
		if client == nil {
			continue
		}
		raw, err := t.fetchBalance(ctx, client, w)
		if err != nil {
			continue
		}
		checked++
		if w.IsNative() {
			price := nativeUSDPerChain[w.Chain]
			total += weiToUnit(raw) * price
		}
		// ERC-20 balances need a per-token price and decimals lookup
		// this tracker doesn't have; they count toward "checked" (the
		// wallet was reachable) but not toward total until a price
		// source for arbitrary tokens is wired.
	}

	if checked == 0 {
		if cached, found := t.cache[exchange]; found && time.Since(cached.at) < t.TTL*4 {
			return cached.usd, cached.confidence * 0.5, true
		}
		return 0, 0, false
	}

	confidence = float64(checked) / float64(len(wallets))
	t.mu.Lock()
	t.cache[exchange] = cachedResult{usd: total, confidence: confidence, at: now()}
	t.mu.Unlock()
	return total, confidence, true
}

func (t *Tracker) fetchBalance(ctx context.Context, client *ethclient.Client, w Wallet) (*big.Int, error) {
	if w.IsNative() {
		return client.BalanceAt(ctx, w.Address, nil)
	}
	data := append(append([]byte{}, balanceOfSelector...), common.LeftPadBytes(w.Address.Bytes(), 32)...)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &w.Token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("empty balanceOf response")
	}
	return new(big.Int).SetBytes(out), nil
}

func weiToUnit(wei *big.Int) float64 {
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(1e18))
	out, _ := f.Float64()
	return out
}

var now = time.Now
