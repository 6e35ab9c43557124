package hotwallet

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

func TestEnabled_NoClients_ReturnsFalse(t *testing.T) {
	tr := New(nil, nil)
	if tr.Enabled() {
		t.Error("Enabled() should be false with no RPC clients configured")
	}
}

func TestBalance_Disabled_ReturnsNotOK(t *testing.T) {
	tr := New(nil, map[string][]Wallet{
		"binance": {{Address: common.HexToAddress("0x1"), Chain: "ethereum"}},
	})
	_, _, ok := tr.Balance(context.Background(), "binance", nil)
	if ok {
		t.Error("Balance should report not-ok when no clients are configured")
	}
}

func TestBalance_UnknownExchange_ReturnsNotOK(t *testing.T) {
	// A nil client value still counts toward Enabled() via map length;
	// Balance must short-circuit on the empty wallet list before ever
	// dereferencing it.
	tr := New(map[string]*ethclient.Client{"ethereum": nil}, nil)
	_, _, ok := tr.Balance(context.Background(), "binance", nil)
	if ok {
		t.Error("Balance should report not-ok for an exchange with no configured wallets")
	}
}

func TestWallet_IsNative(t *testing.T) {
	native := Wallet{Address: common.HexToAddress("0xabc")}
	token := Wallet{Address: common.HexToAddress("0xabc"), Token: common.HexToAddress("0xdef")}
	if !native.IsNative() {
		t.Error("zero Token address should be native")
	}
	if token.IsNative() {
		t.Error("non-zero Token address should not be native")
	}
}
