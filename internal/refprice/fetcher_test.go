package refprice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kimpgate "github.com/kimgate/kimpgate"
)

func constFetch(price float64) FetchFunc {
	return func(ctx context.Context, symbol string) (float64, *float64, error) { return price, nil, nil }
}

func failingFetch(ctx context.Context, symbol string) (float64, *float64, error) {
	return 0, nil, errors.New("no quote")
}

func TestFetch_PrefersFuturesAlphaFirst(t *testing.T) {
	f := New(constFetch(100), constFetch(101), constFetch(102), nil, nil, nil)
	q, err := f.Fetch(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, kimpgate.RefFuturesAlpha, q.Source)
	assert.Equal(t, ConfidenceFuturesAlpha, q.Confidence)
}

func TestFetch_FallsThroughOnFailure(t *testing.T) {
	f := New(failingFetch, failingFetch, constFetch(99), nil, nil, nil)
	q, err := f.Fetch(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, kimpgate.RefSpotAlpha, q.Source)
}

func TestFetch_AllExhaustedReturnsError(t *testing.T) {
	f := New(nil, nil, nil, nil, nil, nil)
	_, err := f.Fetch(context.Background(), "BTC")
	assert.Error(t, err)
}

func TestFetch_ConfidenceOrderingFuturesAboveSpotAboveAggregated(t *testing.T) {
	assert.Greater(t, ConfidenceFuturesAlpha, ConfidenceSpotAlpha)
	assert.Greater(t, ConfidenceSpotGamma, ConfidenceAggregated)
}

func TestFetch_CachesMostRecentQuotePerSourceAndSymbol(t *testing.T) {
	f := New(constFetch(100), nil, nil, nil, nil, nil)
	_, err := f.Fetch(context.Background(), "BTC")
	require.NoError(t, err)

	q, ok := f.Cached(kimpgate.RefFuturesAlpha, "BTC")
	require.True(t, ok)
	assert.Equal(t, 100.0, q.PriceUSD)
}
