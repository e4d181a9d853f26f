package connectors

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkPriceFeed_SetAndPrice(t *testing.T) {
	feed := NewMarkPriceFeed("", nil)

	_, ok := feed.Price("BTC_USDT")
	assert.False(t, ok)

	feed.Set("BTC_USDT", decimal.NewFromInt(50000))
	price, ok := feed.Price("BTC_USDT")
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(50000)))

	// Zero prices are ignored, the last good value wins.
	feed.Set("BTC_USDT", decimal.Zero)
	price, ok = feed.Price("BTC_USDT")
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(50000)))
}

func TestPriceOracle_CacheFirst(t *testing.T) {
	feed := NewMarkPriceFeed("", nil)
	feed.Set("BTC_USDT", decimal.NewFromInt(50000))

	var restCalls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&restCalls, 1)
		_, _ = w.Write([]byte(`[{"contract":"BTC_USDT","mark_price":"99999"}]`))
	})

	oracle := &PriceOracle{Feed: feed, Client: client, Settle: "usdt"}
	price, err := oracle.MarkPrice(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(50000)))
	assert.Zero(t, atomic.LoadInt32(&restCalls))
}

func TestPriceOracle_RESTFallbackBackfillsCache(t *testing.T) {
	feed := NewMarkPriceFeed("", nil)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"contract":"ETH_USDT","mark_price":"3000"}]`))
	})

	oracle := &PriceOracle{Feed: feed, Client: client, Settle: "usdt"}
	price, err := oracle.MarkPrice(context.Background(), "ETH_USDT")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(3000)))

	cached, ok := feed.Price("ETH_USDT")
	require.True(t, ok)
	assert.True(t, cached.Equal(decimal.NewFromInt(3000)))
}

func TestPriceOracle_NoSource(t *testing.T) {
	oracle := &PriceOracle{}
	_, err := oracle.MarkPrice(context.Background(), "BTC_USDT")
	assert.Error(t, err)
}
