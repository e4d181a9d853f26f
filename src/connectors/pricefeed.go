package connectors

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultFuturesWSURL = "wss://fx-ws.gateio.ws/v4/ws/usdt"

	feedReconnectBase = time.Second
	feedReconnectMax  = 30 * time.Second
)

// MarkPriceFeed keeps a map of contract -> last mark price fed by the
// futures ticker websocket channel. The simulated execution path and the
// positions read surface consume it; REST lookups backfill it for contracts
// the subscription does not cover.
type MarkPriceFeed struct {
	wsURL     string
	contracts []string

	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewMarkPriceFeed(wsURL string, contracts []string) *MarkPriceFeed {
	if wsURL == "" {
		wsURL = defaultFuturesWSURL
	}
	return &MarkPriceFeed{
		wsURL:     wsURL,
		contracts: contracts,
		prices:    make(map[string]decimal.Decimal),
	}
}

// Price returns the cached mark price for a contract.
func (f *MarkPriceFeed) Price(contract string) (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[contract]
	return p, ok
}

// Set stores a price observed outside the stream (REST fallback).
func (f *MarkPriceFeed) Set(contract string, price decimal.Decimal) {
	if price.IsZero() {
		return
	}
	f.mu.Lock()
	f.prices[contract] = price
	f.mu.Unlock()
}

// Run connects to the ticker channel and consumes updates until the context
// is canceled, reconnecting with capped exponential backoff.
func (f *MarkPriceFeed) Run(ctx context.Context) {
	backoff := feedReconnectBase
	for {
		if err := f.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Warn("mark price feed disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > feedReconnectMax {
			backoff = feedReconnectMax
		}
	}
}

type wsSubscribeMsg struct {
	Time    int64    `json:"time"`
	Channel string   `json:"channel"`
	Event   string   `json:"event"`
	Payload []string `json:"payload"`
}

type wsTickerMsg struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Result  []struct {
		Contract  string `json:"contract"`
		Last      string `json:"last"`
		MarkPrice string `json:"mark_price"`
	} `json:"result"`
}

func (f *MarkPriceFeed) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := wsSubscribeMsg{
		Time:    time.Now().Unix(),
		Channel: "futures.tickers",
		Event:   "subscribe",
		Payload: f.contracts,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	logger.WithField("contracts", f.contracts).Info("mark price feed subscribed")

	// Close the socket when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg wsTickerMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.WithError(err).Debug("skipping unparseable feed message")
			continue
		}
		if msg.Channel != "futures.tickers" || msg.Event != "update" {
			continue
		}

		for _, t := range msg.Result {
			raw := t.MarkPrice
			if raw == "" {
				raw = t.Last
			}
			price, err := decimal.NewFromString(raw)
			if err != nil || price.IsZero() {
				continue
			}
			f.Set(t.Contract, price)
		}
	}
}

// PriceOracle answers mark-price lookups from the websocket cache first and
// the public REST ticker second, caching REST results back into the feed.
type PriceOracle struct {
	Feed   *MarkPriceFeed
	Client *GateClient
	Settle string
}

func (o *PriceOracle) MarkPrice(ctx context.Context, contract string) (decimal.Decimal, error) {
	if o.Feed != nil {
		if price, ok := o.Feed.Price(contract); ok {
			return price, nil
		}
	}
	if o.Client == nil {
		return decimal.Zero, &APIError{Status: 503, Message: "no price source configured"}
	}
	price, err := o.Client.MarkPrice(ctx, o.Settle, contract)
	if err != nil {
		return decimal.Zero, err
	}
	if o.Feed != nil {
		o.Feed.Set(contract, price)
	}
	return price, nil
}
