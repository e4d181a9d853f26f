package executor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"signalbridge/src/connectors"
	"signalbridge/src/model"
	"signalbridge/src/registry"
	"signalbridge/src/security"
)

// Short-circuit reason codes. None of these are errors: a skipped execution
// is a recorded outcome, not a failure of the dispatch loop.
const (
	ReasonNotConnected        = "not_connected"
	ReasonAutoTradingDisabled = "auto_trading_disabled"
	ReasonSymbolMismatch      = "symbol_mismatch"
	ReasonNoInvestment        = "no_investment"
	ReasonNoOpenPosition      = "no_open_position"
	ReasonPriceUnavailable    = "price_unavailable"
	ReasonUnknownAction       = "unknown_action"
	ReasonExchangeError       = "exchange_error"
)

// Result is the outcome of one per-subscriber execution decision.
type Result struct {
	Executed bool
	Reason   string
	Position *model.Position
}

// PriceSource answers mark-price lookups for the simulated sizing path.
type PriceSource interface {
	MarkPrice(ctx context.Context, contract string) (decimal.Decimal, error)
}

// Trader is the slice of the exchange client the real execution path needs.
type Trader interface {
	PlaceFuturesOrder(ctx context.Context, settle string, order connectors.FuturesOrderRequest) (*connectors.FuturesOrder, error)
	ClosePosition(ctx context.Context, settle, contract string) (*connectors.FuturesOrder, error)
}

// TraderFactory builds a per-subscriber exchange client from their stored
// credentials.
type TraderFactory func(apiKey, apiSecret string) (Trader, error)

// Executor turns a resolved signal plus one subscriber's trading
// configuration into position changes. With DryRun set, orders are sized
// locally and positions simulated; otherwise orders go to the exchange
// through the subscriber's own credentials. Order placement is never
// retried.
type Executor struct {
	logger      *logrus.Entry
	subscribers registry.SubscriberStore
	prices      PriceSource
	sealer      *security.Sealer
	factory     TraderFactory
	settle      string
	dryRun      bool
	now         func() time.Time
}

func New(logger *logrus.Entry, subscribers registry.SubscriberStore, prices PriceSource, sealer *security.Sealer, factory TraderFactory, settle string, dryRun bool) *Executor {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if settle == "" {
		settle = "usdt"
	}
	return &Executor{
		logger:      logger,
		subscribers: subscribers,
		prices:      prices,
		sealer:      sealer,
		factory:     factory,
		settle:      settle,
		dryRun:      dryRun,
		now:         time.Now,
	}
}

// Execute runs the decision function for one subscriber. It never returns an
// error: every failure mode is a Result with Executed=false so one
// subscriber's outcome cannot abort delivery to the rest.
func (e *Executor) Execute(ctx context.Context, sub *model.Subscriber, sig model.Signal) Result {
	if !sub.ExchangeConnected() {
		return Result{Reason: ReasonNotConnected}
	}
	if !sub.AutoTrading {
		return Result{Reason: ReasonAutoTradingDisabled}
	}
	if sub.PinnedSymbol != "" && sub.PinnedSymbol != sig.Symbol {
		return Result{Reason: ReasonSymbolMismatch}
	}
	if !sub.InvestmentAmount.IsPositive() {
		return Result{Reason: ReasonNoInvestment}
	}

	switch sig.Action {
	case model.ActionOpen:
		return e.open(ctx, sub, sig)
	case model.ActionClose:
		return e.close(ctx, sub, sig)
	default:
		return Result{Reason: ReasonUnknownAction}
	}
}

func (e *Executor) open(ctx context.Context, sub *model.Subscriber, sig model.Signal) Result {
	leverage := sub.Leverage
	if sig.Leverage > 0 {
		leverage = sig.Leverage
	}
	if leverage < 1 {
		leverage = 1
	}

	price, err := e.prices.MarkPrice(ctx, sig.Symbol)
	if err != nil || price.IsZero() {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"uid":      sub.UID,
			"contract": sig.Symbol,
		}).Warn("no reference price, skipping execution")
		return Result{Reason: ReasonPriceUnavailable}
	}

	// size = investment x leverage / price; the sign carries the side.
	size := sub.InvestmentAmount.Mul(decimal.NewFromInt(int64(leverage))).Div(price)
	if sig.Side == model.SideShort {
		size = size.Neg()
	}

	if !e.dryRun {
		trader, err := e.traderFor(sub)
		if err != nil {
			e.logger.WithError(err).WithField("uid", sub.UID).Error("failed to build exchange client")
			return Result{Reason: ReasonExchangeError}
		}
		contracts := size.IntPart()
		if contracts == 0 {
			if size.IsNegative() {
				contracts = -1
			} else {
				contracts = 1
			}
		}
		if _, err := trader.PlaceFuturesOrder(ctx, e.settle, connectors.FuturesOrderRequest{
			Contract: sig.Symbol,
			Size:     contracts,
			Price:    "0",
			Tif:      "ioc",
		}); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"uid":      sub.UID,
				"contract": sig.Symbol,
			}).Error("order placement failed")
			return Result{Reason: ReasonExchangeError}
		}
		// The stored position mirrors what was actually ordered, not the
		// fractional sizing intent.
		size = decimal.NewFromInt(contracts)
	}

	now := e.now()
	pos := model.Position{
		SubscriberUID: sub.UID,
		Contract:      sig.Symbol,
		Size:          size,
		Leverage:      leverage,
		Margin:        sub.InvestmentAmount,
		EntryPrice:    price,
		MarkPrice:     price,
		Simulated:     e.dryRun,
		OpenedAt:      now,
		UpdatedAt:     now,
	}
	if err := e.subscribers.UpsertPosition(ctx, sub.UID, pos); err != nil {
		e.logger.WithError(err).WithField("uid", sub.UID).Error("failed to record position")
	}

	return Result{Executed: true, Position: &pos}
}

// close sends the exchange order before any local record changes: a failed
// close must leave the stored position in place so a later signal can retry
// it.
func (e *Executor) close(ctx context.Context, sub *model.Subscriber, sig model.Signal) Result {
	current, err := e.subscribers.Get(ctx, sub.UID)
	if err != nil {
		e.logger.WithError(err).WithField("uid", sub.UID).Error("failed to load positions")
		return Result{Reason: ReasonExchangeError}
	}
	open := false
	for i := range current.Positions {
		if current.Positions[i].Contract == sig.Symbol {
			open = true
			break
		}
	}
	if !open {
		return Result{Reason: ReasonNoOpenPosition}
	}

	if !e.dryRun {
		trader, err := e.traderFor(sub)
		if err != nil {
			e.logger.WithError(err).WithField("uid", sub.UID).Error("failed to build exchange client")
			return Result{Reason: ReasonExchangeError}
		}
		if _, err := trader.ClosePosition(ctx, e.settle, sig.Symbol); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"uid":      sub.UID,
				"contract": sig.Symbol,
			}).Error("close order failed")
			return Result{Reason: ReasonExchangeError}
		}
	}

	if _, err := e.subscribers.RemovePositions(ctx, sub.UID, sig.Symbol); err != nil {
		e.logger.WithError(err).WithField("uid", sub.UID).Error("failed to remove positions")
	}

	return Result{Executed: true}
}

func (e *Executor) traderFor(sub *model.Subscriber) (Trader, error) {
	secret, err := e.sealer.Open(sub.Exchange.SealedSecret)
	if err != nil {
		return nil, err
	}
	return e.factory(sub.Exchange.APIKey, secret)
}

// NewGateTraderFactory adapts the Gate client constructor into a
// TraderFactory using the process-level connector configuration.
func NewGateTraderFactory(cfg connectors.Config) TraderFactory {
	return func(apiKey, apiSecret string) (Trader, error) {
		return connectors.NewGateClient(apiKey, apiSecret, cfg.GateBaseURL, cfg.SignScheme)
	}
}
