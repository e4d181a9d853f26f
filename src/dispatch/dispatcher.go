package dispatch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"signalbridge/src/executor"
	"signalbridge/src/model"
	"signalbridge/src/registry"
)

// TradeExecutor is the per-recipient execution hook. Nil disables
// auto-trading entirely (signals are still delivered).
type TradeExecutor interface {
	Execute(ctx context.Context, sub *model.Subscriber, sig model.Signal) executor.Result
}

// Outcome is what one inbound webhook request resolves to. Code is the HTTP
// status the handler should answer with: 202 marks the soft "received but
// not actionable" outcomes that TradingView must not retry on.
type Outcome struct {
	Code      int    `json:"-"`
	OK        bool   `json:"ok"`
	Delivered int    `json:"delivered"`
	Message   string `json:"message,omitempty"`
	SignalID  string `json:"signal_id,omitempty"`
}

// Dispatcher runs an inbound alert through secret verification, parsing,
// strategy matching, admin routing and fan-out.
type Dispatcher struct {
	logger      *logrus.Entry
	strategies  registry.StrategyStore
	subscribers registry.SubscriberStore
	webhooks    registry.WebhookStore
	history     *registry.SignalHistory
	executor    TradeExecutor
	now         func() time.Time
}

func NewDispatcher(
	logger *logrus.Entry,
	strategies registry.StrategyStore,
	subscribers registry.SubscriberStore,
	webhooks registry.WebhookStore,
	history *registry.SignalHistory,
	exec TradeExecutor,
) *Dispatcher {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		logger:      logger,
		strategies:  strategies,
		subscribers: subscribers,
		webhooks:    webhooks,
		history:     history,
		executor:    exec,
		now:         time.Now,
	}
}

// Dispatch processes one webhook POST. providedSecret is whatever the
// transport layer carried (header, path or query); a secret embedded in the
// body is honored when the transport carried none.
func (d *Dispatcher) Dispatch(ctx context.Context, providedSecret string, body []byte) Outcome {
	reg, err := d.webhooks.Get(ctx)
	if errors.Is(err, registry.ErrNotFound) {
		return Outcome{Code: http.StatusForbidden, Message: "webhook not registered"}
	}
	if err != nil {
		d.logger.WithError(err).Error("failed to load webhook registration")
		return Outcome{Code: http.StatusInternalServerError, Message: "internal error"}
	}

	if providedSecret != "" && providedSecret != reg.Secret {
		d.logger.Warn("webhook rejected: secret mismatch")
		return Outcome{Code: http.StatusForbidden, Message: "invalid webhook secret"}
	}

	alert, err := ParseAlert(body)
	if err != nil {
		return Outcome{Code: http.StatusBadRequest, Message: err.Error()}
	}

	if providedSecret == "" {
		if alert.Secret != reg.Secret {
			d.logger.Warn("webhook rejected: secret mismatch")
			return Outcome{Code: http.StatusForbidden, Message: "invalid webhook secret"}
		}
	}

	strat, err := d.match(ctx, reg, alert)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			d.logger.WithFields(logrus.Fields{
				"indicator": alert.Indicator,
				"symbol":    alert.Symbol,
			}).Info("alert received but no strategy matched")
			return Outcome{Code: http.StatusAccepted, Message: "no strategy matched"}
		}
		d.logger.WithError(err).Error("strategy match failed")
		return Outcome{Code: http.StatusInternalServerError, Message: "internal error"}
	}

	sig := model.Signal{
		ID:         uuid.NewString(),
		Timestamp:  d.now(),
		Indicator:  alert.Indicator,
		Symbol:     alert.Symbol,
		Action:     ParseAction(alert.Direction),
		Side:       ParseSide(alert.Direction),
		Size:       alert.Size,
		Leverage:   alert.Leverage,
		StrategyID: strat.ID,
	}

	// Admin routing filter. A blocked delivery is success with zero
	// recipients as far as the caller is concerned.
	if !reg.AllowsStrategy(strat.ID) {
		blocked := sig
		blocked.Status = model.SignalStatusBlockedRouting
		d.history.AppendStrategy(strat.ID, blocked)
		d.logger.WithFields(logrus.Fields{
			"strategy_id": strat.ID,
			"signal_id":   sig.ID,
		}).Info("signal blocked by admin routing")
		return Outcome{Code: http.StatusOK, OK: true, Delivered: 0, SignalID: sig.ID}
	}

	delivered := d.fanOut(ctx, strat, sig)
	return Outcome{Code: http.StatusOK, OK: true, Delivered: delivered, SignalID: sig.ID}
}

// match resolves the strategy: exact alias match first, then the
// single-route fallback for alert templates that omit the strategy name.
func (d *Dispatcher) match(ctx context.Context, reg *model.WebhookRegistration, alert Alert) (*model.Strategy, error) {
	if alert.Indicator != "" {
		strat, err := d.strategies.MatchByIndicator(ctx, alert.Indicator)
		if err == nil {
			return strat, nil
		}
		if !errors.Is(err, registry.ErrNotFound) {
			return nil, err
		}
	}

	if len(reg.Routes) == 1 {
		strat, err := d.strategies.Get(ctx, reg.Routes[0])
		if err == nil && strat.Active {
			return strat, nil
		}
	}
	return nil, registry.ErrNotFound
}

// fanOut delivers the signal to every approved subscriber of the strategy in
// registration order. A subscriber's execution failure never stops delivery
// to the rest.
func (d *Dispatcher) fanOut(ctx context.Context, strat *model.Strategy, sig model.Signal) int {
	subs, err := d.subscribers.ListApprovedByStrategy(ctx, strat.ID)
	if err != nil {
		d.logger.WithError(err).WithField("strategy_id", strat.ID).Error("failed to list subscribers")
		subs = nil
	}

	delivered := 0
	for i := range subs {
		sub := subs[i]

		entry := sig
		entry.Status = model.SignalStatusDelivered

		if d.executor != nil {
			result := d.executor.Execute(ctx, &sub, entry)
			entry.AutoTradingExecuted = result.Executed
			if !result.Executed && result.Reason != "" {
				entry.Status = model.SignalStatusDelivered + "; " + result.Reason
			}
		}

		d.history.AppendSubscriber(sub.UID, entry)
		delivered++
	}

	aggregate := sig
	if delivered == 0 {
		aggregate.Status = model.SignalStatusNoSubscribers
	} else {
		aggregate.Status = model.SignalStatusDelivered
	}
	d.history.AppendStrategy(strat.ID, aggregate)

	d.logger.WithFields(logrus.Fields{
		"strategy_id": strat.ID,
		"signal_id":   sig.ID,
		"action":      sig.Action,
		"side":        sig.Side,
		"delivered":   delivered,
	}).Info("signal dispatched")

	return delivered
}
