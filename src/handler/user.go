package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	logger "github.com/sirupsen/logrus"

	"signalbridge/src/executor"
	"signalbridge/src/model"
	"signalbridge/src/registry"
	"signalbridge/src/security"
)

type registerPayload struct {
	UID        string   `json:"uid"`
	Strategies []string `json:"strategies"`
}

// RegisterUserHandler lets a user request access to strategies. Repeating a
// registration while approved changes nothing; otherwise the request is
// overwritten and the status returns to pending.
func RegisterUserHandler(subs registry.SubscriberStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload registerPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid payload")
			return
		}
		payload.UID = strings.TrimSpace(payload.UID)
		if payload.UID == "" {
			writeMessage(w, http.StatusBadRequest, "uid is required")
			return
		}

		sub, err := subs.Register(r.Context(), payload.UID, payload.Strategies)
		if err != nil {
			logger.WithError(err).Error("failed to register subscriber")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":     true,
			"uid":    sub.UID,
			"status": sub.Status,
		})
	}
}

// UserStatusHandler reports the approval status for a uid. Unknown uids are
// not an error: they read as not_registered.
func UserStatusHandler(subs registry.SubscriberStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := r.URL.Query().Get("uid")
		if uid == "" {
			writeMessage(w, http.StatusBadRequest, "uid is required")
			return
		}

		sub, err := subs.Get(r.Context(), uid)
		if errors.Is(err, registry.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"uid": uid, "status": model.StatusNotRegistered})
			return
		}
		if err != nil {
			logger.WithError(err).Error("failed to load subscriber")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, sub.ToResponse())
	}
}

func verifyQueryAccess(subs registry.SubscriberStore, w http.ResponseWriter, r *http.Request) *model.Subscriber {
	uid := r.URL.Query().Get("uid")
	key := r.URL.Query().Get("key")
	sub, err := subs.VerifyAccess(r.Context(), uid, key)
	if err != nil {
		writeAccessError(w, err)
		return nil
	}
	return sub
}

// UserSignalsHandler returns the subscriber's delivered signal history,
// query-authenticated by uid+key.
func UserSignalsHandler(subs registry.SubscriberStore, history *registry.SignalHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := verifyQueryAccess(subs, w, r)
		if sub == nil {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"uid":     sub.UID,
			"signals": history.Subscriber(sub.UID),
		})
	}
}

// UserPositionsHandler returns the subscriber's open positions with value
// fields refreshed against the current mark price, plus the derived account
// summary.
func UserPositionsHandler(subs registry.SubscriberStore, prices executor.PriceSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := verifyQueryAccess(subs, w, r)
		if sub == nil {
			return
		}

		for i := range sub.Positions {
			price, err := prices.MarkPrice(r.Context(), sub.Positions[i].Contract)
			if err != nil {
				logger.WithError(err).WithField("contract", sub.Positions[i].Contract).
					Debug("mark price refresh failed")
				continue
			}
			sub.Positions[i].Refresh(price)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":        true,
			"uid":       sub.UID,
			"positions": sub.Positions,
			"summary":   sub.Summarize(),
		})
	}
}

type autoTradingPayload struct {
	UID     string `json:"uid"`
	Key     string `json:"key"`
	Enabled bool   `json:"enabled"`
}

// AutoTradingHandler toggles auto-trading for an approved subscriber.
func AutoTradingHandler(subs registry.SubscriberStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload autoTradingPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid payload")
			return
		}

		if _, err := subs.VerifyAccess(r.Context(), payload.UID, payload.Key); err != nil {
			writeAccessError(w, err)
			return
		}

		sub, err := subs.SetAutoTrading(r.Context(), payload.UID, payload.Enabled)
		if err != nil {
			logger.WithError(err).Error("failed to toggle auto trading")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "auto_trading": sub.AutoTrading})
	}
}

type connectExchangePayload struct {
	UID       string `json:"uid"`
	Key       string `json:"key"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// ConnectExchangeHandler stores a subscriber's exchange credentials. The
// secret is sealed before it touches the store and never echoed back.
func ConnectExchangeHandler(subs registry.SubscriberStore, sealer *security.Sealer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload connectExchangePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if payload.APIKey == "" || payload.APISecret == "" {
			writeMessage(w, http.StatusBadRequest, "api_key and api_secret are required")
			return
		}

		if _, err := subs.VerifyAccess(r.Context(), payload.UID, payload.Key); err != nil {
			writeAccessError(w, err)
			return
		}

		sealed, err := sealer.Seal(payload.APISecret)
		if err != nil {
			logger.WithError(err).Error("failed to seal exchange secret")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}

		sub, err := subs.ConnectExchange(r.Context(), payload.UID, payload.APIKey, sealed)
		if err != nil {
			logger.WithError(err).Error("failed to connect exchange")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":             true,
			"masked_api_key": model.MaskKey(sub.Exchange.APIKey),
		})
	}
}

type tradeConfigPayload struct {
	UID              string  `json:"uid"`
	Key              string  `json:"key"`
	InvestmentAmount *string `json:"investment_amount,omitempty"`
	Leverage         *int    `json:"leverage,omitempty"`
	PinnedSymbol     *string `json:"pinned_symbol,omitempty"`
}

// TradeConfigHandler updates the subscriber's auto-trading parameters.
func TradeConfigHandler(subs registry.SubscriberStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload tradeConfigPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if payload.Leverage != nil && *payload.Leverage < 1 {
			writeMessage(w, http.StatusBadRequest, "leverage must be >= 1")
			return
		}

		if _, err := subs.VerifyAccess(r.Context(), payload.UID, payload.Key); err != nil {
			writeAccessError(w, err)
			return
		}

		sub, err := subs.SetTradeConfig(r.Context(), payload.UID, registry.TradeConfig{
			InvestmentAmount: payload.InvestmentAmount,
			Leverage:         payload.Leverage,
			PinnedSymbol:     payload.PinnedSymbol,
		})
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid trade config")
			return
		}

		writeJSON(w, http.StatusOK, sub.ToResponse())
	}
}
