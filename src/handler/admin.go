package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"signalbridge/src/model"
	"signalbridge/src/registry"
)

// AdminOverviewHandler returns the dashboard snapshot: strategies, users and
// the webhook routing state.
func AdminOverviewHandler(strategies registry.StrategyStore, subs registry.SubscriberStore, webhooks registry.WebhookStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		strats, err := strategies.List(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list strategies")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}

		users, err := subs.List(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list subscribers")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}
		userResponses := make([]model.SubscriberResponse, 0, len(users))
		for i := range users {
			userResponses = append(userResponses, users[i].ToResponse())
		}

		overview := map[string]any{
			"ok":         true,
			"strategies": strats,
			"users":      userResponses,
		}
		if reg, err := webhooks.Get(r.Context()); err == nil {
			overview["webhook"] = map[string]any{"configured": true, "routes": reg.Routes}
		} else {
			overview["webhook"] = map[string]any{"configured": false}
		}

		writeJSON(w, http.StatusOK, overview)
	}
}

// AdminSignalsHandler returns the per-strategy admin signal history.
func AdminSignalsHandler(history *registry.SignalHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		strategyID := r.URL.Query().Get("strategy")
		if strategyID == "" {
			writeMessage(w, http.StatusBadRequest, "strategy is required")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"signals": history.Strategy(strategyID),
		})
	}
}

func webhookScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// AdminWebhookGetHandler returns the current registration and its
// TradingView-facing URL for the host the request arrived on.
func AdminWebhookGetHandler(webhooks registry.WebhookStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reg, err := webhooks.Get(r.Context())
		if errors.Is(err, registry.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "configured": false})
			return
		}
		if err != nil {
			logger.WithError(err).Error("failed to load webhook registration")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"configured": true,
			"secret":     reg.Secret,
			"url":        reg.URL(webhookScheme(r), r.Host),
			"routes":     reg.Routes,
		})
	}
}

// AdminWebhookRotateHandler creates the registration on first call and
// rotates the shared secret on every call after that.
func AdminWebhookRotateHandler(webhooks registry.WebhookStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reg, err := webhooks.Rotate(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to rotate webhook secret")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}
		logger.Info("webhook secret rotated")
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":     true,
			"secret": reg.Secret,
			"url":    reg.URL(webhookScheme(r), r.Host),
			"routes": reg.Routes,
		})
	}
}

type routesPayload struct {
	Routes []string `json:"routes"`
}

// AdminWebhookRoutesHandler replaces the strategy allow-list. An empty list
// means unrestricted delivery.
func AdminWebhookRoutesHandler(webhooks registry.WebhookStore, strategies registry.StrategyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload routesPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid payload")
			return
		}

		for _, id := range payload.Routes {
			if _, err := strategies.Get(r.Context(), id); err != nil {
				writeMessage(w, http.StatusBadRequest, "unknown strategy: "+id)
				return
			}
		}

		reg, err := webhooks.SetRoutes(r.Context(), payload.Routes)
		if errors.Is(err, registry.ErrNotFound) {
			writeMessage(w, http.StatusBadRequest, "webhook not registered")
			return
		}
		if err != nil {
			logger.WithError(err).Error("failed to update webhook routes")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "routes": reg.Routes})
	}
}

type approvePayload struct {
	UID        string   `json:"uid"`
	Strategies []string `json:"strategies"`
}

// AdminApproveUserHandler approves a pending user for the given strategies.
// The access key is included here and only here so the admin can hand it to
// the user out of band.
func AdminApproveUserHandler(subs registry.SubscriberStore, strategies registry.StrategyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload approvePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if len(payload.Strategies) == 0 {
			writeMessage(w, http.StatusBadRequest, "at least one strategy is required")
			return
		}
		for _, id := range payload.Strategies {
			if _, err := strategies.Get(r.Context(), id); err != nil {
				writeMessage(w, http.StatusBadRequest, "unknown strategy: "+id)
				return
			}
		}

		sub, err := subs.Approve(r.Context(), payload.UID, payload.Strategies)
		if errors.Is(err, registry.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "uid not found")
			return
		}
		if err != nil {
			logger.WithError(err).Error("failed to approve subscriber")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}

		logger.WithField("uid", sub.UID).Info("subscriber approved")
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"uid":        sub.UID,
			"status":     sub.Status,
			"strategies": sub.ApprovedStrategies,
			"access_key": sub.AccessKey,
		})
	}
}

type denyPayload struct {
	UID string `json:"uid"`
}

// AdminDenyUserHandler revokes a user's access. Open positions are kept as
// an audit trail; the access key and auto-trading flag are cleared.
func AdminDenyUserHandler(subs registry.SubscriberStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload denyPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid payload")
			return
		}

		sub, err := subs.Deny(r.Context(), payload.UID)
		if errors.Is(err, registry.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "uid not found")
			return
		}
		if err != nil {
			logger.WithError(err).Error("failed to deny subscriber")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}

		logger.WithField("uid", sub.UID).Info("subscriber denied")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "uid": sub.UID, "status": sub.Status})
	}
}

type strategiesPatchPayload struct {
	Strategies []string `json:"strategies"`
}

// AdminPatchUserStrategiesHandler reassigns an approved user's strategies.
func AdminPatchUserStrategiesHandler(subs registry.SubscriberStore, strategies registry.StrategyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := chi.URLParam(r, "uid")

		var payload strategiesPatchPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if len(payload.Strategies) == 0 {
			writeMessage(w, http.StatusBadRequest, "at least one strategy is required")
			return
		}
		for _, id := range payload.Strategies {
			if _, err := strategies.Get(r.Context(), id); err != nil {
				writeMessage(w, http.StatusBadRequest, "unknown strategy: "+id)
				return
			}
		}

		sub, err := subs.SetStrategies(r.Context(), uid, payload.Strategies)
		if errors.Is(err, registry.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "uid not found")
			return
		}
		if errors.Is(err, model.ErrUIDNotApproved) {
			writeMessage(w, http.StatusConflict, "user is not approved")
			return
		}
		if err != nil {
			logger.WithError(err).Error("failed to update subscriber strategies")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"uid":        sub.UID,
			"strategies": sub.ApprovedStrategies,
		})
	}
}

type createStrategyPayload struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
}

// AdminCreateStrategyHandler adds a strategy to the catalog.
func AdminCreateStrategyHandler(strategies registry.StrategyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createStrategyPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if strings.TrimSpace(payload.Name) == "" {
			writeMessage(w, http.StatusBadRequest, "name is required")
			return
		}

		strat, err := strategies.Create(r.Context(), payload.Name, payload.Description, payload.Aliases)
		if err != nil {
			logger.WithError(err).Error("failed to create strategy")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}

		logger.WithField("strategy_id", strat.ID).Info("strategy created")
		writeJSON(w, http.StatusOK, strat)
	}
}

type patchStrategyPayload struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Active      *bool    `json:"active,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

// AdminPatchStrategyHandler updates strategy fields, including the active
// toggle. There is no delete: deactivation is the terminal state.
func AdminPatchStrategyHandler(strategies registry.StrategyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var payload patchStrategyPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid payload")
			return
		}

		strat, err := strategies.Update(r.Context(), id, registry.StrategyUpdate{
			Name:        payload.Name,
			Description: payload.Description,
			Active:      payload.Active,
			Synonyms:    payload.Aliases,
		})
		if errors.Is(err, registry.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "strategy not found")
			return
		}
		if err != nil {
			logger.WithError(err).Error("failed to update strategy")
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, strat)
	}
}
