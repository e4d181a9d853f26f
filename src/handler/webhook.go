package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"signalbridge/src/dispatch"
)

const maxWebhookBodyBytes = 1 << 20

type alertDispatcher interface {
	Dispatch(ctx context.Context, providedSecret string, body []byte) dispatch.Outcome
}

// WebhookHandler accepts TradingView alert POSTs on /webhook and
// /webhook/{secret}. The secret may arrive as a path segment, the
// x-webhook-secret header, a query parameter or a body field.
func WebhookHandler(d alertDispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "unreadable body")
			return
		}

		secret := chi.URLParam(r, "secret")
		if secret == "" {
			secret = r.Header.Get("x-webhook-secret")
		}
		if secret == "" {
			secret = r.URL.Query().Get("secret")
		}

		outcome := d.Dispatch(r.Context(), secret, body)
		if outcome.Code >= http.StatusInternalServerError {
			logger.WithField("message", outcome.Message).Error("webhook dispatch failed")
		}
		writeJSON(w, outcome.Code, outcome)
	}
}
