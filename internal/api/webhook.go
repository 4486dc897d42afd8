package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/logging"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/metrics"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/reconcile"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/webhook"
)

const maxWebhookBody = 1 << 20

type EventHandler interface {
	Handle(ctx context.Context, ev webhook.Event) (reconcile.Result, error)
}

// webhookHandler answers every recognised delivery with 200 and a result
// body. Only an unreadable payload gets 400 and only a store failure 500.
func webhookHandler(engine EventHandler, m *metrics.Metrics, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := logger.WithRequestID(GetRequestID(r.Context()))

		kind := "malformed"
		status := reconcile.StatusError
		defer func() {
			m.ObserveWebhook(kind, status, time.Since(start).Seconds())
		}()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
		if err != nil || len(body) > maxWebhookBody {
			writeJSON(w, http.StatusBadRequest, reconcile.Result{Status: reconcile.StatusError, Message: "could not read webhook body"})
			return
		}

		ev, err := webhook.Classify(body)
		if err != nil {
			var missing *webhook.MissingFieldError
			if errors.As(err, &missing) {
				kind = string(webhook.KindBooking)
				log.Info("booking rejected", "missing_fields", missing.Fields)
				writeJSON(w, http.StatusOK, reconcile.Result{Status: reconcile.StatusError, Message: "Missing required field(s): " + strings.Join(missing.Fields, ", ")})
				return
			}
			log.Warn("malformed webhook", "error", err.Error())
			writeJSON(w, http.StatusBadRequest, reconcile.Result{Status: reconcile.StatusError, Message: "Malformed webhook payload"})
			return
		}
		kind = string(ev.Kind())

		res, err := engine.Handle(r.Context(), ev)
		if err != nil {
			log.Error("webhook processing failed", "kind", kind, "error", err.Error())
			writeJSON(w, http.StatusInternalServerError, reconcile.Result{Status: reconcile.StatusError, Message: "Internal error processing webhook"})
			return
		}
		status = res.Status

		log.Debug("webhook processed", "kind", kind, "status", res.Status)
		writeJSON(w, http.StatusOK, res)
	}
}

