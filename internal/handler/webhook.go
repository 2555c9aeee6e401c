package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/oakmart/lucky-store/internal/checkout"
	"github.com/oakmart/lucky-store/internal/domain/order"
	"github.com/oakmart/lucky-store/internal/payment"
)

// SignatureHeader carries the provider's payload signature.
const SignatureHeader = "Payment-Signature"

const maxWebhookBody = 1 << 20

// paymentOutcome receives asynchronous payment outcomes. Deliveries are
// at-least-once: a verified delivery is always acknowledged with 200, even
// when it is a duplicate or references state we cannot act on, because
// returning an error would only make the provider redeliver the same event.
// Only an unverifiable signature gets a 400.
func (h *Handler) paymentOutcome(w http.ResponseWriter, r *http.Request) {
	lg := zctx.From(r.Context())

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	event, err := payment.VerifyEvent(payload, r.Header.Get(SignatureHeader), h.cfg.WebhookSecret, time.Now())
	if err != nil {
		lg.Warn("rejected payment webhook", zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if !event.Actionable() {
		lg.Info("ignoring payment event", zap.String("type", event.Type))
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if event.CorrelationRef == "" {
		lg.Warn("payment event without order reference", zap.String("type", event.Type))
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	err = h.coordinator.ReconcilePayment(r.Context(), event.CorrelationRef, event.Outcome)
	if err != nil {
		var invalid *order.InvalidTransitionError
		switch {
		case errors.Is(err, checkout.ErrUnknownOrder):
			// Desync with the provider; ack so it stops retrying.
			lg.Error("payment outcome for unknown order",
				zap.String("order_id", event.CorrelationRef),
				zap.String("type", event.Type),
			)
			respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		case errors.As(err, &invalid):
			// Contradictory outcome after the first one already won. The
			// stored status stands; ack the delivery.
			lg.Error("conflicting payment outcome rejected",
				zap.String("order_id", invalid.OrderID),
				zap.String("from", string(invalid.From)),
				zap.String("to", string(invalid.To)),
			)
			respondJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
		default:
			lg.Error("reconcile payment", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
