package handlers

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/jts-services/portal/internal/api/middleware"
	"github.com/jts-services/portal/internal/jobs"
	"github.com/jts-services/portal/internal/payments"
	"github.com/jts-services/portal/internal/repository"
	"github.com/rs/zerolog"
)

const maxWebhookBytes = 64 << 10

// WebhooksHandler receives payment provider callbacks.
type WebhooksHandler struct {
	publisher jobs.Publisher
	secret    []byte
	log       zerolog.Logger
}

// NewWebhooksHandler returns a handler that accepts callbacks carrying secret
// in the X-Webhook-Secret header. An empty secret rejects every call.
func NewWebhooksHandler(publisher jobs.Publisher, secret string, log zerolog.Logger) *WebhooksHandler {
	return &WebhooksHandler{publisher: publisher, secret: []byte(secret), log: log}
}

// Payment handles POST /api/webhooks/payments
func (h *WebhooksHandler) Payment(w http.ResponseWriter, r *http.Request) {
	given := []byte(r.Header.Get("X-Webhook-Secret"))
	if len(h.secret) == 0 || subtle.ConstantTimeCompare(given, h.secret) != 1 {
		middleware.WriteError(w, http.StatusUnauthorized, "Invalid webhook secret")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Webhook body too large")
		return
	}

	job, err := payments.ParseWebhook(body)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServiceError(w, r, err, "Payment", "Failed to read webhook")
		return
	}

	if err := h.publisher.PublishPayment(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("invoice_id", job.InvoiceID).Msg("Failed to enqueue payment job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue payment")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("invoice_id", job.InvoiceID).
		Str("reference", job.Reference).
		Msg("Payment job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(jobs.JobStatusPending),
	})
}
