package handlers

import (
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jts-services/portal/internal/api/middleware"
	"github.com/jts-services/portal/internal/ledger"
	"github.com/rs/zerolog"
)

// CustomersHandler serves customer ledgers.
type CustomersHandler struct {
	ledger LedgerService
	loc    *time.Location
	log    zerolog.Logger
}

// NewCustomersHandler returns a handler that interprets statement dates in loc
// (UTC when nil).
func NewCustomersHandler(ledger LedgerService, loc *time.Location, log zerolog.Logger) *CustomersHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &CustomersHandler{ledger: ledger, loc: loc, log: log}
}

// Transactions handles GET /api/customers/{id}/transactions
func (h *CustomersHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	live, err := h.ledger.Live(r.Context(), owner, urlParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "Customer", "Failed to load transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, live)
}

// Statement handles GET /api/customers/{id}/statement?from=YYYY-MM-DD&to=YYYY-MM-DD.
// Both dates are optional and inclusive.
func (h *CustomersHandler) Statement(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	period, err := h.parsePeriod(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := h.ledger.Statement(r.Context(), owner, urlParam(r, "id"), period)
	if err != nil {
		writeServiceError(w, r, err, "Customer", "Failed to build statement")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, st)
}

type periodError string

func (e periodError) Error() string { return string(e) }

func (h *CustomersHandler) parsePeriod(r *http.Request) (ledger.Period, error) {
	var period ledger.Period
	query := r.URL.Query()

	if s := query.Get("from"); s != "" {
		from, err := civil.ParseDate(s)
		if err != nil {
			return period, periodError("Invalid from date, expected YYYY-MM-DD")
		}
		period.From = from.In(h.loc)
	}
	if s := query.Get("to"); s != "" {
		to, err := civil.ParseDate(s)
		if err != nil {
			return period, periodError("Invalid to date, expected YYYY-MM-DD")
		}
		// inclusive: everything up to the last instant of that day
		period.To = to.AddDays(1).In(h.loc).Add(-time.Microsecond)
	}
	if period.Validate() != nil {
		return period, periodError("to must not be before from")
	}
	return period, nil
}
