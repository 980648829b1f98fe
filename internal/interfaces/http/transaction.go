package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"fintrack/internal/domain/transaction"
	"fintrack/internal/shared/middleware"
)

const maxBodyBytes = 1 << 20

var (
	txMeter         = otel.Meter("fintrack/transactions")
	txOperations, _ = txMeter.Int64Counter("fintrack.transaction.operations",
		metric.WithDescription("Transaction operations by kind and outcome"),
	)
)

type TransactionHandler struct {
	service *transaction.Service
	log     logrus.FieldLogger
}

func NewTransactionHandler(service *transaction.Service, log logrus.FieldLogger) *TransactionHandler {
	return &TransactionHandler{service: service, log: log}
}

// HandleList returns the caller's transactions. The owner is named by the
// email query parameter and must be the caller.
func (h *TransactionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.EmailFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	transactions, err := h.service.List(r.Context(), r.URL.Query().Get("email"), caller)
	h.record(r, "list", err)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transactions)
}

func (h *TransactionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.EmailFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	t, err := h.service.GetByID(r.Context(), r.PathValue("id"), caller)
	h.record(r, "get", err)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// HandleCreate stores the request body as a new transaction owned by the caller.
func (h *TransactionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.EmailFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	fields, ok := h.decodeFields(w, r)
	if !ok {
		return
	}

	result, err := h.service.Create(r.Context(), fields, caller)
	h.record(r, "create", err)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleUpdate applies the request body as a partial update.
func (h *TransactionHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.EmailFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	patch, ok := h.decodeFields(w, r)
	if !ok {
		return
	}

	result, err := h.service.Update(r.Context(), r.PathValue("id"), patch, caller)
	h.record(r, "update", err)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *TransactionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.EmailFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	result, err := h.service.Delete(r.Context(), r.PathValue("id"), caller)
	h.record(r, "delete", err)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *TransactionHandler) decodeFields(w http.ResponseWriter, r *http.Request) (transaction.Fields, bool) {
	var fields transaction.Fields

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&fields); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			writeJSONError(w, http.StatusBadRequest, "Request body is required")
		case errors.As(err, &maxErr):
			writeJSONError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		default:
			writeJSONError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		}
		return transaction.Fields{}, false
	}
	return fields, true
}

// writeError maps domain errors to status codes. Internal details stay in the
// server log; the service has already logged them with operation context.
func (h *TransactionHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transaction.ErrInvalidArgument):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, transaction.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, transaction.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, transaction.ErrUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, "Storage unavailable")
	default:
		if !errors.Is(err, transaction.ErrInternal) {
			h.log.WithError(err).Error("Unclassified transaction error")
		}
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *TransactionHandler) record(r *http.Request, op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, transaction.ErrInvalidArgument):
		outcome = "invalid"
	case errors.Is(err, transaction.ErrForbidden):
		outcome = "forbidden"
	case errors.Is(err, transaction.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, transaction.ErrUnavailable):
		outcome = "unavailable"
	default:
		outcome = "error"
	}
	txOperations.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}
