package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/riteshkumar/savings-ledger/internal/errors"
	"github.com/riteshkumar/savings-ledger/internal/middleware"
	"github.com/riteshkumar/savings-ledger/internal/models"
	"github.com/riteshkumar/savings-ledger/internal/service"
	u "github.com/riteshkumar/savings-ledger/internal/utils"
)

const defaultProjectionMonths = 12

type SavingHandler struct {
	savingService service.SavingService
	logger        *slog.Logger
}

func NewSavingHandler(savingService service.SavingService, logger *slog.Logger) *SavingHandler {
	return &SavingHandler{
		savingService: savingService,
		logger:        logger,
	}
}

// RegisterRoutes mounts the savings API on router. The caller installs the
// auth middleware on it.
func (h *SavingHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/savings", h.ListSavings).Methods(http.MethodGet)
	router.HandleFunc("/savings", h.CreateSaving).Methods(http.MethodPost)
	router.HandleFunc("/savings/transfer", h.Transfer).Methods(http.MethodPost)
	router.HandleFunc("/savings/{id}", h.UpdateSaving).Methods(http.MethodPut)
	router.HandleFunc("/savings/{id}", h.DeleteSaving).Methods(http.MethodDelete)
	router.HandleFunc("/savings/{id}/deposit", h.Deposit).Methods(http.MethodPost)
	router.HandleFunc("/savings/{id}/withdraw", h.Withdraw).Methods(http.MethodPost)
	router.HandleFunc("/savings/{id}/transactions", h.ListTransactions).Methods(http.MethodGet)
	router.HandleFunc("/savings/{id}/projection", h.GetProjection).Methods(http.MethodGet)
}

func (h *SavingHandler) ListSavings(w http.ResponseWriter, r *http.Request) {
	savings, err := h.savingService.ListSavings(r.Context(), middleware.CustomerID(r.Context()))
	if err != nil {
		h.handleServiceError(w, err, "list savings")
		return
	}
	u.WriteJSON(w, http.StatusOK, savings)
}

func (h *SavingHandler) CreateSaving(w http.ResponseWriter, r *http.Request) {
	var req models.SavingRequest
	if err := u.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("invalid create saving request", "error", err.Error())
		u.WriteError(w, http.StatusBadRequest, "invalid request payload", err.Error())
		return
	}

	saving, err := h.savingService.CreateSaving(r.Context(), middleware.CustomerID(r.Context()), &req)
	if err != nil {
		h.handleServiceError(w, err, "create saving")
		return
	}
	u.WriteJSON(w, http.StatusCreated, saving)
}

func (h *SavingHandler) UpdateSaving(w http.ResponseWriter, r *http.Request) {
	var req models.SavingRequest
	if err := u.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("invalid update saving request", "error", err.Error())
		u.WriteError(w, http.StatusBadRequest, "invalid request payload", err.Error())
		return
	}

	saving, err := h.savingService.UpdateSaving(r.Context(), mux.Vars(r)["id"], middleware.CustomerID(r.Context()), &req)
	if err != nil {
		h.handleServiceError(w, err, "update saving")
		return
	}
	u.WriteJSON(w, http.StatusOK, saving)
}

func (h *SavingHandler) DeleteSaving(w http.ResponseWriter, r *http.Request) {
	if err := h.savingService.DeleteSaving(r.Context(), mux.Vars(r)["id"], middleware.CustomerID(r.Context())); err != nil {
		h.handleServiceError(w, err, "delete saving")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SavingHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, "deposit", h.savingService.Deposit)
}

func (h *SavingHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, "withdraw", h.savingService.Withdraw)
}

type postFunc func(ctx context.Context, id, customerID string, req *models.AmountRequest) (*models.Saving, error)

func (h *SavingHandler) post(w http.ResponseWriter, r *http.Request, operation string, apply postFunc) {
	var req models.AmountRequest
	if err := u.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("invalid "+operation+" request", "error", err.Error())
		u.WriteError(w, http.StatusBadRequest, "invalid request payload", err.Error())
		return
	}

	saving, err := apply(r.Context(), mux.Vars(r)["id"], middleware.CustomerID(r.Context()), &req)
	if err != nil {
		h.handleServiceError(w, err, operation)
		return
	}
	u.WriteJSON(w, http.StatusOK, saving)
}

func (h *SavingHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if err := u.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("invalid transfer request", "error", err.Error())
		u.WriteError(w, http.StatusBadRequest, "invalid request payload", err.Error())
		return
	}

	if err := h.savingService.Transfer(r.Context(), middleware.CustomerID(r.Context()), &req); err != nil {
		h.handleServiceError(w, err, "transfer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SavingHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.savingService.ListTransactions(r.Context(), mux.Vars(r)["id"], middleware.CustomerID(r.Context()))
	if err != nil {
		h.handleServiceError(w, err, "list transactions")
		return
	}
	u.WriteJSON(w, http.StatusOK, transactions)
}

func (h *SavingHandler) GetProjection(w http.ResponseWriter, r *http.Request) {
	months, err := u.QueryInt(r, "months", defaultProjectionMonths)
	if err != nil {
		u.WriteError(w, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	entries, err := h.savingService.GetInterestProjection(r.Context(), mux.Vars(r)["id"], middleware.CustomerID(r.Context()), months)
	if err != nil {
		h.handleServiceError(w, err, "interest projection")
		return
	}
	u.WriteJSON(w, http.StatusOK, entries)
}

func (h *SavingHandler) handleServiceError(w http.ResponseWriter, err error, operation string) {
	switch {
	case err == errors.ErrMissingCustomer:
		u.WriteError(w, http.StatusUnauthorized, "unauthorized", "")
	case errors.IsNotFound(err):
		u.WriteError(w, http.StatusNotFound, "saving not found", "")
	case errors.IsForbidden(err):
		u.WriteError(w, http.StatusForbidden, "forbidden", "saving belongs to another customer")
	case errors.IsInsufficientFunds(err):
		u.WriteError(w, http.StatusBadRequest, "insufficient funds", "balance does not cover the requested amount")
	case errors.IsValidationError(err):
		u.WriteError(w, http.StatusBadRequest, "validation error", err.Error())
	default:
		h.logger.Error("internal server error during "+operation, "error", err.Error())
		u.WriteError(w, http.StatusInternalServerError, "internal server error", "")
	}
}
