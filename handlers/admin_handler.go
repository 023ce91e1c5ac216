package handlers

import (
	"net/http"

	"event-ticketing/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"
)

type AdminHandler struct {
	app            *pocketbase.PocketBase
	paymentService *services.PaymentService
	apiKeyHash     string
}

func NewAdminHandler(app *pocketbase.PocketBase, paymentService *services.PaymentService, apiKeyHash string) *AdminHandler {
	return &AdminHandler{
		app:            app,
		paymentService: paymentService,
		apiKeyHash:     apiKeyHash,
	}
}

// requireKey checks X-Admin-Key against the configured bcrypt hash.
func (h *AdminHandler) requireKey(e *core.RequestEvent) error {
	if h.apiKeyHash == "" {
		return apis.NewForbiddenError("Admin API disabled", nil)
	}

	key := e.Request.Header.Get("X-Admin-Key")
	if key == "" {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.apiKeyHash), []byte(key)); err != nil {
		return apis.NewForbiddenError("Access denied", nil)
	}
	return nil
}

// GetPaymentDashboard - Pending payments overview
func (h *AdminHandler) GetPaymentDashboard(e *core.RequestEvent) error {
	if err := h.requireKey(e); err != nil {
		return err
	}

	pending, err := h.paymentService.PendingPayments(e.Request.Context(), 100)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"pending_count": len(pending),
		"pending":       pending,
	})
}

// RecheckPayment - Force a gateway status re-check for a stuck payment
func (h *AdminHandler) RecheckPayment(e *core.RequestEvent) error {
	if err := h.requireKey(e); err != nil {
		return err
	}

	var req struct {
		TransactionUUID string `json:"transaction_uuid"`
	}
	if err := e.BindBody(&req); err != nil || req.TransactionUUID == "" {
		return apis.NewBadRequestError("Invalid request", err)
	}

	payment, err := h.paymentService.Recheck(e.Request.Context(), req.TransactionUUID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, payment)
}
