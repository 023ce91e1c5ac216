package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"event-ticketing/config"
	"event-ticketing/internal/status"
	"event-ticketing/models"
	"event-ticketing/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type PaymentHandler struct {
	app            *pocketbase.PocketBase
	paymentService *services.PaymentService
	cfg            *config.Config
}

func NewPaymentHandler(app *pocketbase.PocketBase, paymentService *services.PaymentService, cfg *config.Config) *PaymentHandler {
	return &PaymentHandler{
		app:            app,
		paymentService: paymentService,
		cfg:            cfg,
	}
}

// apiError translates the service error taxonomy to HTTP responses. No
// signing material or raw internals ever reach the caller.
func apiError(err error) error {
	switch {
	case errors.Is(err, status.ErrMissingData):
		return apis.NewBadRequestError("Missing data", nil)
	case errors.Is(err, status.ErrInvalidSignature):
		return apis.NewBadRequestError("Invalid signature", nil)
	case errors.Is(err, status.ErrTicketNotFound):
		return apis.NewNotFoundError("Ticket not found", nil)
	case errors.Is(err, status.ErrPaymentNotFound):
		return apis.NewNotFoundError("Payment not found", nil)
	case errors.Is(err, status.ErrEventNotFound):
		return apis.NewNotFoundError("Event not found", nil)
	case errors.Is(err, status.ErrTypeNotFound):
		return apis.NewNotFoundError("Ticket type not found", nil)
	case errors.Is(err, status.ErrAlreadySettled):
		return apis.NewApiError(http.StatusConflict, "Payment already settled", nil)
	default:
		return apis.NewApiError(http.StatusInternalServerError, "Something went wrong", nil)
	}
}

// Initiate - Build the signed gateway form for a ticket
func (h *PaymentHandler) Initiate(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		Amount   float64 `json:"amount"`
		TicketID string  `json:"ticketId"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	resp, err := h.paymentService.Initiate(e.Request.Context(), services.InitiateRequest{
		Amount:   decimal.NewFromFloat(req.Amount),
		TicketID: req.TicketID,
		UserID:   e.Auth.Id,
		Method:   models.MethodEsewa,
	})
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, resp)
}

// EsewaSuccess - Redirect-style callback from the gateway
func (h *PaymentHandler) EsewaSuccess(e *core.RequestEvent) error {
	rawData := e.Request.URL.Query().Get("data")

	payment, err := h.paymentService.ReconcileRedirect(e.Request.Context(), rawData)
	if err != nil {
		return apiError(err)
	}

	// The browser follows this redirect, so a failed payment must land on
	// the failure page rather than continue as if paid.
	page := "/payment/esewa/failure"
	if payment.Status == models.PaymentSuccess {
		page = "/payment/esewa/success"
	}

	target := h.cfg.FrontendBaseURL + page + "?ticketId=" + url.QueryEscape(payment.TicketID)
	return e.Redirect(http.StatusFound, target)
}

// EsewaVerify - Posted-verification callback
func (h *PaymentHandler) EsewaVerify(e *core.RequestEvent) error {
	var req struct {
		Data string `json:"data"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	summary, err := h.paymentService.VerifyPosted(e.Request.Context(), req.Data)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success":          true,
		"ticketId":         summary.TicketID,
		"transaction_uuid": summary.TransactionUUID,
		"amount":           summary.Amount,
		"eventTitle":       summary.EventTitle,
		"ticketType":       summary.TicketType,
		"customerEmail":    summary.CustomerEmail,
	})
}

// CheckPaymentStatus - Check payment status
func (h *PaymentHandler) CheckPaymentStatus(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	paymentID := e.Request.PathValue("paymentId")

	paymentStatus, err := h.paymentService.CheckStatus(e.Request.Context(), paymentID, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"status": paymentStatus})
}
