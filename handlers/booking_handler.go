package handlers

import (
	"net/http"

	"event-ticketing/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type BookingHandler struct {
	app            *pocketbase.PocketBase
	bookingService *services.BookingService
}

func NewBookingHandler(app *pocketbase.PocketBase, bookingService *services.BookingService) *BookingHandler {
	return &BookingHandler{
		app:            app,
		bookingService: bookingService,
	}
}

// BookTicket - Create a ticket with its pending payment
func (h *BookingHandler) BookTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req services.BookTicketRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	resp, err := h.bookingService.BookTicket(e.Request.Context(), e.Auth.Id, req)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Ticket booked",
		"ticket":  resp.Ticket,
		"payment": resp.Payment,
	})
}

// ListBooked - Caller's tickets with purchase state
func (h *BookingHandler) ListBooked(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	booked, err := h.bookingService.ListBooked(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, booked)
}
