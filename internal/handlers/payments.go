package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tasknest/backend/internal/models"
	"github.com/tasknest/backend/internal/services"
)

// PaymentEngine is the subset of the payment service the handler needs.
type PaymentEngine interface {
	CreateCheckout(ctx context.Context, buyer string, coins int64) (string, error)
	SettlePayment(ctx context.Context, caller, sessionID string) (*services.SettleResult, error)
	History(ctx context.Context, buyer string) ([]*models.PaymentRecord, error)
}

// PaymentHandler serves the checkout, settlement and payment history endpoints.
type PaymentHandler struct {
	Payments PaymentEngine
	Logger   *slog.Logger
}

// Checkout handles POST /payment-checkout-session.
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Coin int64 `json:"coin"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	url, err := h.Payments.CreateCheckout(r.Context(), principal(r).Identity, body.Coin)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Settle handles PATCH /payment-success?session_id=. Calling it again for the
// same session returns the stored record.
func (h *PaymentHandler) Settle(w http.ResponseWriter, r *http.Request) {
	res, err := h.Payments.SettlePayment(r.Context(), principal(r).Identity, r.URL.Query().Get("session_id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// History handles GET /payments?email=.
func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	email, err := self(r, r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	out, err := h.Payments.History(r.Context(), email)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
