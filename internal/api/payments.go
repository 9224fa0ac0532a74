package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const idempotencyHeader = "Idempotency-Key"

func (h *Handler) createPaymentIntent(c *gin.Context) {
	var req checkoutRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	result, err := h.payments.InitiatePayment(c.Request.Context(), userID(c), req.toService(), idempotencyKey(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Payment intent created successfully", result)
}

func (h *Handler) reorder(c *gin.Context) {
	orderID, err := pathID(c, "order_id")
	if err != nil {
		respondError(c, err)
		return
	}

	var req checkoutRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	result, err := h.payments.Reorder(c.Request.Context(), userID(c), orderID, req.toService(), idempotencyKey(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Payment intent created successfully", result)
}

func (h *Handler) confirmPayment(c *gin.Context) {
	var req confirmRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	result, err := h.payments.ConfirmPayment(c.Request.Context(), userID(c), req.PaymentID, req.PaymentIntentID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Payment confirmed successfully", result)
}

func (h *Handler) getPaymentStatus(c *gin.Context) {
	paymentID, err := pathID(c, "payment_id")
	if err != nil {
		respondError(c, err)
		return
	}

	view, err := h.payments.GetPaymentStatus(c.Request.Context(), userID(c), paymentID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "", view)
}

func (h *Handler) getAllTransactions(c *gin.Context) {
	txs, err := h.payments.ListTransactions(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if len(txs) == 0 {
		respondOK(c, "No transactions found", txs)
		return
	}
	respondOK(c, "", txs)
}

func idempotencyKey(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(idempotencyHeader))
}
