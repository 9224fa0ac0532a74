package api

import (
	"github.com/gin-gonic/gin"
)

func (h *Handler) getOrders(c *gin.Context) {
	orders, err := h.orders.GetOrders(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "", orders)
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	detail, err := h.orders.GetOrder(c.Request.Context(), userID(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "", detail)
}

func (h *Handler) trackOrder(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	view, err := h.orders.TrackOrder(c.Request.Context(), userID(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "", view)
}

// updateOrderStatus is back-office only and not scoped to the caller
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	var req statusRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	result, err := h.orders.UpdateStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "Order status updated successfully", result)
}
