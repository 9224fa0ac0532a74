package api

import (
	"net/http"

	"grocery-orders/internal/apperrors"
	"grocery-orders/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type successEnvelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, successEnvelope{Success: true, Message: message, Data: data})
}

// respondError writes err as an error envelope. Only typed errors that allow it
// show their own message; everything else gets the public message of its code.
func respondError(c *gin.Context, err error) {
	typed := apperrors.As(err)
	if typed == nil {
		typed = apperrors.Wrap(apperrors.CodeInternal, err, "unexpected error")
	}

	meta := apperrors.MetadataFor(typed.Code())
	msg := meta.PublicMessage
	if meta.ExposeMessage && typed.Message() != "" {
		msg = typed.Message()
	}

	ctx := c.Request.Context()
	if meta.HTTPStatus >= http.StatusInternalServerError {
		util.RecordError(ctx, err)
		util.LoggerFrom(ctx).Error("Request failed",
			zap.String("code", string(typed.Code())),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(meta.HTTPStatus, errorEnvelope{Success: false, Message: msg})
}
