package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apierrors "github.com/feral-file/ff-custody-ledger/internal/api/shared/errors"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
)

// respondBadRequest responds with a bad request error
func respondBadRequest(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{Error: apierrors.NewBadRequestError(message, details...)})
}

// respondValidationError responds with a validation error
func respondValidationError(c *gin.Context, err error) {
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{Error: apiErr})
		return
	}
	c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{Error: apierrors.NewValidationError(err.Error())})
}

// respondLedgerError maps ledger rejections to their status; anything else is logged and answered with 500
func respondLedgerError(c *gin.Context, err error, message string, fields ...zap.Field) {
	status, apiErr, isLedger := apierrors.FromLedgerError(err)
	if !isLedger {
		logger.ErrorCtx(c.Request.Context(), err, append(fields, zap.String("message", message))...)
		apiErr = apierrors.NewInternalError(message)
	}
	c.JSON(status, apierrors.ErrorResponse{Error: apiErr})
}
