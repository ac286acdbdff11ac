package transactionhttp

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/paylink/reconciler/internal/domain/transaction"
	"github.com/paylink/reconciler/internal/infra/logger"
	apperrors "github.com/paylink/reconciler/internal/utils/errors"
	"github.com/paylink/reconciler/internal/utils/middleware"
)

// handleError maps transaction domain errors to the {error:{...}} envelope.
func handleError(c *gin.Context, err error) {
	de := transaction.Classify(err)
	appErr := toAppError(de)

	log := logger.FromContext(c.Request.Context(), zap.NewNop())
	if de.Category == transaction.CategorySystem {
		log.Error("request failed", zap.String("code", de.Code), zap.Error(err))
	} else {
		log.Info("request rejected", zap.String("code", de.Code), zap.Error(err))
	}
	_ = c.Error(err)

	c.JSON(appErr.StatusCode, appErr.ToResponse(middleware.GetRequestID(c)))
}

func toAppError(de *transaction.DomainError) *apperrors.AppError {
	appErr := apperrors.NewAppError(de.Code, de.Message, de.HTTPStatus, de)
	details := make(map[string]any, len(de.Details)+3)
	for k, v := range de.Details {
		details[k] = v
	}
	details["category"] = string(de.Category)
	details["retryable"] = de.Retryable
	if de.SuggestedAction != "" {
		details["suggested_action"] = de.SuggestedAction
	}
	return appErr.WithDetails(details)
}

// bindError answers a request body that could not be decoded.
func bindError(c *gin.Context, err error) {
	handleError(c, transaction.ErrInvalidRequest.WithDetails(map[string]any{
		"reason": err.Error(),
	}))
}
