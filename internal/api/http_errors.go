package api

import (
	"errors"
	"net/http"

	"github.com/askorupski/agentflow/internal/core"
)

func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	switch domErr.Code {
	case core.CodeUnknownLane, core.CodeAgentNotInLane:
		return http.StatusNotFound, true
	case core.CodeLaneCapacity, core.CodePromotionDenied, core.CodeAgentBusy:
		return http.StatusConflict, true
	case core.CodeLaneWaitTimeout:
		return http.StatusGatewayTimeout, true
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusUnprocessableEntity, true
	case core.ErrCatRateLimit:
		return http.StatusTooManyRequests, true
	case core.ErrCatAuth:
		return http.StatusUnauthorized, true
	default:
		return http.StatusInternalServerError, true
	}
}
