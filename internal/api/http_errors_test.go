package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/askorupski/agentflow/internal/core"
)

func TestHTTPStatusForDomainError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		mapped bool
	}{
		{"unknown lane", core.ErrUnknownLane("turbo"), http.StatusNotFound, true},
		{"agent not in lane", core.ErrAgentNotInLane("a1"), http.StatusNotFound, true},
		{"capacity", core.ErrLaneCapacity("critical"), http.StatusConflict, true},
		{"promotion denied", core.ErrPromotionDenied("cannot demote"), http.StatusConflict, true},
		{"wait timeout", core.ErrLaneWaitTimeout("standard"), http.StatusGatewayTimeout, true},
		{"validation", core.ErrValidation("INVALID_CAPACITY", "must be at least 1"), http.StatusUnprocessableEntity, true},
		{"wrapped", fmt.Errorf("admitting: %w", core.ErrUnknownLane("x")), http.StatusNotFound, true},
		{"plain error", errors.New("boom"), 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, ok := httpStatusForDomainError(tc.err)
			if ok != tc.mapped {
				t.Fatalf("mapped = %v, want %v", ok, tc.mapped)
			}
			if status != tc.status {
				t.Errorf("status = %d, want %d", status, tc.status)
			}
		})
	}
}
