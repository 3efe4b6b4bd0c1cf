package stakingd

import (
	"encoding/json"
	"errors"
	"net/http"

	nativecommon "stakevault/native/common"
	"stakevault/native/staking"
	"stakevault/native/token"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps engine errors onto HTTP status codes by category.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, staking.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, staking.ErrPaused),
		errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, staking.ErrNotBootstrapped):
		return http.StatusServiceUnavailable
	case errors.Is(err, staking.ErrAlreadyStarted),
		errors.Is(err, staking.ErrRewardNotStarted),
		errors.Is(err, nativecommon.ErrReentrantCall):
		return http.StatusConflict
	case errors.Is(err, staking.ErrInsufficientTreasury),
		errors.Is(err, staking.ErrExceedsRewardCapacity),
		errors.Is(err, staking.ErrArithmeticOverflow),
		errors.Is(err, staking.ErrFeeExceedsPrincipal),
		errors.Is(err, staking.ErrReceivedExceedsRequested),
		errors.Is(err, staking.ErrInvariantViolated),
		errors.Is(err, token.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, staking.ErrInvalidAmount),
		errors.Is(err, staking.ErrInvalidDuration),
		errors.Is(err, staking.ErrIndexOutOfRange),
		errors.Is(err, staking.ErrPercentageTooHigh),
		errors.Is(err, staking.ErrInvalidPercentage),
		errors.Is(err, staking.ErrPenaltyTooHigh),
		errors.Is(err, staking.ErrNoDeposits),
		errors.Is(err, staking.ErrInvalidAddress),
		errors.Is(err, token.ErrInvalidAmount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSONError(w, r, status, msg)
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: RequestIDFromContext(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}
