package poold

import (
	"errors"
	"net/http"

	"meridian/native/common"
	"meridian/native/lending"
)

// httpStatus maps engine sentinels onto HTTP status codes. Unknown errors
// fall through to 500 so internal failures are never misreported as caller
// mistakes.
func httpStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, lending.ErrInvalidParameter),
		errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrInvalidOracleData):
		return http.StatusBadRequest
	case errors.Is(err, lending.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, lending.ErrPoolNotInitialised):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrPoolExists),
		errors.Is(err, lending.ErrAlreadyLocked),
		errors.Is(err, lending.ErrAlreadyUnlocked),
		errors.Is(err, lending.ErrAlreadyPending),
		errors.Is(err, lending.ErrStaleVerification),
		errors.Is(err, lending.ErrDuplicateAdmin),
		errors.Is(err, lending.ErrUnknownAdmin),
		errors.Is(err, lending.ErrMaxAdmins),
		errors.Is(err, lending.ErrNoDebt),
		errors.Is(err, lending.ErrNotVerified),
		errors.Is(err, lending.ErrAboveLiquidationThreshold),
		errors.Is(err, lending.ErrStaleOracle),
		errors.Is(err, lending.ErrOverrideDisabled):
		return http.StatusConflict
	case errors.Is(err, lending.ErrInsufficientBalance),
		errors.Is(err, lending.ErrInsufficientLiquidity),
		errors.Is(err, lending.ErrExceedsLTV):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lending.ErrPoolLocked),
		errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
