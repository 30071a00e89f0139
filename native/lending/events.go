package lending

import (
	"strconv"

	"meridian/core/types"
	"meridian/crypto"
)

const (
	EventTypePoolInitialized     = "lending.pool.initialized"
	EventTypePoolLocked          = "lending.pool.locked"
	EventTypePoolUnlocked        = "lending.pool.unlocked"
	EventTypeAdminAdded          = "lending.admin.added"
	EventTypeAdminRemoved        = "lending.admin.removed"
	EventTypeOracleUpdated       = "lending.oracle.updated"
	EventTypeDeposited           = "lending.liquidity.deposited"
	EventTypeWithdrawn           = "lending.liquidity.withdrawn"
	EventTypeCollateralSubmitted = "lending.collateral.submitted"
	EventTypeAssetVerified       = "lending.collateral.verified"
	EventTypeAssetRejected       = "lending.collateral.rejected"
	EventTypeCollateralPosted    = "lending.collateral.posted"
	EventTypeBorrowed            = "lending.loan.borrowed"
	EventTypeRepaid              = "lending.loan.repaid"
	EventTypeLoanClosed          = "lending.loan.closed"
	EventTypeLiquidated          = "lending.loan.liquidated"
)

func newEvent(eventType string, attrs map[string]string) *types.Event {
	return &types.Event{Type: eventType, Attributes: attrs}
}

func addrAttr(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}

func uintAttr(v uint64) string {
	return strconv.FormatUint(v, 10)
}
