package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// StaleOracleMarker is the revert text the pool contract emits when the price
// feed behind a view call has not been refreshed within its freshness window.
// Matched as a case-insensitive substring of the RPC error payload.
const StaleOracleMarker = "oracle price is stale"

// StaleOracleError marks a ledger-state failure, not a transport failure.
// Both transports read the same underlying ledger state, so the client never
// switches transports for this error class.
type StaleOracleError struct {
	Err error
}

func (e *StaleOracleError) Error() string {
	return fmt.Sprintf("oracle price is stale: %v", e.Err)
}

func (e *StaleOracleError) Unwrap() error {
	return e.Err
}

// IsStaleOracle reports whether err is (or wraps) an oracle-staleness
// condition.
func IsStaleOracle(err error) bool {
	if err == nil {
		return false
	}
	var stale *StaleOracleError
	if errors.As(err, &stale) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), StaleOracleMarker)
}
