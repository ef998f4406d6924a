package commission

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================
//
// Resolution itself never errors: unresolvable references and malformed
// dates degrade to zero or to the base rate by policy. These sentinels are
// for the catalog persistence boundary and its administrative callers.

var (
	// ErrAgentNotFound is returned when a referenced agent doesn't exist.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrPlanNotFound is returned when a referenced plan doesn't exist.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrPayscaleNotFound is returned when a referenced payscale doesn't exist.
	ErrPayscaleNotFound = errors.New("payscale not found")
)

// IsNotFound returns true if the error indicates a missing catalog record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAgentNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrPayscaleNotFound)
}
