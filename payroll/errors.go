package payroll

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrBatchNotFound is returned when a referenced batch doesn't exist.
	ErrBatchNotFound = errors.New("payroll batch not found")

	// ErrLineNotFound is returned when a referenced line doesn't exist.
	ErrLineNotFound = errors.New("payroll line not found")

	// ErrEntryNotFound is returned when a referenced entry doesn't exist.
	ErrEntryNotFound = errors.New("sale entry not found")

	// ErrAdjustmentNotFound is returned when a referenced adjustment
	// doesn't exist.
	ErrAdjustmentNotFound = errors.New("adjustment not found")

	// ErrEmptyDraft is returned when a run produced no payroll lines and
	// there is nothing to save.
	ErrEmptyDraft = errors.New("reconciliation produced no payroll lines")
)

// IsNotFound returns true if the error indicates a missing payroll record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBatchNotFound) ||
		errors.Is(err, ErrLineNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrAdjustmentNotFound)
}
