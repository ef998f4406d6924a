/*
Package normal provides the normal-channel configuration of the commission
engine.

PURPOSE:
  The normal sales program delivers three extracts per cycle: new installs,
  a detail file carrying the customer/order facts, and migrations. Rows
  join across files by order number (inner join - unmatched rows on either
  side are dropped), migrations are tagged as upgrades, and the canonical
  entry is keyed by order number alone. Everything after matching runs on
  the shared engine in the payroll package.

KEY DIFFERENCES FROM FIDIUM:
  1. Three extracts with a join step, not one file used directly
  2. Rate rows carry an upgrade variant selected by the originating file
  3. One sale per order: the identity key is the order number

SEE ALSO:
  - reconcile.go: The three-file matching front end
  - fidium/: The sibling channel configuration
*/
package normal

import (
	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// CHANNEL DESCRIPTOR
// =============================================================================

// Channel is the normal-channel capability descriptor.
// Implements commission.Channel.
type Channel struct{}

var _ commission.Channel = Channel{}

func (Channel) ID() commission.ChannelID { return commission.ChannelNormal }

// HasUpgradeRates: normal rate rows carry a second value for migrations.
func (Channel) HasUpgradeRates() bool { return true }

// EntryKey: one sale per order, so the order number is the identity key.
func (Channel) EntryKey(orderNumber, _ string) string { return orderNumber }

// =============================================================================
// EXTRACT VOCABULARY
// =============================================================================

// Header names as delivered by the upstream files. The new-installs and
// migrations extracts share one layout; the detail extract has its own.
const (
	// New-installs / migrations extracts.
	HeaderOrderID  = "Order Id"
	HeaderPlanName = "Plan Name"
	HeaderPayout   = "Payout"

	// Detail extract.
	HeaderOrderNumber    = "Order Number"
	HeaderInternetSpeed  = "Internet Speed"
	HeaderSeller         = "Agent Seller Information"
	HeaderCustomerName   = "Customer Name"
	HeaderStreetAddress  = "Customer Street Address"
	HeaderCity           = "Customer City"
	HeaderState          = "Customer State"
	HeaderSubmissionDate = "Order Submission Date"
	HeaderInstallDate    = "Install Date"
)
