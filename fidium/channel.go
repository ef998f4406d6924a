/*
Package fidium provides the Fidium partner-channel configuration of the
commission engine.

PURPOSE:
  The Fidium program delivers one extract per cycle and every row is used
  directly - no join step. The same order number can appear once per
  requested service, so the canonical entry is keyed by the (order number,
  requested service) composite. There is no upgrade concept: rate rows
  carry a single value.

SEE ALSO:
  - reconcile.go: The single-file front end
  - normal/: The sibling channel configuration
*/
package fidium

import (
	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// CHANNEL DESCRIPTOR
// =============================================================================

// Channel is the Fidium capability descriptor. Implements commission.Channel.
type Channel struct{}

var _ commission.Channel = Channel{}

func (Channel) ID() commission.ChannelID { return commission.ChannelFidium }

// HasUpgradeRates: Fidium has no migration concept.
func (Channel) HasUpgradeRates() bool { return false }

// EntryKey: one sale per requested service within an order.
func (Channel) EntryKey(orderNumber, planName string) string {
	return orderNumber + "||" + planName
}

// =============================================================================
// EXTRACT VOCABULARY
// =============================================================================

const (
	HeaderSalesRep          = "SALES_REP"
	HeaderRequestedServices = "REQUESTED_SERVICES"
	HeaderOrderNumber       = "ORDER_NUMBER"
	HeaderSubmissionDate    = "SUBMISSION_DATE"
	HeaderInstallDate       = "INSTALL_DATE"
	HeaderCustomerName      = "CUSTOMER_NAME"
	HeaderServiceAddress    = "SERVICE_ADDRESS"
	HeaderCity              = "CITY"
	HeaderState             = "STATE"
)
