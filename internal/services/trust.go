package services

import "github.com/bazaarhq/marketplace-api/internal/platform/money"

// TrustedFees carries verified amounts extracted from upstream processor
// events. Every field is presence-aware: an explicit zero here must beat any
// positive value from a lower-precedence source.
type TrustedFees struct {
	ShippingTotal money.Cents
	DiscountTotal money.Cents
	TaxTotal      money.Cents
	PlatformFee   money.Cents
	ProcessorFee  money.Cents
}

// Empty reports whether no trusted amount is present at all.
func (f TrustedFees) Empty() bool {
	return !f.ShippingTotal.Set() && !f.DiscountTotal.Set() && !f.TaxTotal.Set() &&
		!f.PlatformFee.Set() && !f.ProcessorFee.Set()
}

// SystemGrant is the capability token authorising a write to set authoritative
// fee values. Only the webhook ingestion boundary and internal backfills
// construct one; everything else passes the zero value. Fields are unexported
// so a grant cannot be forged by populating a struct literal elsewhere.
type SystemGrant struct {
	trusted bool
	fees    TrustedFees
}

// NewSystemGrant mints a trusted grant carrying verified fee amounts.
func NewSystemGrant(fees TrustedFees) SystemGrant {
	return SystemGrant{trusted: true, fees: fees}
}

// NoGrant is the untrusted zero grant used by client-originated writes.
func NoGrant() SystemGrant { return SystemGrant{} }

// Trusted reports whether the write is system-trusted.
func (g SystemGrant) Trusted() bool { return g.trusted }

// Fees returns the trusted amounts. Always empty on an untrusted grant.
func (g SystemGrant) Fees() TrustedFees {
	if !g.trusted {
		return TrustedFees{}
	}
	return g.fees
}
