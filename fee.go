package sponsorpay

import (
	"math"
	"math/big"
)

// FeeOptions are the inputs to ComputeFees besides the subtotal.
type FeeOptions struct {
	FeesWaived bool    // FeesWaived is set when the organizer is exempt from the platform fee.
	CoverFees  bool    // CoverFees is set when the sponsor pays the fee on top of the subtotal.
	Rate       FeeRate // Rate is the platform fee percentage.
}

// FeeBreakdown is the split of a payment between the platform and the
// organizer. All amounts are in cents.
//
// When the fee is not covered by the sponsor then
//
//	OrganizerNetCents + ApplicationFeeCents == SubtotalCents
//
// and when it is covered then
//
//	SponsorTotalCents == SubtotalCents + ApplicationFeeCents
type FeeBreakdown struct {
	SubtotalCents       int64
	ApplicationFeeCents int64
	OrganizerNetCents   int64
	SponsorTotalCents   int64

	// Covered is true when the fee was added to the sponsor's total, in which
	// case ApplicationFeeCents is charged as its own line item.
	Covered bool
}

// percentOf returns amount × rate / 100, rounded half up.
func percentOf(amount int64, rate FeeRate) int64 {
	const denom = 100 * feeRateScale

	if rate == 0 || amount == 0 {
		return 0
	}

	if amount <= math.MaxInt64/int64(rate)-denom {
		return (amount*int64(rate) + denom/2) / denom
	}

	n := new(big.Int).Mul(big.NewInt(amount), big.NewInt(int64(rate)))
	n.Add(n, big.NewInt(denom/2))
	return n.Quo(n, big.NewInt(denom)).Int64()
}

// ComputeFees computes the fee split for the given subtotal. The fee is
// rounded exactly once, and that same value is used for both the fee line
// item when the fee is covered, and the application fee reported to the
// provider. A subtotal of zero, or less, gives a breakdown with no fee.
func ComputeFees(subtotal int64, opts FeeOptions) FeeBreakdown {
	b := FeeBreakdown{
		SubtotalCents:     subtotal,
		OrganizerNetCents: subtotal,
		SponsorTotalCents: subtotal,
	}

	if opts.FeesWaived || subtotal <= 0 {
		return b
	}

	fee := percentOf(subtotal, opts.Rate)

	b.ApplicationFeeCents = fee

	if opts.CoverFees {
		b.SponsorTotalCents = subtotal + fee
		b.Covered = true
		return b
	}

	b.OrganizerNetCents = subtotal - fee
	return b
}
