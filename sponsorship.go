package sponsorpay

import (
	"context"
	"time"
)

// SponsorshipStatus is the status of a Sponsorship. The status only ever
// moves forward, from pending to paid to branding-submitted.
type SponsorshipStatus string

const (
	SponsorshipPending           SponsorshipStatus = "pending"
	SponsorshipPaid              SponsorshipStatus = "paid"
	SponsorshipBrandingSubmitted SponsorshipStatus = "branding-submitted"
)

// Sponsorship is a sponsor's purchase of a package from an organizer.
type Sponsorship struct {
	ID            string
	PackageID     string
	OrganizerID   string
	Amount        int64 // Amount is in cents.
	Status        SponsorshipStatus
	PaymentID     string
	PaymentMethod Provider
	IsTest        bool
	PaidAt        time.Time
}

// SponsorshipStore provides access to the sponsorships being paid for. This
// package never creates or deletes sponsorships, it only marks them as paid.
type SponsorshipStore interface {
	// MarkPaid sets the status of every pending sponsorship in the given set
	// of IDs to paid in a single atomic write, recording the payment ID and
	// method. Sponsorships that are not pending are left untouched. The
	// number of sponsorships updated is returned.
	MarkPaid(ctx context.Context, ids []string, paymentID string, method Provider) (int64, error)

	// Sponsorships returns the sponsorships of the given IDs. IDs that cannot
	// be found are skipped.
	Sponsorships(ctx context.Context, ids []string) ([]*Sponsorship, error)
}
