package sponsorpay

import (
	"context"
	"time"
)

// StripeCredentials are the credentials received from Stripe Connect when an
// organizer connects their Stripe account.
type StripeCredentials struct {
	AccountID    string // AccountID is the connected account charges are sent to.
	AccessToken  string
	RefreshToken string
	Livemode     bool
	ConnectedAt  time.Time
}

// SquareCredentials are the credentials received from Square OAuth when an
// organizer connects their Square account. Square access tokens are short
// lived, and are refreshed via the TokenManager.
type SquareCredentials struct {
	MerchantID   string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	ConnectedAt  time.Time
}

// PaymentProfile is the payment subdocument of an organizer. Only one of the
// provider credential sets is active at a time, denoted by ActiveGateway.
type PaymentProfile struct {
	ActiveGateway Provider
	SandboxMode   bool
	Stripe        StripeCredentials
	Square        SquareCredentials
}

// Organizer is the organizer as seen by this package. The organizer itself is
// owned by the OrganizerStore, only the PaymentProfile is ever written to.
type Organizer struct {
	ID                     string
	WaiveFees              bool   // WaiveFees exempts the organizer from the platform fee.
	NotificationWebhookURL string // NotificationWebhookURL receives settlement notifications, if set.
	Profile                PaymentProfile
}

// ProfileUpdate is a partial update to a PaymentProfile. Only the fields that
// are set are written, everything else is left as is.
type ProfileUpdate struct {
	ActiveGateway *Provider
	SandboxMode   *bool
	Stripe        *StripeCredentials // Stripe replaces the Stripe credentials, if not nil.
	Square        *SquareCredentials // Square replaces the Square credentials, if not nil.
	ClearStripe   bool
	ClearSquare   bool
}

// ConnectionState is the state of the connection between an organizer and a
// provider.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnected    ConnectionState = "connected"
	StateNeedsRefresh ConnectionState = "needs_refresh"
)

// OrganizerStore provides access to the organizers that payments are made
// to.
type OrganizerStore interface {
	// Organizer returns the organizer of the given ID. Whether or not the
	// organizer could be found is denoted by the returned bool value.
	Organizer(ctx context.Context, id string) (*Organizer, bool, error)

	// UpdateProfile applies the given ProfileUpdate to the organizer's
	// PaymentProfile as a single write.
	UpdateProfile(ctx context.Context, id string, u ProfileUpdate) error
}

// Connected returns whether or not Stripe credentials have been stored.
func (c StripeCredentials) Connected() bool { return c.AccountID != "" }

// Connected returns whether or not Square credentials have been stored.
func (c SquareCredentials) Connected() bool { return c.MerchantID != "" || c.AccessToken != "" }

// Connected returns whether or not the profile holds credentials for the
// given provider.
func (p PaymentProfile) Connected(provider Provider) bool {
	switch provider {
	case ProviderStripe:
		return p.Stripe.Connected()
	case ProviderSquare:
		return p.Square.Connected()
	default:
		return false
	}
}

// State returns the ConnectionState of the profile for the given provider at
// the given time. Only Square credentials can need refreshing.
func (p PaymentProfile) State(provider Provider, now time.Time) ConnectionState {
	if !p.Connected(provider) {
		return StateDisconnected
	}

	if provider == ProviderSquare && !now.Add(RefreshBuffer).Before(p.Square.ExpiresAt) {
		return StateNeedsRefresh
	}
	return StateConnected
}

// Apply applies the given ProfileUpdate to the profile. This is used by
// stores that hold the profile as a whole.
func (p *PaymentProfile) Apply(u ProfileUpdate) {
	if u.ClearStripe {
		p.Stripe = StripeCredentials{}
	}

	if u.ClearSquare {
		p.Square = SquareCredentials{}
	}

	if u.Stripe != nil {
		p.Stripe = *u.Stripe
	}

	if u.Square != nil {
		p.Square = *u.Square
	}

	if u.ActiveGateway != nil {
		p.ActiveGateway = *u.ActiveGateway
	}

	if u.SandboxMode != nil {
		p.SandboxMode = *u.SandboxMode
	}
}

func providerPtr(p Provider) *Provider { return &p }

func boolPtr(b bool) *bool { return &b }
