package sponsorpay

import "strings"

// Provider is a payment provider an organizer can connect to. The zero value
// denotes that no provider is active.
type Provider string

const (
	ProviderNone   Provider = ""
	ProviderStripe Provider = "stripe"
	ProviderSquare Provider = "square"
	ProviderPayPal Provider = "paypal"
)

// ParseProvider returns the Provider for the given name. Names are matched
// case insensitively, an empty name or "none" is ProviderNone. If the name is
// not recognised then ErrUnsupportedProvider is returned.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return ProviderNone, nil
	case "stripe":
		return ProviderStripe, nil
	case "square":
		return ProviderSquare, nil
	case "paypal":
		return ProviderPayPal, nil
	default:
		return ProviderNone, ErrUnsupportedProvider
	}
}

// Connectable returns whether or not an organizer can connect to the Provider
// via OAuth. PayPal is a recognised gateway, but has no connect flow.
func (p Provider) Connectable() bool { return p == ProviderStripe || p == ProviderSquare }

func (p Provider) String() string {
	if p == ProviderNone {
		return "none"
	}
	return string(p)
}
