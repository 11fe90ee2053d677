package sponsorpay

import (
	"strings"
	"time"

	"github.com/stripe/stripe-go/v72"
)

// Environment is the provider environment the platform runs against.
type Environment string

const (
	Sandbox    Environment = "sandbox"
	Production Environment = "production"

	squareSandboxURL    = "https://connect.squareupsandbox.com"
	squareProductionURL = "https://connect.squareup.com"

	// SquareVersion is the Square API version requests are pinned to.
	SquareVersion = "2024-01-18"

	// DefaultProviderTimeout bounds every outbound call to a provider.
	DefaultProviderTimeout = 10 * time.Second
)

// StripeConfig holds the platform's Stripe Connect credentials. The secret
// key doubles as the OAuth client secret.
type StripeConfig struct {
	ClientID  string
	SecretKey string

	// APIURL and ConnectURL override the Stripe endpoints, these default to
	// the stripe-go values.
	APIURL     string
	ConnectURL string
}

// SquareConfig holds the platform's Square OAuth application credentials.
type SquareConfig struct {
	ClientID     string
	ClientSecret string

	// BaseURL overrides the Square endpoint, by default this is derived from
	// the Environment.
	BaseURL string
	Version string
}

// Config is the configuration of the payment flows.
type Config struct {
	PlatformFeePercent FeeRate
	Environment        Environment

	Stripe StripeConfig
	Square SquareConfig

	// RedirectBaseURL is the public base URL the provider OAuth callbacks are
	// mounted under, for example https://api.example.com/payments. If empty
	// then the redirect URL registered with the provider is used.
	RedirectBaseURL string

	// StateSecret signs OAuth state tokens when set.
	StateSecret []byte

	ProviderTimeout time.Duration
}

func (c Config) stripeAPIURL() string {
	if c.Stripe.APIURL != "" {
		return strings.TrimSuffix(c.Stripe.APIURL, "/")
	}
	return stripe.APIURL
}

func (c Config) stripeConnectURL() string {
	if c.Stripe.ConnectURL != "" {
		return strings.TrimSuffix(c.Stripe.ConnectURL, "/")
	}
	return stripe.ConnectURL
}

func (c Config) squareBaseURL() string {
	if c.Square.BaseURL != "" {
		return strings.TrimSuffix(c.Square.BaseURL, "/")
	}

	if c.Environment == Production {
		return squareProductionURL
	}
	return squareSandboxURL
}

func (c Config) squareVersion() string {
	if c.Square.Version != "" {
		return c.Square.Version
	}
	return SquareVersion
}

func (c Config) providerTimeout() time.Duration {
	if c.ProviderTimeout > 0 {
		return c.ProviderTimeout
	}
	return DefaultProviderTimeout
}

func (c Config) redirectURL(p Provider) string {
	if c.RedirectBaseURL == "" {
		return ""
	}
	return strings.TrimSuffix(c.RedirectBaseURL, "/") + "/" + string(p) + "/callback"
}
