package sponsorpay

import "net/http"

// GatewayClientFactory creates the clients used to charge on behalf of an
// organizer. A new client is created for every call, so the credentials of
// one organizer never leak into the client of another.
type GatewayClientFactory interface {
	Stripe(creds StripeCredentials) StripeGateway
	Square(accessToken string) SquareGateway
}

type gatewayFactory struct {
	hc  *http.Client
	cfg Config
}

// NewGatewayClientFactory returns the GatewayClientFactory that talks to the
// real providers using the given http.Client.
func NewGatewayClientFactory(hc *http.Client, cfg Config) GatewayClientFactory {
	return &gatewayFactory{
		hc:  hc,
		cfg: cfg,
	}
}

// Stripe returns a gateway creating destination charges for the connected
// account. Requests are authenticated with the platform's secret key.
func (f *gatewayFactory) Stripe(creds StripeCredentials) StripeGateway {
	return &stripeAccountGateway{
		client: NewClient(f.hc, f.cfg.stripeAPIURL(), f.cfg.Stripe.SecretKey),
		creds:  creds,
	}
}

// Square returns a gateway creating payments with the merchant's access
// token.
func (f *gatewayFactory) Square(accessToken string) SquareGateway {
	return &squareMerchantGateway{
		rest: newSquareRest(f.hc, f.cfg.squareBaseURL(), f.cfg.squareVersion()).SetAuthToken(accessToken),
	}
}
