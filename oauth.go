package sponsorpay

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v72"
	"golang.org/x/oauth2"
)

func stripeOAuthConfig(cfg Config) *oauth2.Config {
	connect := cfg.stripeConnectURL()

	return &oauth2.Config{
		ClientID:     cfg.Stripe.ClientID,
		ClientSecret: cfg.Stripe.SecretKey,
		Endpoint: oauth2.Endpoint{
			AuthURL:   connect + "/oauth/authorize",
			TokenURL:  connect + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: cfg.redirectURL(ProviderStripe),
		Scopes:      []string{"read_write"},
	}
}

func squareOAuthConfig(cfg Config) *oauth2.Config {
	base := cfg.squareBaseURL()

	return &oauth2.Config{
		ClientID:     cfg.Square.ClientID,
		ClientSecret: cfg.Square.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/oauth2/authorize",
			TokenURL:  base + "/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: cfg.redirectURL(ProviderSquare),
		Scopes:      SquareScopes,
	}
}

// authorizeURL returns the URL the organizer is sent to in order to grant
// the platform access to their account with the given provider.
func authorizeURL(cfg Config, p Provider, state string) (string, error) {
	switch p {
	case ProviderStripe:
		if cfg.Stripe.ClientID == "" {
			return "", ErrConfiguration
		}
		return stripeOAuthConfig(cfg).AuthCodeURL(state), nil
	case ProviderSquare:
		if cfg.Square.ClientID == "" {
			return "", ErrConfiguration
		}
		return squareOAuthConfig(cfg).AuthCodeURL(state, oauth2.SetAuthURLParam("session", "false")), nil
	default:
		return "", ErrUnsupportedProvider
	}
}

func oauthError(p Provider, err error) error {
	var rerr *oauth2.RetrieveError

	if errors.As(err, &rerr) {
		perr := &ProviderError{
			Provider: p,
			Code:     rerr.ErrorCode,
			Message:  rerr.ErrorDescription,
			Raw:      rerr.Body,
		}

		if rerr.Response != nil {
			perr.Status = rerr.Response.StatusCode
		}

		if perr.Message == "" {
			perr.Message = "token exchange failed"
		}
		return perr
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	var perr *ProviderError

	if errors.As(err, &perr) {
		return err
	}
	return transportError(p, err)
}

// exchangeStripeCode exchanges the authorization code from a Stripe Connect
// callback for the connected account's tokens. The platform's secret key is
// used as the client secret.
func exchangeStripeCode(ctx context.Context, hc *http.Client, cfg Config, code string) (*stripe.OAuthToken, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)

	tok, err := stripeOAuthConfig(cfg).Exchange(ctx, code)

	if err != nil {
		return nil, oauthError(ProviderStripe, err)
	}

	accountID, _ := tok.Extra("stripe_user_id").(string)

	if accountID == "" {
		return nil, &ProviderError{
			Provider: ProviderStripe,
			Code:     "malformed_response",
			Message:  "no stripe_user_id in token response",
		}
	}

	livemode, _ := tok.Extra("livemode").(bool)
	scope, _ := tok.Extra("scope").(string)

	return &stripe.OAuthToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Livemode:     livemode,
		Scope:        stripe.OAuthScopeType(scope),
		StripeUserID: accountID,
		TokenType:    stripe.OAuthTokenType(tok.TokenType),
	}, nil
}
