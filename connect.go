package sponsorpay

import (
	"context"
	"log/slog"
)

// CallbackResult is the result of a successful OAuth callback.
type CallbackResult struct {
	OrganizerID string
	Provider    Provider
	AccountID   string // AccountID is the Stripe account, or Square merchant that was connected.
}

// ConnectionStatus is the status of an organizer's connection to a
// provider.
type ConnectionStatus struct {
	Provider      Provider
	State         ConnectionState
	ActiveGateway Provider
}

// Connected returns whether or not the organizer has credentials stored for
// the provider.
func (s ConnectionStatus) Connected() bool { return s.State != StateDisconnected }

// CallbackDenied returns the error for an OAuth callback where the provider
// sent back an error instead of an authorization code, for example when the
// organizer declined access.
func CallbackDenied(p Provider, code, description string) error {
	if description == "" {
		description = "authorization was not granted"
	}

	return &ProviderError{
		Provider: p,
		Code:     code,
		Message:  description,
	}
}

// BeginConnect returns the URL of the provider's OAuth authorize page the
// organizer should be sent to. The organizer's ID is carried through the
// redirect in the state parameter.
func (s *Service) BeginConnect(ctx context.Context, p Provider, organizerID string) (string, error) {
	if !p.Connectable() {
		return "", ErrUnsupportedProvider
	}

	state, err := s.state.Encode(organizerID)

	if err != nil {
		return "", err
	}

	url, err := authorizeURL(s.cfg, p, state)

	if err != nil {
		return "", err
	}

	s.log.InfoContext(ctx, "beginning gateway connection",
		slog.String("provider", p.String()),
		slog.String("organizer_id", organizerID),
	)
	return url, nil
}

// HandleCallback completes the OAuth flow for the given provider. The state
// is decoded to find the organizer, and the code is exchanged for the
// organizer's credentials. Only once the exchange succeeds are the
// credentials stored, and the provider made the organizer's active gateway.
func (s *Service) HandleCallback(ctx context.Context, p Provider, code, state string) (CallbackResult, error) {
	var res CallbackResult

	if !p.Connectable() {
		return res, ErrUnsupportedProvider
	}

	st, err := s.state.Decode(state)

	if err != nil {
		s.log.WarnContext(ctx, "invalid oauth state", slog.String("provider", p.String()))
		return res, err
	}

	res.OrganizerID = st.UserID
	res.Provider = p

	if code == "" {
		return res, &ProviderError{
			Provider: p,
			Code:     "invalid_request",
			Message:  "missing authorization code",
		}
	}

	if _, ok, err := s.organizers.Organizer(ctx, st.UserID); err != nil || !ok {
		if err == nil {
			err = ErrUnknownOrganizer
		}
		return res, err
	}

	var u ProfileUpdate

	switch p {
	case ProviderStripe:
		if s.cfg.Stripe.ClientID == "" || s.cfg.Stripe.SecretKey == "" {
			return res, ErrConfiguration
		}

		tok, err := exchangeStripeCode(ctx, s.hc, s.cfg, code)

		if err != nil {
			return res, err
		}

		res.AccountID = tok.StripeUserID

		u = ProfileUpdate{
			ActiveGateway: providerPtr(ProviderStripe),
			SandboxMode:   boolPtr(!tok.Livemode),
			Stripe: &StripeCredentials{
				AccountID:    tok.StripeUserID,
				AccessToken:  tok.AccessToken,
				RefreshToken: tok.RefreshToken,
				Livemode:     tok.Livemode,
				ConnectedAt:  s.now(),
			},
		}
	case ProviderSquare:
		if s.cfg.Square.ClientID == "" || s.cfg.Square.ClientSecret == "" {
			return res, ErrConfiguration
		}

		tok, err := s.square.ExchangeCode(ctx, code, s.cfg.redirectURL(ProviderSquare))

		if err != nil {
			return res, err
		}

		res.AccountID = tok.MerchantID

		u = ProfileUpdate{
			ActiveGateway: providerPtr(ProviderSquare),
			SandboxMode:   boolPtr(s.cfg.Environment != Production),
			Square: &SquareCredentials{
				MerchantID:   tok.MerchantID,
				AccessToken:  tok.AccessToken,
				RefreshToken: tok.RefreshToken,
				ExpiresAt:    tok.ExpiresAt,
				ConnectedAt:  s.now(),
			},
		}
	}

	if err := s.organizers.UpdateProfile(ctx, st.UserID, u); err != nil {
		return res, err
	}

	s.log.InfoContext(ctx, "gateway connected",
		slog.String("provider", p.String()),
		slog.String("organizer_id", st.UserID),
		slog.String("account_id", res.AccountID),
	)
	return res, nil
}

// Disconnect removes the organizer's credentials for the given provider. The
// provider is asked to revoke the platform's access first, if that fails
// then the failure is logged and the credentials are removed anyway. If no
// credentials are stored then nothing happens.
func (s *Service) Disconnect(ctx context.Context, p Provider, organizerID string) error {
	if !p.Connectable() {
		return ErrUnsupportedProvider
	}

	o, ok, err := s.organizers.Organizer(ctx, organizerID)

	if err != nil {
		return err
	}

	if !ok {
		return ErrUnknownOrganizer
	}

	if !o.Profile.Connected(p) {
		return nil
	}

	u := ProfileUpdate{}

	switch p {
	case ProviderStripe:
		u.ClearStripe = true

		if s.cfg.Stripe.ClientID != "" {
			err = s.connect.Deauthorize(ctx, s.cfg.Stripe.ClientID, o.Profile.Stripe.AccountID)
		}
	case ProviderSquare:
		u.ClearSquare = true

		if o.Profile.Square.AccessToken != "" {
			err = s.square.Revoke(ctx, o.Profile.Square.AccessToken)
		}
	}

	if err != nil {
		s.log.WarnContext(ctx, "failed to revoke gateway access",
			slog.String("provider", p.String()),
			slog.String("organizer_id", organizerID),
			slog.Any("error", err),
		)
	}

	if o.Profile.ActiveGateway == p {
		u.ActiveGateway = providerPtr(ProviderNone)
	}

	if err := s.organizers.UpdateProfile(ctx, organizerID, u); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "gateway disconnected",
		slog.String("provider", p.String()),
		slog.String("organizer_id", organizerID),
	)
	return nil
}

// ConnectionStatus returns the status of the organizer's connection to the
// given provider.
func (s *Service) ConnectionStatus(ctx context.Context, p Provider, organizerID string) (ConnectionStatus, error) {
	status := ConnectionStatus{
		Provider: p,
		State:    StateDisconnected,
	}

	if !p.Connectable() {
		return status, ErrUnsupportedProvider
	}

	o, ok, err := s.organizers.Organizer(ctx, organizerID)

	if err != nil {
		return status, err
	}

	if !ok {
		return status, ErrUnknownOrganizer
	}

	status.State = o.Profile.State(p, s.now())
	status.ActiveGateway = o.Profile.ActiveGateway
	return status, nil
}
