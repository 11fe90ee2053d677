package sponsorpay

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RefreshBuffer is how long before expiry a Square access token is treated
// as expired.
const RefreshBuffer = 5 * time.Minute

// RefreshedToken is the result of refreshing a Square access token. The
// RefreshToken is empty if the provider did not rotate it.
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenRefresher refreshes Square access tokens with the platform's client
// credentials.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (RefreshedToken, error)
}

// TokenManager hands out valid Square access tokens for organizers,
// refreshing them when they are about to expire. Refreshes are not
// serialized, two concurrent refreshes for the same organizer will both go
// to the provider and the last write wins.
type TokenManager struct {
	organizers OrganizerStore
	refresher  TokenRefresher
	log        *slog.Logger
	now        func() time.Time
}

// NewTokenManager returns a TokenManager using the given store and
// refresher. If now is nil then time.Now is used.
func NewTokenManager(organizers OrganizerStore, refresher TokenRefresher, log *slog.Logger, now func() time.Time) *TokenManager {
	if log == nil {
		log = slog.Default()
	}

	if now == nil {
		now = time.Now
	}

	return &TokenManager{
		organizers: organizers,
		refresher:  refresher,
		log:        log,
		now:        now,
	}
}

// EnsureValidAccessToken returns an access token for the organizer's Square
// connection that is valid for at least RefreshBuffer. If the stored token is
// still valid then no call is made to Square. If a refresh fails then the
// stored credentials are left as they are, and ErrRefreshFailed is returned
// wrapping the provider error.
func (m *TokenManager) EnsureValidAccessToken(ctx context.Context, organizerID string) (string, error) {
	o, ok, err := m.organizers.Organizer(ctx, organizerID)

	if err != nil {
		return "", err
	}

	if !ok {
		return "", ErrUnknownOrganizer
	}

	creds := o.Profile.Square

	if !creds.Connected() {
		return "", ErrNotConnected
	}

	if m.now().Add(RefreshBuffer).Before(creds.ExpiresAt) {
		return creds.AccessToken, nil
	}

	if creds.RefreshToken == "" {
		return "", ErrNeedsReconnect
	}

	m.log.InfoContext(ctx, "refreshing square access token",
		slog.String("organizer_id", organizerID),
		slog.Time("expires_at", creds.ExpiresAt),
	)

	tok, err := m.refresher.RefreshToken(ctx, creds.RefreshToken)

	if err != nil {
		m.log.WarnContext(ctx, "square token refresh failed",
			slog.String("organizer_id", organizerID),
			slog.Any("error", err),
		)
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	creds.AccessToken = tok.AccessToken
	creds.ExpiresAt = tok.ExpiresAt

	if tok.RefreshToken != "" {
		creds.RefreshToken = tok.RefreshToken
	}

	if err := m.organizers.UpdateProfile(ctx, organizerID, ProfileUpdate{Square: &creds}); err != nil {
		return "", err
	}
	return creds.AccessToken, nil
}
