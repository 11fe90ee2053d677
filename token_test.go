package sponsorpay

import (
	"context"
	"errors"
	"testing"
	"time"
)

type testRefresher struct {
	calls int
	tok   RefreshedToken
	err   error
}

func (r *testRefresher) RefreshToken(_ context.Context, _ string) (RefreshedToken, error) {
	r.calls++
	return r.tok, r.err
}

func squareOrganizer(id string, creds SquareCredentials) *Organizer {
	return &Organizer{
		ID: id,
		Profile: PaymentProfile{
			ActiveGateway: ProviderSquare,
			Square:        creds,
		},
	}
}

func Test_EnsureValidAccessToken(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	refreshed := RefreshedToken{
		AccessToken: "sq_new_access",
		ExpiresAt:   now.Add(30 * 24 * time.Hour),
	}

	tests := []struct {
		creds         SquareCredentials
		refresher     *testRefresher
		expectedToken string
		expectedCalls int
		expectedErr   error
	}{
		{
			SquareCredentials{MerchantID: "m_1", AccessToken: "sq_access", RefreshToken: "r", ExpiresAt: now.Add(time.Hour)},
			&testRefresher{tok: refreshed},
			"sq_access",
			0,
			nil,
		},
		{
			SquareCredentials{MerchantID: "m_1", AccessToken: "sq_access", RefreshToken: "r", ExpiresAt: now.Add(RefreshBuffer)},
			&testRefresher{tok: refreshed},
			"sq_new_access",
			1,
			nil,
		},
		{
			SquareCredentials{MerchantID: "m_1", AccessToken: "sq_access", RefreshToken: "r", ExpiresAt: now.Add(-time.Hour)},
			&testRefresher{tok: refreshed},
			"sq_new_access",
			1,
			nil,
		},
		{
			SquareCredentials{MerchantID: "m_1", AccessToken: "sq_access", ExpiresAt: now.Add(time.Minute)},
			&testRefresher{tok: refreshed},
			"",
			0,
			ErrNeedsReconnect,
		},
		{
			SquareCredentials{MerchantID: "m_1", AccessToken: "sq_access", RefreshToken: "r", ExpiresAt: now},
			&testRefresher{err: &ProviderError{Provider: ProviderSquare, Code: "invalid_grant"}},
			"",
			1,
			ErrRefreshFailed,
		},
		{
			SquareCredentials{},
			&testRefresher{tok: refreshed},
			"",
			0,
			ErrNotConnected,
		},
	}

	for i, test := range tests {
		store := newTestStore()
		store.putOrganizer(squareOrganizer("org_1", test.creds))

		m := NewTokenManager(store, test.refresher, nil, clock)

		tok, err := m.EnsureValidAccessToken(context.Background(), "org_1")

		if !errors.Is(err, test.expectedErr) {
			t.Errorf("tests[%d] - unexpected error, expected=%v, got=%v\n", i, test.expectedErr, err)
			continue
		}

		if tok != test.expectedToken {
			t.Errorf("tests[%d] - unexpected token, expected=%q, got=%q\n", i, test.expectedToken, tok)
		}

		if test.refresher.calls != test.expectedCalls {
			t.Errorf("tests[%d] - unexpected refresh calls, expected=%d, got=%d\n", i, test.expectedCalls, test.refresher.calls)
		}

		o, _, _ := store.Organizer(context.Background(), "org_1")

		if test.expectedErr != nil {
			if len(store.profileUpdates()) != 0 {
				t.Errorf("tests[%d] - expected no profile write on failure\n", i)
			}

			if o.Profile.Square != test.creds {
				t.Errorf("tests[%d] - expected credentials to be untouched\n", i)
			}
			continue
		}

		if test.expectedCalls == 0 {
			continue
		}

		if len(store.profileUpdates()) != 1 {
			t.Errorf("tests[%d] - expected exactly one profile write, got=%d\n", i, len(store.profileUpdates()))
		}

		if o.Profile.Square.AccessToken != "sq_new_access" || !o.Profile.Square.ExpiresAt.Equal(refreshed.ExpiresAt) {
			t.Errorf("tests[%d] - unexpected stored credentials %+v\n", i, o.Profile.Square)
		}

		// The provider did not rotate the refresh token, so the old one is
		// kept.
		if o.Profile.Square.RefreshToken != "r" {
			t.Errorf("tests[%d] - expected refresh token to be retained, got=%q\n", i, o.Profile.Square.RefreshToken)
		}
	}
}

func Test_EnsureValidAccessTokenRotates(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	store := newTestStore()
	store.putOrganizer(squareOrganizer("org_1", SquareCredentials{
		MerchantID:   "m_1",
		AccessToken:  "sq_access",
		RefreshToken: "r_old",
		ExpiresAt:    now,
	}))

	r := &testRefresher{
		tok: RefreshedToken{
			AccessToken:  "sq_new_access",
			RefreshToken: "r_new",
			ExpiresAt:    now.Add(time.Hour),
		},
	}

	m := NewTokenManager(store, r, nil, func() time.Time { return now })

	if _, err := m.EnsureValidAccessToken(context.Background(), "org_1"); err != nil {
		t.Fatal(err)
	}

	o, _, _ := store.Organizer(context.Background(), "org_1")

	if o.Profile.Square.RefreshToken != "r_new" {
		t.Errorf("expected rotated refresh token to be stored, got=%q\n", o.Profile.Square.RefreshToken)
	}

	if o.Profile.Square.MerchantID != "m_1" {
		t.Errorf("expected merchant id to be kept, got=%q\n", o.Profile.Square.MerchantID)
	}
}

func Test_EnsureValidAccessTokenUnknownOrganizer(t *testing.T) {
	m := NewTokenManager(newTestStore(), &testRefresher{}, nil, nil)

	if _, err := m.EnsureValidAccessToken(context.Background(), "org_404"); !errors.Is(err, ErrUnknownOrganizer) {
		t.Errorf("expected ErrUnknownOrganizer, got=%v\n", err)
	}
}
