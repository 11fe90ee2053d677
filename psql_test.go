package sponsorpay

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newStore(t *testing.T) (PSQL, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()

	if err != nil {
		t.Fatal(err)
	}
	return PSQL{
		DB: db,
	}, mock
}

func Test_PSQLOrganizer(t *testing.T) {
	store, mock := newStore(t)
	defer store.DB.Close()

	expires := time.Now().Add(time.Hour).UTC()

	tests := []struct {
		id         string
		expectedOk bool
		row        []driver.Value
	}{
		{
			"org_1",
			true,
			[]driver.Value{
				"org_1", true, "https://hooks.example.com/1", "square", true,
				nil, nil, nil, false, nil,
				"merchant_1", "sq_access", "sq_refresh", expires, time.Now(),
			},
		},
		{
			"org_2",
			false,
			[]driver.Value{},
		},
	}

	for i, test := range tests {
		rows := sqlmock.NewRows(organizerColumns)

		if len(test.row) > 0 {
			rows.AddRow(test.row...)
		}
		mock.ExpectQuery(`SELECT (.+) FROM organizers WHERE \(id = \$1\)`).WithArgs(test.id).WillReturnRows(rows)

		o, ok, err := store.Organizer(context.Background(), test.id)

		if err != nil {
			t.Fatalf("tests[%d] - unexpected error: %s\n", i, err)
		}

		if ok != test.expectedOk {
			t.Errorf("tests[%d] - expected organizer lookup to be ok=%v, it was not\n", i, test.expectedOk)
			continue
		}

		if !ok {
			continue
		}

		if !o.WaiveFees {
			t.Errorf("tests[%d] - expected organizer to have fees waived\n", i)
		}

		if o.Profile.ActiveGateway != ProviderSquare {
			t.Errorf("tests[%d] - unexpected active gateway, expected=%q, got=%q\n", i, ProviderSquare, o.Profile.ActiveGateway)
		}

		if o.Profile.Stripe.Connected() {
			t.Errorf("tests[%d] - expected stripe to not be connected\n", i)
		}

		if o.Profile.Square.RefreshToken != "sq_refresh" || !o.Profile.Square.ExpiresAt.Equal(expires) {
			t.Errorf("tests[%d] - unexpected square credentials %+v\n", i, o.Profile.Square)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func Test_PSQLUpdateProfile(t *testing.T) {
	store, mock := newStore(t)
	defer store.DB.Close()

	tests := []struct {
		u            ProfileUpdate
		expectedArgs []driver.Value
		affected     int64
		expectedErr  error
	}{
		{
			ProfileUpdate{
				ClearStripe:   true,
				ActiveGateway: providerPtr(ProviderNone),
			},
			[]driver.Value{nil, nil, nil, false, nil, "", "org_1"},
			1,
			nil,
		},
		{
			ProfileUpdate{
				SandboxMode: boolPtr(true),
			},
			[]driver.Value{true, "org_1"},
			0,
			ErrUnknownOrganizer,
		},
	}

	for i, test := range tests {
		mock.ExpectExec(`UPDATE organizers SET (.+) WHERE (.+)`).
			WithArgs(test.expectedArgs...).
			WillReturnResult(sqlmock.NewResult(0, test.affected))

		err := store.UpdateProfile(context.Background(), "org_1", test.u)

		if !errors.Is(err, test.expectedErr) {
			t.Errorf("tests[%d] - unexpected error, expected=%v, got=%v\n", i, test.expectedErr, err)
		}
	}

	if err := store.UpdateProfile(context.Background(), "org_1", ProfileUpdate{}); err != nil {
		t.Errorf("unexpected error for empty update: %s\n", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func Test_PSQLMarkPaid(t *testing.T) {
	store, mock := newStore(t)
	defer store.DB.Close()

	ids := []string{"sp_1", "sp_2"}

	// First settlement moves both rows, the replay matches nothing because
	// of the status guard.
	for i, affected := range []int64{2, 0} {
		mock.ExpectExec(`UPDATE sponsorships SET (.+) WHERE (.+)id IN(.+)status`).
			WithArgs("paid", "pi_123", "stripe", sqlmock.AnyArg(), "sp_1", "sp_2", "pending").
			WillReturnResult(sqlmock.NewResult(0, affected))

		n, err := store.MarkPaid(context.Background(), ids, "pi_123", ProviderStripe)

		if err != nil {
			t.Fatalf("tests[%d] - unexpected error: %s\n", i, err)
		}

		if n != affected {
			t.Errorf("tests[%d] - unexpected count, expected=%d, got=%d\n", i, affected, n)
		}
	}

	n, err := store.MarkPaid(context.Background(), nil, "pi_123", ProviderStripe)

	if err != nil || n != 0 {
		t.Errorf("expected no-op for no ids, got n=%d err=%v\n", n, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func Test_PSQLSponsorships(t *testing.T) {
	store, mock := newStore(t)
	defer store.DB.Close()

	rows := sqlmock.NewRows(sponsorshipColumns).
		AddRow("sp_1", "pkg_gold", "org_1", int64(50000), "paid", "pi_123", "stripe", false, time.Now()).
		AddRow("sp_2", "pkg_silver", "org_1", int64(25000), "pending", nil, nil, true, nil)

	mock.ExpectQuery(`SELECT (.+) FROM sponsorships WHERE (.+)id IN`).
		WithArgs("sp_1", "sp_2").
		WillReturnRows(rows)

	ss, err := store.Sponsorships(context.Background(), []string{"sp_1", "sp_2"})

	if err != nil {
		t.Fatal(err)
	}

	if len(ss) != 2 {
		t.Fatalf("unexpected sponsorship count, expected=%d, got=%d\n", 2, len(ss))
	}

	if ss[0].Status != SponsorshipPaid || ss[0].PaymentMethod != ProviderStripe {
		t.Errorf("unexpected first sponsorship %+v\n", ss[0])
	}

	if ss[1].Status != SponsorshipPending || ss[1].PaymentID != "" || !ss[1].IsTest {
		t.Errorf("unexpected second sponsorship %+v\n", ss[1])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
