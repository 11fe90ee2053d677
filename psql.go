package sponsorpay

import (
	"context"
	"database/sql"
	"time"

	"github.com/andrewpillar/query"
)

// Schema is the schema PSQL expects. Only the columns that this package
// reads, or writes are listed, the tables may have more.
const Schema = `CREATE TABLE IF NOT EXISTS organizers (
    id                       VARCHAR NOT NULL UNIQUE,
    waive_fees               BOOLEAN NOT NULL DEFAULT FALSE,
    notification_webhook_url VARCHAR NULL,
    active_gateway           VARCHAR NOT NULL DEFAULT '',
    sandbox_mode             BOOLEAN NOT NULL DEFAULT FALSE,
    stripe_account_id        VARCHAR NULL,
    stripe_access_token      VARCHAR NULL,
    stripe_refresh_token     VARCHAR NULL,
    stripe_livemode          BOOLEAN NOT NULL DEFAULT FALSE,
    stripe_connected_at      TIMESTAMP NULL,
    square_merchant_id       VARCHAR NULL,
    square_access_token      VARCHAR NULL,
    square_refresh_token     VARCHAR NULL,
    square_expires_at        TIMESTAMP NULL,
    square_connected_at      TIMESTAMP NULL
);

CREATE TABLE IF NOT EXISTS sponsorships (
    id             VARCHAR NOT NULL UNIQUE,
    package_id     VARCHAR NOT NULL,
    organizer_id   VARCHAR NOT NULL,
    amount         BIGINT NOT NULL,
    status         VARCHAR NOT NULL DEFAULT 'pending',
    payment_id     VARCHAR NULL,
    payment_method VARCHAR NULL,
    is_test        BOOLEAN NOT NULL DEFAULT FALSE,
    paid_at        TIMESTAMP NULL
);`

// PSQL provides a way of storing organizers and sponsorships within
// PostgreSQL, using the tables in Schema. Queries are built with numbered
// placeholders, so this works with SQLite too.
type PSQL struct {
	*sql.DB
}

var (
	_ OrganizerStore   = (*PSQL)(nil)
	_ SponsorshipStore = (*PSQL)(nil)

	organizerTable   = "organizers"
	sponsorshipTable = "sponsorships"

	organizerColumns = []string{
		"id",
		"waive_fees",
		"notification_webhook_url",
		"active_gateway",
		"sandbox_mode",
		"stripe_account_id",
		"stripe_access_token",
		"stripe_refresh_token",
		"stripe_livemode",
		"stripe_connected_at",
		"square_merchant_id",
		"square_access_token",
		"square_refresh_token",
		"square_expires_at",
		"square_connected_at",
	}

	sponsorshipColumns = []string{
		"id",
		"package_id",
		"organizer_id",
		"amount",
		"status",
		"payment_id",
		"payment_method",
		"is_test",
		"paid_at",
	}
)

// Migrate creates the tables in Schema if they do not exist.
func (p PSQL) Migrate(ctx context.Context) error {
	_, err := p.ExecContext(ctx, Schema)
	return err
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// Organizer will get the organizer of the given ID from the organizers
// table, along with whether or not the organizer could be found.
func (p PSQL) Organizer(ctx context.Context, id string) (*Organizer, bool, error) {
	q := query.Select(
		query.Columns(organizerColumns...),
		query.From(organizerTable),
		query.Where("id", "=", query.Arg(id)),
	)

	o := &Organizer{}

	var (
		webhook sql.NullString
		gateway string

		stripeAccount, stripeAccess, stripeRefresh sql.NullString
		stripeConnected                            sql.NullTime

		squareMerchant, squareAccess, squareRefresh sql.NullString
		squareExpires, squareConnected              sql.NullTime
	)

	row := p.QueryRowContext(ctx, q.Build(), q.Args()...)

	err := row.Scan(
		&o.ID,
		&o.WaiveFees,
		&webhook,
		&gateway,
		&o.Profile.SandboxMode,
		&stripeAccount,
		&stripeAccess,
		&stripeRefresh,
		&o.Profile.Stripe.Livemode,
		&stripeConnected,
		&squareMerchant,
		&squareAccess,
		&squareRefresh,
		&squareExpires,
		&squareConnected,
	)

	if err != nil {
		if err != sql.ErrNoRows {
			return nil, false, err
		}
		return nil, false, nil
	}

	o.NotificationWebhookURL = webhook.String
	o.Profile.ActiveGateway = Provider(gateway)

	o.Profile.Stripe.AccountID = stripeAccount.String
	o.Profile.Stripe.AccessToken = stripeAccess.String
	o.Profile.Stripe.RefreshToken = stripeRefresh.String
	o.Profile.Stripe.ConnectedAt = stripeConnected.Time

	o.Profile.Square.MerchantID = squareMerchant.String
	o.Profile.Square.AccessToken = squareAccess.String
	o.Profile.Square.RefreshToken = squareRefresh.String
	o.Profile.Square.ExpiresAt = squareExpires.Time
	o.Profile.Square.ConnectedAt = squareConnected.Time
	return o, true, nil
}

func profileSets(u ProfileUpdate) []query.Option {
	opts := make([]query.Option, 0)

	if u.ClearStripe && u.Stripe == nil {
		opts = append(opts,
			query.Set("stripe_account_id", query.Arg(nil)),
			query.Set("stripe_access_token", query.Arg(nil)),
			query.Set("stripe_refresh_token", query.Arg(nil)),
			query.Set("stripe_livemode", query.Arg(false)),
			query.Set("stripe_connected_at", query.Arg(nil)),
		)
	}

	if u.ClearSquare && u.Square == nil {
		opts = append(opts,
			query.Set("square_merchant_id", query.Arg(nil)),
			query.Set("square_access_token", query.Arg(nil)),
			query.Set("square_refresh_token", query.Arg(nil)),
			query.Set("square_expires_at", query.Arg(nil)),
			query.Set("square_connected_at", query.Arg(nil)),
		)
	}

	if c := u.Stripe; c != nil {
		opts = append(opts,
			query.Set("stripe_account_id", query.Arg(nullString(c.AccountID))),
			query.Set("stripe_access_token", query.Arg(nullString(c.AccessToken))),
			query.Set("stripe_refresh_token", query.Arg(nullString(c.RefreshToken))),
			query.Set("stripe_livemode", query.Arg(c.Livemode)),
			query.Set("stripe_connected_at", query.Arg(nullTime(c.ConnectedAt))),
		)
	}

	if c := u.Square; c != nil {
		opts = append(opts,
			query.Set("square_merchant_id", query.Arg(nullString(c.MerchantID))),
			query.Set("square_access_token", query.Arg(nullString(c.AccessToken))),
			query.Set("square_refresh_token", query.Arg(nullString(c.RefreshToken))),
			query.Set("square_expires_at", query.Arg(nullTime(c.ExpiresAt))),
			query.Set("square_connected_at", query.Arg(nullTime(c.ConnectedAt))),
		)
	}

	if u.ActiveGateway != nil {
		opts = append(opts, query.Set("active_gateway", query.Arg(string(*u.ActiveGateway))))
	}

	if u.SandboxMode != nil {
		opts = append(opts, query.Set("sandbox_mode", query.Arg(*u.SandboxMode)))
	}
	return opts
}

// UpdateProfile writes the given ProfileUpdate to the organizer's row in a
// single UPDATE. If no row was updated then ErrUnknownOrganizer is returned.
func (p PSQL) UpdateProfile(ctx context.Context, id string, u ProfileUpdate) error {
	opts := profileSets(u)

	if len(opts) == 0 {
		return nil
	}

	opts = append(opts, query.Where("id", "=", query.Arg(id)))

	q := query.Update(organizerTable, opts...)

	res, err := p.ExecContext(ctx, q.Build(), q.Args()...)

	if err != nil {
		return err
	}

	n, err := res.RowsAffected()

	if err != nil {
		return err
	}

	if n == 0 {
		return ErrUnknownOrganizer
	}
	return nil
}

func idList(ids []string) []interface{} {
	vals := make([]interface{}, 0, len(ids))

	for _, id := range ids {
		vals = append(vals, id)
	}
	return vals
}

// MarkPaid moves the pending sponsorships of the given IDs to paid in a
// single UPDATE. Sponsorships that are not pending are not matched by the
// UPDATE, so calling this again for the same IDs updates nothing.
func (p PSQL) MarkPaid(ctx context.Context, ids []string, paymentID string, method Provider) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	q := query.Update(
		sponsorshipTable,
		query.Set("status", query.Arg(string(SponsorshipPaid))),
		query.Set("payment_id", query.Arg(paymentID)),
		query.Set("payment_method", query.Arg(string(method))),
		query.Set("paid_at", query.Arg(time.Now().UTC())),
		query.Where("id", "IN", query.List(idList(ids)...)),
		query.Where("status", "=", query.Arg(string(SponsorshipPending))),
	)

	res, err := p.ExecContext(ctx, q.Build(), q.Args()...)

	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Sponsorships returns the sponsorships of the given IDs from the
// sponsorships table.
func (p PSQL) Sponsorships(ctx context.Context, ids []string) ([]*Sponsorship, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	q := query.Select(
		query.Columns(sponsorshipColumns...),
		query.From(sponsorshipTable),
		query.Where("id", "IN", query.List(idList(ids)...)),
	)

	rows, err := p.QueryContext(ctx, q.Build(), q.Args()...)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	ss := make([]*Sponsorship, 0, len(ids))

	for rows.Next() {
		var (
			status            string
			paymentID, method sql.NullString
			paidAt            sql.NullTime
		)

		s := &Sponsorship{}

		err := rows.Scan(
			&s.ID,
			&s.PackageID,
			&s.OrganizerID,
			&s.Amount,
			&status,
			&paymentID,
			&method,
			&s.IsTest,
			&paidAt,
		)

		if err != nil {
			return nil, err
		}

		s.Status = SponsorshipStatus(status)
		s.PaymentID = paymentID.String
		s.PaymentMethod = Provider(method.String)
		s.PaidAt = paidAt.Time
		ss = append(ss, s)
	}
	return ss, rows.Err()
}
