package sponsorpay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Settlement is the outcome of checking a payment with its provider. Count
// is the number of sponsorships that were moved to paid, this is zero when
// they had already been paid.
type Settlement struct {
	Provider  Provider
	PaymentID string
	Settled   bool
	Count     int64
}

// cleanIDs trims the given IDs, dropping empty and duplicate ones.
func cleanIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	clean := make([]string, 0, len(ids))

	for _, id := range ids {
		id = strings.TrimSpace(id)

		if id == "" {
			continue
		}

		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		clean = append(clean, id)
	}
	return clean
}

// ParseIDs parses a list of IDs that is either a JSON array of strings, or
// a comma separated list.
func ParseIDs(s string) []string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "[") {
		var ids []string

		if err := json.Unmarshal([]byte(s), &ids); err == nil {
			return cleanIDs(ids)
		}
	}
	return cleanIDs(strings.Split(s, ","))
}

// VerifyStripeSession checks whether the given Checkout Session has been
// paid, and if so marks its sponsorships as paid. The sponsorships are the
// ones in the sponsorshipIds metadata of the session. If sponsorship IDs are
// given then only those that are also in the metadata are settled, and
// ErrInvalidItems is returned if none of them are. Verifying the same
// session more than once is safe.
func (s *Service) VerifyStripeSession(ctx context.Context, sessionID string, sponsorshipIDs []string) (st Settlement, err error) {
	ctx, span := s.tracer.Start(ctx, "sponsorpay.VerifyStripeSession")
	defer func() { endSpan(span, err) }()

	span.SetAttributes(attribute.String("stripe.session_id", sessionID))

	st.Provider = ProviderStripe

	if strings.TrimSpace(sessionID) == "" {
		return st, fmt.Errorf("%w: missing session id", ErrInvalidItems)
	}

	if s.cfg.Stripe.SecretKey == "" {
		return st, ErrConfiguration
	}

	sess, err := s.stripe.RetrieveCheckoutSession(ctx, sessionID)

	if err != nil {
		return st, err
	}

	ids := ParseIDs(sess.Metadata["sponsorshipIds"])

	if requested := cleanIDs(sponsorshipIDs); len(requested) > 0 {
		ids = intersectIDs(ids, requested)

		if len(ids) == 0 {
			return st, fmt.Errorf("%w: sponsorships %s were not paid for by session %s", ErrInvalidItems, strings.Join(requested, ", "), sessionID)
		}
	}

	paymentID := sess.ID

	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		paymentID = sess.PaymentIntent.ID
	}

	st, err = s.settle(ctx, sess.Metadata["organizerId"], ProviderStripe, paymentID, sess.Paid(), ids, !sess.Livemode)
	return st, err
}

// intersectIDs returns the IDs in a that are also in b, in the order of a.
func intersectIDs(a, b []string) []string {
	set := make(map[string]struct{}, len(b))

	for _, id := range b {
		set[id] = struct{}{}
	}

	ids := make([]string, 0, len(a))

	for _, id := range a {
		if _, ok := set[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// SettleSquarePayment marks the given sponsorships as paid if the Square
// payment has gone through.
func (s *Service) SettleSquarePayment(ctx context.Context, organizerID string, payment *SquarePayment, sponsorshipIDs []string) (Settlement, error) {
	o, ok, err := s.organizers.Organizer(ctx, organizerID)

	if err != nil {
		return Settlement{Provider: ProviderSquare}, err
	}

	var id string

	if payment != nil {
		id = payment.ID
	}
	return s.settle(ctx, organizerID, ProviderSquare, id, payment.Settled(), cleanIDs(sponsorshipIDs), ok && o.Profile.SandboxMode)
}

// settle moves the given sponsorships to paid if the payment settled. The
// notification is only queued once the write has succeeded, and only if
// something was written.
func (s *Service) settle(ctx context.Context, organizerID string, p Provider, paymentID string, settled bool, ids []string, isTest bool) (Settlement, error) {
	st := Settlement{
		Provider:  p,
		PaymentID: paymentID,
		Settled:   settled,
	}

	if !settled {
		s.log.InfoContext(ctx, "payment not settled",
			slog.String("provider", p.String()),
			slog.String("payment_id", paymentID),
		)
		return st, nil
	}

	if len(ids) == 0 {
		s.log.WarnContext(ctx, "payment settled with no sponsorships",
			slog.String("provider", p.String()),
			slog.String("payment_id", paymentID),
		)
		return st, nil
	}

	n, err := s.sponsorships.MarkPaid(ctx, ids, paymentID, p)

	if err != nil {
		return st, err
	}

	st.Count = n

	s.log.InfoContext(ctx, "sponsorships settled",
		slog.String("provider", p.String()),
		slog.String("payment_id", paymentID),
		slog.Int64("count", n),
	)

	if n > 0 && s.notifier != nil {
		e := Event{
			Type:           EventSponsorshipPaid,
			OrganizerID:    organizerID,
			Provider:       p,
			PaymentID:      paymentID,
			SponsorshipIDs: ids,
			Count:          n,
			IsTest:         isTest,
			OccurredAt:     s.now(),
		}

		// The details of the event are filled in by the notifier.
		if err := s.notifier.Enqueue(ctx, e); err != nil {
			s.log.ErrorContext(ctx, "failed to queue notification",
				slog.String("payment_id", paymentID),
				slog.Any("error", err),
			)
		}
	}
	return st, nil
}
