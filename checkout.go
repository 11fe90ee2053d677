package sponsorpay

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// FeeLineItemName is the name of the line item added to a checkout when the
// sponsor covers the platform fee.
const FeeLineItemName = "Processing fee"

// CheckoutRequest is a sponsor's request to pay for items through the
// organizer's Stripe account.
type CheckoutRequest struct {
	OrganizerID   string
	Items         []LineItem
	CoverFees     bool
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutResult is the Checkout Session created for a CheckoutRequest. The
// sponsor should be redirected to the URL.
type CheckoutResult struct {
	SessionID string
	URL       string
	Fees      FeeBreakdown
}

// SquarePaymentRequest is a sponsor's request to pay for sponsorships
// through the organizer's Square account. The SourceID is the card nonce
// from the Square Web Payments SDK.
type SquarePaymentRequest struct {
	OrganizerID    string
	SourceID       string
	Amount         int64 // Amount is in cents.
	SponsorshipIDs []string
	CoverFees      bool
	PayerEmail     string
}

// SquarePaymentResult is the result of a Square payment, and its
// settlement.
type SquarePaymentResult struct {
	PaymentID string
	Status    string
	Settled   bool
	Count     int64
	Fees      FeeBreakdown
}

// subtotal returns the sum of the given items, failing with
// ErrInvalidItems if any item is invalid.
func subtotal(items []LineItem) (int64, error) {
	if len(items) == 0 {
		return 0, ErrInvalidItems
	}

	var sum int64

	for _, it := range items {
		if it.Price <= 0 || it.Quantity <= 0 {
			return 0, ErrInvalidItems
		}

		if it.Price > math.MaxInt64/it.Quantity {
			return 0, ErrInvalidItems
		}

		line := it.Price * it.Quantity

		if sum > math.MaxInt64-line {
			return 0, ErrInvalidItems
		}
		sum += line
	}
	return sum, nil
}

func (s *Service) organizer(ctx context.Context, id string) (*Organizer, error) {
	o, ok, err := s.organizers.Organizer(ctx, id)

	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, ErrUnknownOrganizer
	}
	return o, nil
}

// CreateCheckout creates a Stripe Checkout Session for the given request.
// The payment is made as a destination charge to the organizer's connected
// account, with the platform fee taken as the application fee.
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (res CheckoutResult, err error) {
	ctx, span := s.tracer.Start(ctx, "sponsorpay.CreateCheckout")
	defer func() { endSpan(span, err) }()

	span.SetAttributes(attribute.String("organizer.id", req.OrganizerID))

	o, err := s.organizer(ctx, req.OrganizerID)

	if err != nil {
		return res, err
	}

	if o.Profile.ActiveGateway != ProviderStripe || !o.Profile.Stripe.Connected() {
		return res, ErrNotConnected
	}

	if s.cfg.Stripe.SecretKey == "" {
		return res, ErrConfiguration
	}

	sub, err := subtotal(req.Items)

	if err != nil {
		return res, err
	}

	fees := ComputeFees(sub, s.feeOptions(o, req.CoverFees))

	items := make([]LineItem, 0, len(req.Items)+1)
	items = append(items, req.Items...)

	if fees.Covered && fees.ApplicationFeeCents > 0 {
		items = append(items, LineItem{
			Name:     FeeLineItemName,
			Price:    fees.ApplicationFeeCents,
			Quantity: 1,
		})
	}

	meta := make(map[string]string, len(req.Metadata)+1)

	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta["organizerId"] = o.ID

	key := uuid.NewString()

	sess, err := s.gateways.Stripe(o.Profile.Stripe).CreateCheckoutSession(ctx, SessionParams{
		LineItems:      items,
		ApplicationFee: fees.ApplicationFeeCents,
		CustomerEmail:  req.CustomerEmail,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		Metadata:       meta,
		IdempotencyKey: key,
	})

	if err != nil {
		s.log.ErrorContext(ctx, "failed to create checkout session",
			slog.String("organizer_id", o.ID),
			slog.String("idempotency_key", key),
			slog.Any("error", err),
		)
		return res, err
	}

	res = CheckoutResult{
		SessionID: sess.ID,
		URL:       sess.URL,
		Fees:      fees,
	}

	span.SetAttributes(
		attribute.String("stripe.session_id", sess.ID),
		attribute.Int64("fee.application_cents", fees.ApplicationFeeCents),
	)

	s.log.InfoContext(ctx, "checkout session created",
		slog.String("organizer_id", o.ID),
		slog.String("session_id", sess.ID),
		slog.Int64("subtotal_cents", fees.SubtotalCents),
		slog.Int64("application_fee_cents", fees.ApplicationFeeCents),
	)
	return res, nil
}

// ProcessSquarePayment charges the sponsor through the organizer's Square
// account, and settles the sponsorships if the payment went through. The
// platform fee is taken as the app fee of the payment.
func (s *Service) ProcessSquarePayment(ctx context.Context, req SquarePaymentRequest) (res SquarePaymentResult, err error) {
	ctx, span := s.tracer.Start(ctx, "sponsorpay.ProcessSquarePayment")
	defer func() { endSpan(span, err) }()

	span.SetAttributes(attribute.String("organizer.id", req.OrganizerID))

	o, err := s.organizer(ctx, req.OrganizerID)

	if err != nil {
		return res, err
	}

	if o.Profile.ActiveGateway != ProviderSquare || !o.Profile.Square.Connected() {
		return res, ErrNotConnected
	}

	ids := cleanIDs(req.SponsorshipIDs)

	if req.Amount <= 0 || len(ids) == 0 || strings.TrimSpace(req.SourceID) == "" {
		return res, ErrInvalidItems
	}

	tok, err := s.tokens.EnsureValidAccessToken(ctx, o.ID)

	if err != nil {
		return res, err
	}

	fees := ComputeFees(req.Amount, s.feeOptions(o, req.CoverFees))

	key := uuid.NewString()

	payment, err := s.gateways.Square(tok).CreatePayment(ctx, CreatePaymentParams{
		SourceID:       req.SourceID,
		Amount:         fees.SponsorTotalCents,
		AppFee:         fees.ApplicationFeeCents,
		BuyerEmail:     req.PayerEmail,
		Note:           "Sponsorship " + strings.Join(ids, ", "),
		IdempotencyKey: key,
	})

	if err != nil {
		s.log.ErrorContext(ctx, "failed to create square payment",
			slog.String("organizer_id", o.ID),
			slog.String("idempotency_key", key),
			slog.Any("error", err),
		)
		return res, err
	}

	res = SquarePaymentResult{
		PaymentID: payment.ID,
		Status:    payment.Status,
		Fees:      fees,
	}

	st, err := s.settle(ctx, o.ID, ProviderSquare, payment.ID, payment.Settled(), ids, o.Profile.SandboxMode)

	if err != nil {
		return res, err
	}

	res.Settled = st.Settled
	res.Count = st.Count
	return res, nil
}
