package sponsorpay

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/andrewpillar/sponsorpay"

// Notifier queues notifications for delivery in the background. This is
// implemented by the Dispatcher. Enqueue must not block, and must not do any
// I/O on the caller's behalf.
type Notifier interface {
	Enqueue(ctx context.Context, e Event) error
}

// Service implements the payment flows of the platform. Connecting an
// organizer to a provider, creating checkouts, and settling the payments
// made through them.
type Service struct {
	cfg Config

	organizers   OrganizerStore
	sponsorships SponsorshipStore
	notifier     Notifier

	hc       *http.Client
	gateways GatewayClientFactory
	stripe   Client
	connect  Client
	square   *SquareClient
	tokens   *TokenManager
	state    StateCodec

	log    *slog.Logger
	now    func() time.Time
	tracer trace.Tracer
}

// Option configures optional parts of the Service.
type Option func(*Service)

// WithHTTPClient sets the http.Client used for every call made to a
// provider.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) {
		s.hc = hc
	}
}

// WithLogger sets the logger of the Service.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithClock sets the function used to get the current time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithGatewayClientFactory replaces the GatewayClientFactory that creates
// the per-organizer provider clients.
func WithGatewayClientFactory(f GatewayClientFactory) Option {
	return func(s *Service) {
		s.gateways = f
	}
}

// New returns a Service for the given configuration and stores. The
// notifier may be nil, in which case no notifications are sent.
func New(cfg Config, organizers OrganizerStore, sponsorships SponsorshipStore, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		cfg:          cfg,
		organizers:   organizers,
		sponsorships: sponsorships,
		notifier:     notifier,
		log:          slog.Default(),
		now:          time.Now,
		tracer:       otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.hc == nil {
		s.hc = &http.Client{
			Timeout:   cfg.providerTimeout(),
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	if s.gateways == nil {
		s.gateways = NewGatewayClientFactory(s.hc, cfg)
	}

	s.stripe = NewClient(s.hc, cfg.stripeAPIURL(), cfg.Stripe.SecretKey)
	s.connect = NewClient(s.hc, cfg.stripeConnectURL(), cfg.Stripe.SecretKey)
	s.square = NewSquareClient(s.hc, cfg.squareBaseURL(), cfg.squareVersion(), cfg.Square.ClientID, cfg.Square.ClientSecret)
	s.tokens = NewTokenManager(organizers, s.square, s.log, s.now)
	s.state = NewStateCodec(cfg.StateSecret, s.now)
	return s
}

// Config returns the configuration of the Service.
func (s *Service) Config() Config { return s.cfg }

// Tokens returns the TokenManager used for Square access tokens.
func (s *Service) Tokens() *TokenManager { return s.tokens }

func (s *Service) feeOptions(o *Organizer, coverFees bool) FeeOptions {
	return FeeOptions{
		FeesWaived: o.WaiveFees,
		CoverFees:  coverFees,
		Rate:       s.cfg.PlatformFeePercent,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
