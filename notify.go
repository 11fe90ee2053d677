package sponsorpay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// EventSponsorshipPaid is the type of the Event sent when sponsorships are
// marked as paid.
const EventSponsorshipPaid = "sponsorship.paid"

// Event is a notification sent to an organizer's webhook after settlement.
type Event struct {
	Type           string    `json:"type"`
	OrganizerID    string    `json:"organizerId"`
	Provider       Provider  `json:"provider"`
	PaymentID      string    `json:"paymentId"`
	SponsorshipIDs []string  `json:"sponsorshipIds"`
	PackageIDs     []string  `json:"packageIds,omitempty"`
	Count          int64     `json:"count"`
	AmountCents    int64     `json:"amountCents"`
	IsTest         bool      `json:"isTest"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Text returns the human readable summary of the event.
func (e Event) Text() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "%d sponsorship(s) paid via %s", e.Count, e.Provider)

	if e.AmountCents > 0 {
		buf.WriteString(" for " + FormatCents(e.AmountCents))
	}

	if len(e.PackageIDs) > 0 {
		buf.WriteString(" (packages: " + strings.Join(e.PackageIDs, ", ") + ")")
	}

	if e.IsTest {
		buf.WriteString(" [test]")
	}
	return buf.String()
}

// NotificationSender delivers an Event to the given webhook URL.
type NotificationSender interface {
	Send(ctx context.Context, webhookURL string, e Event) error
}

// WebhookSender posts events as JSON to webhooks. The payload carries a text
// field so it renders in Slack incoming webhooks.
type WebhookSender struct {
	rest *resty.Client
}

// NewWebhookSender returns a WebhookSender using the given http.Client.
func NewWebhookSender(hc *http.Client) *WebhookSender {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultProviderTimeout}
	}
	return &WebhookSender{
		rest: resty.NewWithClient(hc).SetHeader("Content-Type", "application/json"),
	}
}

func (s *WebhookSender) Send(ctx context.Context, webhookURL string, e Event) error {
	resp, err := s.rest.R().
		SetContext(ctx).
		SetBody(struct {
			Text string `json:"text"`
			Event
		}{
			Text:  e.Text(),
			Event: e,
		}).
		Post(webhookURL)

	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("notification webhook returned an error: %s", resp.Status())
	}
	return nil
}

var (
	ErrQueueFull   = errors.New("notification queue full")
	ErrQueueClosed = errors.New("notification queue closed")
)

// EventResolver fills in the details of an event from its sponsorship IDs,
// and returns the webhook URL the event is sent to. An empty URL means the
// event has nowhere to go, and is dropped.
type EventResolver interface {
	Resolve(ctx context.Context, e *Event) (string, error)
}

// StoreResolver resolves events against the organizer and sponsorship
// stores. Events for organizers without a webhook of their own go to
// WebhookURL.
type StoreResolver struct {
	Organizers   OrganizerStore
	Sponsorships SponsorshipStore
	WebhookURL   string
}

var _ EventResolver = StoreResolver{}

// Resolve sets the amount, packages, and organizer of the event from its
// sponsorships. If the sponsorships cannot be loaded then the error is
// returned along with the URL, so the event can still be sent without its
// details.
func (r StoreResolver) Resolve(ctx context.Context, e *Event) (string, error) {
	ss, err := r.Sponsorships.Sponsorships(ctx, e.SponsorshipIDs)

	seen := make(map[string]struct{})

	for _, sp := range ss {
		e.AmountCents += sp.Amount

		if e.OrganizerID == "" {
			e.OrganizerID = sp.OrganizerID
		}

		if _, ok := seen[sp.PackageID]; !ok && sp.PackageID != "" {
			seen[sp.PackageID] = struct{}{}
			e.PackageIDs = append(e.PackageIDs, sp.PackageID)
		}
	}

	url := r.WebhookURL

	if e.OrganizerID == "" {
		return url, err
	}

	o, ok, oerr := r.Organizers.Organizer(ctx, e.OrganizerID)

	if oerr != nil {
		return url, errors.Join(err, oerr)
	}

	if ok && o.NotificationWebhookURL != "" {
		url = o.NotificationWebhookURL
	}
	return url, err
}

type notification struct {
	span  trace.SpanContext
	event Event
}

// Dispatcher sends notifications in the background via a fixed number of
// workers reading from a bounded queue. The details of each event are
// resolved by the worker, so queueing never touches the stores.
type Dispatcher struct {
	sender   NotificationSender
	resolver EventResolver
	log      *slog.Logger
	tracer   trace.Tracer
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan notification
	wg     sync.WaitGroup
}

// NewDispatcher starts a Dispatcher with the given number of workers, and a
// queue of the given size. Events are resolved with the given resolver
// before they are sent.
func NewDispatcher(sender NotificationSender, resolver EventResolver, workers, size int, log *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}

	if size < 1 {
		size = 1
	}

	if log == nil {
		log = slog.Default()
	}

	d := &Dispatcher{
		sender:   sender,
		resolver: resolver,
		log:      log,
		tracer:   otel.Tracer(tracerName),
		timeout:  DefaultProviderTimeout,
		queue:    make(chan notification, size),
	}

	d.wg.Add(workers)

	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

func (d *Dispatcher) work() {
	defer d.wg.Done()

	for n := range d.queue {
		d.dispatch(n)
	}
}

// dispatch resolves and sends a single notification. The span it runs in is
// a child of the span that queued it, so its logs carry the same trace.
func (d *Dispatcher) dispatch(n notification) {
	ctx, cancel := context.WithTimeout(trace.ContextWithSpanContext(context.Background(), n.span), d.timeout)
	defer cancel()

	ctx, span := d.tracer.Start(ctx, "sponsorpay.Notify")

	var err error

	defer func() { endSpan(span, err) }()

	e := n.event

	url, err := d.resolver.Resolve(ctx, &e)

	if err != nil {
		d.log.WarnContext(ctx, "failed to resolve notification details",
			slog.String("payment_id", e.PaymentID),
			slog.Any("error", err),
		)
	}

	if url == "" {
		return
	}

	if err = d.sender.Send(ctx, url, e); err != nil {
		d.log.ErrorContext(ctx, "failed to send notification",
			slog.String("organizer_id", e.OrganizerID),
			slog.String("payment_id", e.PaymentID),
			slog.Any("error", err),
		)
	}
}

// Enqueue queues the event for delivery. This never blocks, if the queue is
// full then ErrQueueFull is returned.
func (d *Dispatcher) Enqueue(ctx context.Context, e Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrQueueClosed
	}

	select {
	case d.queue <- notification{span: trace.SpanContextFromContext(ctx), event: e}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting notifications, and waits for the queued ones to be
// sent, or for the context to be done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()

	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})

	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
