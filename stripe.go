package sponsorpay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v72"
)

// Client is a simple HTTP client for the Stripe API. Each request made via
// this client will be automatically configured to talk to the Stripe API
// with the platform's secret key, and the pinned API version.
type Client struct {
	*http.Client

	secret   string
	endpoint string
	version  string
}

// CheckoutSession is the Checkout Session resource from Stripe. Embedded in
// this struct is the stripe.CheckoutSession struct from Stripe.
type CheckoutSession struct {
	*stripe.CheckoutSession
}

// LineItem is a single line of a checkout, the price is in cents.
type LineItem struct {
	Name     string
	Price    int64
	Quantity int64
}

// SessionParams are the parameters for creating a Checkout Session against
// an organizer's connected account.
type SessionParams struct {
	LineItems      []LineItem
	ApplicationFee int64
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

// StripeGateway creates checkouts on behalf of a single connected account.
// One is created per call via the GatewayClientFactory.
type StripeGateway interface {
	CreateCheckoutSession(ctx context.Context, p SessionParams) (*CheckoutSession, error)
}

// SessionRetriever retrieves Checkout Sessions from Stripe.
type SessionRetriever interface {
	RetrieveCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
}

type stripeAccountGateway struct {
	client Client
	creds  StripeCredentials
}

type pair struct {
	key   string
	value interface{}
}

// Params is used for defining the parameters that are passed in the body of a
// Request made to the Stripe API. This will be encoded into a valid
// x-www-form-urlencoded payload.
type Params map[string]interface{}

var (
	_ StripeGateway    = (*stripeAccountGateway)(nil)
	_ SessionRetriever = Client{}

	checkoutSessionEndpoint = "/v1/checkout/sessions"
	deauthorizeEndpoint     = "/oauth/deauthorize"
)

// encodeSliceToPairs will encode an arbitrary slice of values into a slice of
// pairs. Each pair encoded will have a key of key[i] where key is the passed
// key argument, and i is the index of the pair's value in the slice.
func encodeSliceToPairs(key string, val reflect.Value) []pair {
	pairs := make([]pair, 0, val.Len())

	for i := 0; i < val.Len(); i++ {
		k := key + "[" + strconv.FormatInt(int64(i), 10) + "]"
		v := val.Index(i).Interface()

		if p, ok := v.(Params); ok {
			pairs = append(pairs, p.encodeToPairs(k)...)
			continue
		}
		pairs = append(pairs, pair{
			key:   k,
			value: v,
		})
	}
	return pairs
}

func respCode2xx(code int) bool { return code >= 200 && code < 300 }

// NewClient configures a new Client for the Stripe API at the given endpoint,
// using the given secret for authentication. The given http.Client is used
// for sending requests, and should have a timeout set.
func NewClient(hc *http.Client, endpoint, secret string) Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultProviderTimeout}
	}

	return Client{
		Client:   hc,
		secret:   secret,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		version:  stripe.APIVersion,
	}
}

func (p pair) encode() string { return p.key + "=" + url.QueryEscape(fmt.Sprintf("%v", p.value)) }

func (p Params) encodeToPairs(parent string) []pair {
	pairs := make([]pair, 0, len(p))

	for k, v := range p {
		if v == nil {
			continue
		}

		k = url.QueryEscape(k)

		if parent != "" {
			k = parent + "[" + k + "]"
		}

		switch v1 := v.(type) {
		case Params:
			pairs = append(pairs, v1.encodeToPairs(k)...)
			continue
		case map[string]string:
			nested := make(Params, len(v1))

			for mk, mv := range v1 {
				nested[mk] = mv
			}
			pairs = append(pairs, nested.encodeToPairs(k)...)
			continue
		}

		if reflect.TypeOf(v).Kind() == reflect.Slice {
			pairs = append(pairs, encodeSliceToPairs(k, reflect.ValueOf(v))...)
			continue
		}
		pairs = append(pairs, pair{
			key:   k,
			value: v,
		})
	}
	return pairs
}

// Encode encodes the current Params into an x-www-form-urlencoded string and
// returns it. Pairs are sorted so the encoding is stable.
func (p Params) Encode() string {
	pairs := make([]string, 0, len(p))

	for _, pair := range p.encodeToPairs("") {
		pairs = append(pairs, pair.encode())
	}

	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// Reader returns an io.Reader for the x-www-form-urlencoded string of the
// current Params.
func (p Params) Reader() io.Reader { return strings.NewReader(p.Encode()) }

func (c Client) do(ctx context.Context, method, uri string, r io.Reader, hdr http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+"/"+strings.TrimPrefix(uri, "/"), r)

	if err != nil {
		return nil, err
	}

	contentType := map[string]string{
		"POST":   "application/x-www-form-urlencoded",
		"GET":    "application/json; charset=utf-8",
		"DELETE": "application/json; charset=utf-8",
	}

	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Content-Type", contentType[method])
	req.Header.Set("Stripe-Version", c.version)

	for k, v := range hdr {
		req.Header[k] = v
	}

	resp, err := c.Do(req)

	if err != nil {
		return nil, transportError(ProviderStripe, err)
	}
	return resp, nil
}

// Error decodes an error from the Stripe API from the given http.Response and
// returns it as a ProviderError. Both API errors, and the errors returned by
// the OAuth endpoints are understood.
func (c Client) Error(resp *http.Response) error {
	b, _ := ioutil.ReadAll(resp.Body)

	perr := &ProviderError{
		Provider: ProviderStripe,
		Status:   resp.StatusCode,
		Raw:      b,
	}

	var body struct {
		Err         json.RawMessage `json:"error"`
		Description string          `json:"error_description"`
	}

	if err := json.Unmarshal(b, &body); err != nil || len(body.Err) == 0 {
		perr.Message = resp.Status
		return perr
	}

	var code string

	if err := json.Unmarshal(body.Err, &code); err == nil {
		perr.Code = code
		perr.Message = body.Description
		return perr
	}

	var serr stripe.Error

	if err := json.Unmarshal(body.Err, &serr); err != nil {
		perr.Message = resp.Status
		return perr
	}

	perr.Code = string(serr.Code)

	if perr.Code == "" {
		perr.Code = string(serr.Type)
	}
	perr.Message = serr.Msg
	return perr
}

// Get will send a GET request to the given URI of the Stripe API.
func (c Client) Get(ctx context.Context, uri string) (*http.Response, error) {
	return c.do(ctx, "GET", uri, nil, nil)
}

// Post will send a POST request to the given URI of the Stripe API with the
// given Params as the body. If an idempotency key is given then it is sent
// along in the Idempotency-Key header.
func (c Client) Post(ctx context.Context, uri string, params Params, idempotencyKey string) (*http.Response, error) {
	hdr := make(http.Header)

	if idempotencyKey != "" {
		hdr.Set("Idempotency-Key", idempotencyKey)
	}
	return c.do(ctx, "POST", uri, params.Reader(), hdr)
}

// Endpoint returns the URI of the current CheckoutSession. The given uris
// are appended to the final endpoint.
func (s *CheckoutSession) Endpoint(uris ...string) string {
	endpoint := checkoutSessionEndpoint

	if s.CheckoutSession != nil && s.ID != "" {
		endpoint += "/" + s.ID
	}
	if len(uris) > 0 {
		endpoint += "/" + strings.Join(uris, "/")
	}
	return endpoint
}

// Load will load the current CheckoutSession from Stripe by its ID,
// overwriting what was previously there.
func (s *CheckoutSession) Load(ctx context.Context, c Client) error {
	resp, err := c.Get(ctx, s.Endpoint())

	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if !respCode2xx(resp.StatusCode) {
		return c.Error(resp)
	}
	return json.NewDecoder(resp.Body).Decode(&s.CheckoutSession)
}

// Paid returns whether or not the payment for the CheckoutSession has been
// completed.
func (s *CheckoutSession) Paid() bool {
	return s != nil && s.CheckoutSession != nil && s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
}

// RetrieveCheckoutSession will get the CheckoutSession of the given ID from
// Stripe.
func (c Client) RetrieveCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	s := &CheckoutSession{
		CheckoutSession: &stripe.CheckoutSession{
			ID: id,
		},
	}

	if err := s.Load(ctx, c); err != nil {
		return nil, err
	}
	return s, nil
}

// Deauthorize revokes the platform's access to the given connected account.
// This is sent to the Connect endpoint the Client was configured with.
func (c Client) Deauthorize(ctx context.Context, clientID, accountID string) error {
	resp, err := c.Post(ctx, deauthorizeEndpoint, Params{
		"client_id":      clientID,
		"stripe_user_id": accountID,
	}, "")

	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if !respCode2xx(resp.StatusCode) {
		return c.Error(resp)
	}

	var d stripe.Deauthorize

	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return err
	}

	if d.StripeUserID != accountID {
		return &ProviderError{
			Provider: ProviderStripe,
			Status:   resp.StatusCode,
			Code:     "deauthorize_mismatch",
			Message:  "deauthorized account does not match " + accountID,
		}
	}
	return nil
}

func (p SessionParams) params(destination string) Params {
	items := make([]Params, 0, len(p.LineItems))

	for _, it := range p.LineItems {
		items = append(items, Params{
			"price_data": Params{
				"currency":    "usd",
				"unit_amount": it.Price,
				"product_data": Params{
					"name": it.Name,
				},
			},
			"quantity": it.Quantity,
		})
	}

	intent := Params{
		"transfer_data": Params{
			"destination": destination,
		},
		"metadata": p.Metadata,
	}

	if p.ApplicationFee > 0 {
		intent["application_fee_amount"] = p.ApplicationFee
	}

	params := Params{
		"mode":                 "payment",
		"payment_method_types": []string{"card"},
		"line_items":           items,
		"payment_intent_data":  intent,
		"success_url":          p.SuccessURL,
		"cancel_url":           p.CancelURL,
		"metadata":             p.Metadata,
	}

	if p.CustomerEmail != "" {
		params["customer_email"] = p.CustomerEmail
	}
	return params
}

// CreateCheckoutSession creates a destination charge Checkout Session, the
// payment is sent to the connected account with the application fee kept by
// the platform.
func (g *stripeAccountGateway) CreateCheckoutSession(ctx context.Context, p SessionParams) (*CheckoutSession, error) {
	resp, err := g.client.Post(ctx, checkoutSessionEndpoint, p.params(g.creds.AccountID), p.IdempotencyKey)

	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	if !respCode2xx(resp.StatusCode) {
		return nil, g.client.Error(resp)
	}

	s := &CheckoutSession{
		CheckoutSession: &stripe.CheckoutSession{},
	}

	if err := json.NewDecoder(resp.Body).Decode(&s.CheckoutSession); err != nil {
		return nil, err
	}
	return s, nil
}
