package sponsorpay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Square payment statuses.
const (
	SquarePaymentApproved  = "APPROVED"
	SquarePaymentCompleted = "COMPLETED"
	SquarePaymentPending   = "PENDING"
	SquarePaymentCanceled  = "CANCELED"
	SquarePaymentFailed    = "FAILED"
)

// SquareScopes are the permissions requested when an organizer connects
// their Square account.
var SquareScopes = []string{
	"MERCHANT_PROFILE_READ",
	"PAYMENTS_WRITE",
	"PAYMENTS_READ",
	"ORDERS_WRITE",
	"ORDERS_READ",
}

// Money is an amount of money as sent to Square.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// SquarePayment is the Payment resource from Square.
type SquarePayment struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	AmountMoney  *Money `json:"amount_money,omitempty"`
	AppFeeMoney  *Money `json:"app_fee_money,omitempty"`
	ReceiptURL   string `json:"receipt_url,omitempty"`
	BuyerEmail   string `json:"buyer_email_address,omitempty"`
	LocationID   string `json:"location_id,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	ReferenceID  string `json:"reference_id,omitempty"`
	SourceType   string `json:"source_type,omitempty"`
	DelayAction  string `json:"delay_action,omitempty"`
	VersionToken string `json:"version_token,omitempty"`
}

// Settled returns whether or not the payment has gone through.
func (p *SquarePayment) Settled() bool {
	return p != nil && (p.Status == SquarePaymentCompleted || p.Status == SquarePaymentApproved)
}

// CreatePaymentParams are the parameters for creating a payment against an
// organizer's Square account. All amounts are in cents.
type CreatePaymentParams struct {
	SourceID       string
	Amount         int64
	AppFee         int64
	BuyerEmail     string
	Note           string
	IdempotencyKey string
}

// SquareGateway creates payments on behalf of a single Square merchant. One
// is created per call via the GatewayClientFactory.
type SquareGateway interface {
	CreatePayment(ctx context.Context, p CreatePaymentParams) (*SquarePayment, error)
}

// SquareToken is the token returned from the Square OAuth token endpoint.
type SquareToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	MerchantID   string    `json:"merchant_id"`
	TokenType    string    `json:"token_type"`
}

// SquareClient talks to the Square API with the platform's OAuth
// application credentials.
type SquareClient struct {
	rest *resty.Client

	clientID     string
	clientSecret string
}

type squareMerchantGateway struct {
	rest *resty.Client
}

type squareErrorBody struct {
	Errors []struct {
		Category string `json:"category"`
		Code     string `json:"code"`
		Detail   string `json:"detail"`
		Field    string `json:"field"`
	} `json:"errors"`

	// The OAuth endpoints may respond in the OAuth error shape.
	Message string `json:"message"`
	Type    string `json:"type"`
}

var (
	_ SquareGateway  = (*squareMerchantGateway)(nil)
	_ TokenRefresher = (*SquareClient)(nil)
)

func newSquareRest(hc *http.Client, base, version string) *resty.Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultProviderTimeout}
	}

	// resty sets the cookie jar and transport on the client it is given.
	cp := *hc

	return resty.NewWithClient(&cp).
		SetBaseURL(strings.TrimSuffix(base, "/")).
		SetHeader("Square-Version", version).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// NewSquareClient returns a SquareClient for the API at the given base URL.
func NewSquareClient(hc *http.Client, base, version, clientID, clientSecret string) *SquareClient {
	return &SquareClient{
		rest:         newSquareRest(hc, base, version),
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// squareError normalizes the error returned from Square into a
// ProviderError. A nil resp means the request never got a response.
func squareError(resp *resty.Response, err error) error {
	if err != nil {
		return transportError(ProviderSquare, err)
	}

	b := resp.Body()

	perr := &ProviderError{
		Provider: ProviderSquare,
		Status:   resp.StatusCode(),
		Message:  resp.Status(),
		Raw:      b,
	}

	var body squareErrorBody

	if err := json.Unmarshal(b, &body); err != nil {
		return perr
	}

	if len(body.Errors) > 0 {
		perr.Code = body.Errors[0].Code
		perr.Message = body.Errors[0].Detail

		if perr.Message == "" {
			perr.Message = body.Errors[0].Category
		}
		return perr
	}

	if body.Type != "" {
		perr.Code = body.Type
		perr.Message = body.Message
	}
	return perr
}

func (c *SquareClient) obtainToken(ctx context.Context, body map[string]string) (SquareToken, error) {
	var tok SquareToken

	body["client_id"] = c.clientID
	body["client_secret"] = c.clientSecret

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&tok).
		Post("/oauth2/token")

	if err != nil || resp.IsError() {
		return tok, squareError(resp, err)
	}
	return tok, nil
}

// ExchangeCode exchanges the authorization code from an OAuth callback for a
// merchant's tokens.
func (c *SquareClient) ExchangeCode(ctx context.Context, code, redirectURL string) (SquareToken, error) {
	body := map[string]string{
		"grant_type": "authorization_code",
		"code":       code,
	}

	if redirectURL != "" {
		body["redirect_uri"] = redirectURL
	}
	return c.obtainToken(ctx, body)
}

// RefreshToken obtains a new access token with the given refresh token.
func (c *SquareClient) RefreshToken(ctx context.Context, refreshToken string) (RefreshedToken, error) {
	tok, err := c.obtainToken(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})

	if err != nil {
		return RefreshedToken{}, err
	}

	return RefreshedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
	}, nil
}

// Revoke revokes the given access token, and every other token the
// platform holds for that merchant.
func (c *SquareClient) Revoke(ctx context.Context, accessToken string) error {
	var result struct {
		Success bool `json:"success"`
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Authorization", "Client "+c.clientSecret).
		SetBody(map[string]string{
			"client_id":    c.clientID,
			"access_token": accessToken,
		}).
		SetResult(&result).
		Post("/oauth2/revoke")

	if err != nil || resp.IsError() {
		return squareError(resp, err)
	}

	if !result.Success {
		return &ProviderError{
			Provider: ProviderSquare,
			Status:   resp.StatusCode(),
			Code:     "revoke_failed",
			Message:  "square did not revoke the token",
			Raw:      resp.Body(),
		}
	}
	return nil
}

// CreatePayment creates a payment in USD for the merchant. The app fee is
// only sent if it is more than zero.
func (g *squareMerchantGateway) CreatePayment(ctx context.Context, p CreatePaymentParams) (*SquarePayment, error) {
	body := map[string]interface{}{
		"source_id":       p.SourceID,
		"idempotency_key": p.IdempotencyKey,
		"amount_money": Money{
			Amount:   p.Amount,
			Currency: "USD",
		},
		"autocomplete": true,
	}

	if p.AppFee > 0 {
		body["app_fee_money"] = Money{
			Amount:   p.AppFee,
			Currency: "USD",
		}
	}

	if p.BuyerEmail != "" {
		body["buyer_email_address"] = p.BuyerEmail
	}

	if p.Note != "" {
		body["note"] = p.Note
	}

	var result struct {
		Payment *SquarePayment `json:"payment"`
	}

	resp, err := g.rest.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/v2/payments")

	if err != nil || resp.IsError() {
		return nil, squareError(resp, err)
	}

	if result.Payment == nil {
		return nil, &ProviderError{
			Provider: ProviderSquare,
			Status:   resp.StatusCode(),
			Code:     "malformed_response",
			Message:  "no payment in response",
			Raw:      resp.Body(),
		}
	}
	return result.Payment, nil
}
