package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/andrewpillar/sponsorpay"

	"github.com/gin-gonic/gin"
)

type mockPayments struct {
	BeginConnectFunc         func(ctx context.Context, p sponsorpay.Provider, organizerID string) (string, error)
	HandleCallbackFunc       func(ctx context.Context, p sponsorpay.Provider, code, state string) (sponsorpay.CallbackResult, error)
	DisconnectFunc           func(ctx context.Context, p sponsorpay.Provider, organizerID string) error
	ConnectionStatusFunc     func(ctx context.Context, p sponsorpay.Provider, organizerID string) (sponsorpay.ConnectionStatus, error)
	CreateCheckoutFunc       func(ctx context.Context, req sponsorpay.CheckoutRequest) (sponsorpay.CheckoutResult, error)
	VerifyStripeSessionFunc  func(ctx context.Context, sessionID string, ids []string) (sponsorpay.Settlement, error)
	ProcessSquarePaymentFunc func(ctx context.Context, req sponsorpay.SquarePaymentRequest) (sponsorpay.SquarePaymentResult, error)
}

func (m *mockPayments) BeginConnect(ctx context.Context, p sponsorpay.Provider, organizerID string) (string, error) {
	if m.BeginConnectFunc != nil {
		return m.BeginConnectFunc(ctx, p, organizerID)
	}
	return "", nil
}

func (m *mockPayments) HandleCallback(ctx context.Context, p sponsorpay.Provider, code, state string) (sponsorpay.CallbackResult, error) {
	if m.HandleCallbackFunc != nil {
		return m.HandleCallbackFunc(ctx, p, code, state)
	}
	return sponsorpay.CallbackResult{}, nil
}

func (m *mockPayments) Disconnect(ctx context.Context, p sponsorpay.Provider, organizerID string) error {
	if m.DisconnectFunc != nil {
		return m.DisconnectFunc(ctx, p, organizerID)
	}
	return nil
}

func (m *mockPayments) ConnectionStatus(ctx context.Context, p sponsorpay.Provider, organizerID string) (sponsorpay.ConnectionStatus, error) {
	if m.ConnectionStatusFunc != nil {
		return m.ConnectionStatusFunc(ctx, p, organizerID)
	}
	return sponsorpay.ConnectionStatus{}, nil
}

func (m *mockPayments) CreateCheckout(ctx context.Context, req sponsorpay.CheckoutRequest) (sponsorpay.CheckoutResult, error) {
	if m.CreateCheckoutFunc != nil {
		return m.CreateCheckoutFunc(ctx, req)
	}
	return sponsorpay.CheckoutResult{}, nil
}

func (m *mockPayments) VerifyStripeSession(ctx context.Context, sessionID string, ids []string) (sponsorpay.Settlement, error) {
	if m.VerifyStripeSessionFunc != nil {
		return m.VerifyStripeSessionFunc(ctx, sessionID, ids)
	}
	return sponsorpay.Settlement{}, nil
}

func (m *mockPayments) ProcessSquarePayment(ctx context.Context, req sponsorpay.SquarePaymentRequest) (sponsorpay.SquarePaymentResult, error) {
	if m.ProcessSquarePaymentFunc != nil {
		return m.ProcessSquarePaymentFunc(ctx, req)
	}
	return sponsorpay.SquarePaymentResult{}, nil
}

func newTestServer(m *mockPayments) *Server {
	gin.SetMode(gin.TestMode)
	return New(m, "https://sponsor.example.com", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, s *Server, method, target string, body interface{}) *httptest.ResponseRecorder {
	var r io.Reader

	if body != nil {
		b, err := json.Marshal(body)

		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, r)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var m map[string]interface{}

	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode response %q: %s\n", rec.Body.String(), err)
	}
	return m
}

func Test_Health(t *testing.T) {
	rec := do(t, newTestServer(&mockPayments{}), http.MethodGet, "/healthz", nil)

	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
		t.Errorf("unexpected response %d %s\n", rec.Code, rec.Body.String())
	}
}

func Test_Connect(t *testing.T) {
	var provider sponsorpay.Provider

	m := &mockPayments{
		BeginConnectFunc: func(_ context.Context, p sponsorpay.Provider, organizerID string) (string, error) {
			provider = p

			if organizerID == "org_unknown" {
				return "", sponsorpay.ErrUnknownOrganizer
			}
			return "https://connect.example.com/authorize?state=abc", nil
		},
	}

	s := newTestServer(m)

	tests := []struct {
		target       string
		expectedCode int
		expectedURL  string
	}{
		{"/stripe/connect?userId=org_1", http.StatusOK, "https://connect.example.com/authorize?state=abc"},
		{"/square/connect?userId=org_1", http.StatusOK, "https://connect.example.com/authorize?state=abc"},
		{"/stripe/connect", http.StatusBadRequest, ""},
		{"/stripe/connect?userId=org_unknown", http.StatusNotFound, ""},
	}

	for i, test := range tests {
		rec := do(t, s, http.MethodGet, test.target, nil)

		if rec.Code != test.expectedCode {
			t.Errorf("tests[%d] - unexpected status, expected=%d, got=%d\n", i, test.expectedCode, rec.Code)
			continue
		}

		body := decode(t, rec)

		if test.expectedURL != "" && body["url"] != test.expectedURL {
			t.Errorf("tests[%d] - unexpected url, expected=%q, got=%v\n", i, test.expectedURL, body["url"])
		}

		if test.expectedCode != http.StatusOK && body["error"] == nil {
			t.Errorf("tests[%d] - expected error in body\n", i)
		}
	}

	if provider != sponsorpay.ProviderStripe {
		t.Errorf("unexpected provider %q\n", provider)
	}
}

func Test_Callback(t *testing.T) {
	m := &mockPayments{
		HandleCallbackFunc: func(_ context.Context, p sponsorpay.Provider, code, state string) (sponsorpay.CallbackResult, error) {
			switch {
			case state == "bad":
				return sponsorpay.CallbackResult{}, sponsorpay.ErrInvalidState
			case code == "expired":
				return sponsorpay.CallbackResult{}, &sponsorpay.ProviderError{Provider: p, Code: "invalid_grant"}
			}
			return sponsorpay.CallbackResult{OrganizerID: "org_1", Provider: p}, nil
		},
	}

	s := newTestServer(m)

	tests := []struct {
		target        string
		expectedQuery string
	}{
		{"/stripe/callback?code=ac_123&state=good", "stripe_success=true"},
		{"/square/callback?code=sq_123&state=good", "square_success=true"},
		{"/stripe/callback?code=ac_123&state=bad", "stripe_error=invalid_state"},
		{"/square/callback?code=expired&state=good", "square_error=invalid_grant"},
		{"/stripe/callback?error=access_denied&error_description=denied", "stripe_error=access_denied"},
	}

	for i, test := range tests {
		rec := do(t, s, http.MethodGet, test.target, nil)

		if rec.Code != http.StatusFound {
			t.Errorf("tests[%d] - unexpected status, expected=%d, got=%d\n", i, http.StatusFound, rec.Code)
			continue
		}

		loc, err := url.Parse(rec.Header().Get("Location"))

		if err != nil {
			t.Fatalf("tests[%d] - %s\n", i, err)
		}

		if loc.Host != "sponsor.example.com" || loc.Path != "/settings" {
			t.Errorf("tests[%d] - unexpected redirect %q\n", i, loc)
		}

		if loc.RawQuery != test.expectedQuery {
			t.Errorf("tests[%d] - unexpected query, expected=%q, got=%q\n", i, test.expectedQuery, loc.RawQuery)
		}
	}
}

func Test_Disconnect(t *testing.T) {
	var disconnected []string

	m := &mockPayments{
		DisconnectFunc: func(_ context.Context, p sponsorpay.Provider, organizerID string) error {
			disconnected = append(disconnected, p.String()+":"+organizerID)
			return nil
		},
	}

	s := newTestServer(m)

	rec := do(t, s, http.MethodPost, "/square/disconnect", map[string]string{"userId": "org_1"})

	if rec.Code != http.StatusOK || decode(t, rec)["success"] != true {
		t.Errorf("unexpected response %d %s\n", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodPost, "/stripe/disconnect", map[string]string{})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected bad request for missing userId, got=%d\n", rec.Code)
	}

	if len(disconnected) != 1 || disconnected[0] != "square:org_1" {
		t.Errorf("unexpected disconnects %v\n", disconnected)
	}
}

func Test_Status(t *testing.T) {
	m := &mockPayments{
		ConnectionStatusFunc: func(_ context.Context, p sponsorpay.Provider, _ string) (sponsorpay.ConnectionStatus, error) {
			return sponsorpay.ConnectionStatus{
				Provider:      p,
				State:         sponsorpay.StateNeedsRefresh,
				ActiveGateway: sponsorpay.ProviderSquare,
			}, nil
		},
	}

	rec := do(t, newTestServer(m), http.MethodGet, "/square/status?userId=org_1", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d\n", rec.Code)
	}

	body := decode(t, rec)

	if body["connected"] != true || body["state"] != "needs_refresh" || body["activeGateway"] != "square" {
		t.Errorf("unexpected body %v\n", body)
	}
}

func Test_CreateCheckout(t *testing.T) {
	var got sponsorpay.CheckoutRequest

	m := &mockPayments{
		CreateCheckoutFunc: func(_ context.Context, req sponsorpay.CheckoutRequest) (sponsorpay.CheckoutResult, error) {
			got = req

			if req.OrganizerID == "org_disconnected" {
				return sponsorpay.CheckoutResult{}, sponsorpay.ErrNotConnected
			}
			return sponsorpay.CheckoutResult{SessionID: "cs_123", URL: "https://checkout.stripe.com/c/cs_123"}, nil
		},
	}

	s := newTestServer(m)

	body := map[string]interface{}{
		"organizerId": "org_1",
		"items": []map[string]interface{}{
			{"name": "Gold", "price": 500.5, "quantity": 2},
		},
		"coverFees":      true,
		"successUrl":     "https://sponsor.example.com/success",
		"cancelUrl":      "https://sponsor.example.com/cancel",
		"metadata":       map[string]interface{}{"eventId": "ev_1", "tier": 3},
		"sponsorshipIds": []string{"sp_1", "sp_2"},
	}

	rec := do(t, s, http.MethodPost, "/stripe/create-checkout", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d %s\n", rec.Code, rec.Body.String())
	}

	resp := decode(t, rec)

	if resp["sessionId"] != "cs_123" || resp["url"] != "https://checkout.stripe.com/c/cs_123" {
		t.Errorf("unexpected response %v\n", resp)
	}

	if len(got.Items) != 1 || got.Items[0].Price != 50050 || got.Items[0].Quantity != 2 {
		t.Errorf("unexpected items %+v\n", got.Items)
	}

	expectedMeta := map[string]string{
		"eventId":        "ev_1",
		"tier":           "3",
		"sponsorshipIds": "sp_1,sp_2",
	}

	for k, v := range expectedMeta {
		if got.Metadata[k] != v {
			t.Errorf("unexpected metadata %q, expected=%q, got=%q\n", k, v, got.Metadata[k])
		}
	}

	if !got.CoverFees {
		t.Errorf("expected cover fees to be passed through\n")
	}

	tests := []struct {
		body         interface{}
		expectedCode int
	}{
		{map[string]interface{}{"items": []interface{}{}}, http.StatusBadRequest},
		{map[string]interface{}{"organizerId": "org_1", "items": []map[string]interface{}{{"name": "Gold", "price": 10.001, "quantity": 1}}}, http.StatusBadRequest},
		{map[string]interface{}{"organizerId": "org_disconnected", "items": []map[string]interface{}{{"name": "Gold", "price": 10, "quantity": 1}}}, http.StatusBadRequest},
	}

	for i, test := range tests {
		rec := do(t, s, http.MethodPost, "/stripe/create-checkout", test.body)

		if rec.Code != test.expectedCode {
			t.Errorf("tests[%d] - unexpected status, expected=%d, got=%d\n", i, test.expectedCode, rec.Code)
		}
	}
}

func Test_VerifySession(t *testing.T) {
	ids := []string{"unset"}

	m := &mockPayments{
		VerifyStripeSessionFunc: func(_ context.Context, sessionID string, sponsorshipIDs []string) (sponsorpay.Settlement, error) {
			ids = sponsorshipIDs

			if sessionID == "cs_missing" {
				return sponsorpay.Settlement{}, &sponsorpay.ProviderError{Provider: sponsorpay.ProviderStripe, Code: "resource_missing", Message: "No such session"}
			}
			return sponsorpay.Settlement{Settled: true, Count: 2}, nil
		},
	}

	s := newTestServer(m)

	rec := do(t, s, http.MethodGet, "/stripe/verify-session?sessionId=cs_123&sponsorshipIds=sp_1,sp_2", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d\n", rec.Code)
	}

	body := decode(t, rec)

	if body["verified"] != true || body["count"] != float64(2) {
		t.Errorf("unexpected body %v\n", body)
	}

	if ids != nil {
		t.Errorf("expected sponsorship ids from the query to be ignored, got=%v\n", ids)
	}

	rec = do(t, s, http.MethodGet, "/stripe/verify-session?sessionId=cs_missing", nil)

	if rec.Code != http.StatusInternalServerError || decode(t, rec)["error"] != "No such session" {
		t.Errorf("unexpected response %d %s\n", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/stripe/verify-session", nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected bad request for missing sessionId, got=%d\n", rec.Code)
	}
}

func Test_ProcessPayment(t *testing.T) {
	var got sponsorpay.SquarePaymentRequest

	m := &mockPayments{
		ProcessSquarePaymentFunc: func(_ context.Context, req sponsorpay.SquarePaymentRequest) (sponsorpay.SquarePaymentResult, error) {
			got = req

			if req.OrganizerID == "org_expired" {
				return sponsorpay.SquarePaymentResult{}, sponsorpay.ErrNeedsReconnect
			}

			return sponsorpay.SquarePaymentResult{
				PaymentID: "pay_123",
				Status:    sponsorpay.SquarePaymentCompleted,
				Settled:   true,
				Count:     1,
			}, nil
		},
	}

	s := newTestServer(m)

	rec := do(t, s, http.MethodPost, "/square/process-payment", map[string]interface{}{
		"organizerId":    "org_1",
		"sourceId":       "cnon:card-nonce-ok",
		"amount":         "250.00",
		"sponsorshipIds": []string{"sp_1"},
		"payerEmail":     "sponsor@example.com",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d %s\n", rec.Code, rec.Body.String())
	}

	body := decode(t, rec)

	if body["success"] != true || body["paymentId"] != "pay_123" || body["status"] != "COMPLETED" {
		t.Errorf("unexpected body %v\n", body)
	}

	if got.Amount != 25000 {
		t.Errorf("unexpected amount, expected=%d, got=%d\n", 25000, got.Amount)
	}

	if got.PayerEmail != "sponsor@example.com" {
		t.Errorf("unexpected payer email, expected=%q, got=%q\n", "sponsor@example.com", got.PayerEmail)
	}

	tests := []struct {
		body         map[string]interface{}
		expectedCode int
	}{
		{map[string]interface{}{"organizerId": "org_1"}, http.StatusBadRequest},
		{map[string]interface{}{"organizerId": "org_1", "sourceId": "cnon", "amount": "abc"}, http.StatusBadRequest},
		{map[string]interface{}{"organizerId": "org_expired", "sourceId": "cnon", "amount": 10}, http.StatusBadRequest},
	}

	for i, test := range tests {
		rec := do(t, s, http.MethodPost, "/square/process-payment", test.body)

		if rec.Code != test.expectedCode {
			t.Errorf("tests[%d] - unexpected status, expected=%d, got=%d\n", i, test.expectedCode, rec.Code)
		}
	}
}
