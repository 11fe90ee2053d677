package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/andrewpillar/sponsorpay"

	"github.com/gin-gonic/gin"
)

var errBadRequest = errors.New("invalid request body")

func (s *Server) fail(c *gin.Context, err error) {
	status := sponsorpay.HTTPStatus(err)

	if errors.Is(err, errBadRequest) {
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
	}

	msg := sponsorpay.ErrorMessage(err)

	if errors.Is(err, errBadRequest) {
		msg = err.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{errBadRequest}, args...)...)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConnect(p sponsorpay.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("userId")

		if userID == "" {
			s.fail(c, badRequest("userId is required"))
			return
		}

		u, err := s.payments.BeginConnect(c.Request.Context(), p, userID)

		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": u})
	}
}

// settingsURL returns the frontend settings page with the outcome of an
// OAuth callback in the query string.
func (s *Server) settingsURL(p sponsorpay.Provider, err error) string {
	q := url.Values{}

	if err != nil {
		q.Set(p.String()+"_error", sponsorpay.CallbackErrorCode(err))
	} else {
		q.Set(p.String()+"_success", "true")
	}
	return s.frontendURL + "/settings?" + q.Encode()
}

func (s *Server) handleCallback(p sponsorpay.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var err error

		if code := c.Query("error"); code != "" {
			err = sponsorpay.CallbackDenied(p, code, c.Query("error_description"))
		} else {
			_, err = s.payments.HandleCallback(ctx, p, c.Query("code"), c.Query("state"))
		}

		if err != nil {
			s.log.WarnContext(ctx, "oauth callback failed",
				slog.String("provider", p.String()),
				slog.Any("error", err),
			)
		}
		c.Redirect(http.StatusFound, s.settingsURL(p, err))
	}
}

type organizerRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleDisconnect(p sponsorpay.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req organizerRequest

		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, badRequest("%s", err))
			return
		}

		if req.UserID == "" {
			s.fail(c, badRequest("userId is required"))
			return
		}

		if err := s.payments.Disconnect(c.Request.Context(), p, req.UserID); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (s *Server) handleStatus(p sponsorpay.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("userId")

		if userID == "" {
			s.fail(c, badRequest("userId is required"))
			return
		}

		st, err := s.payments.ConnectionStatus(c.Request.Context(), p, userID)

		if err != nil {
			s.fail(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"connected":     st.Connected(),
			"state":         st.State,
			"activeGateway": st.ActiveGateway,
		})
	}
}

type checkoutItem struct {
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Quantity int64       `json:"quantity"`
}

type checkoutRequest struct {
	OrganizerID    string                 `json:"organizerId"`
	Items          []checkoutItem         `json:"items"`
	CoverFees      bool                   `json:"coverFees"`
	CustomerEmail  string                 `json:"customerEmail"`
	SuccessURL     string                 `json:"successUrl"`
	CancelURL      string                 `json:"cancelUrl"`
	Metadata       map[string]interface{} `json:"metadata"`
	SponsorshipIDs []string               `json:"sponsorshipIds"`
}

// metadata flattens the request metadata into the string values Stripe
// accepts. Values that are not strings are stored as their JSON encoding.
func metadata(m map[string]interface{}, ids []string) (map[string]string, error) {
	meta := make(map[string]string, len(m)+1)

	for k, v := range m {
		if str, ok := v.(string); ok {
			meta[k] = str
			continue
		}

		b, err := json.Marshal(v)

		if err != nil {
			return nil, err
		}
		meta[k] = string(b)
	}

	if len(ids) > 0 {
		meta["sponsorshipIds"] = strings.Join(ids, ",")
	}
	return meta, nil
}

func (s *Server) handleCreateCheckout(c *gin.Context) {
	var req checkoutRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("%s", err))
		return
	}

	if req.OrganizerID == "" {
		s.fail(c, badRequest("organizerId is required"))
		return
	}

	items := make([]sponsorpay.LineItem, 0, len(req.Items))

	for _, it := range req.Items {
		price, err := sponsorpay.ParseCents(it.Price.String())

		if err != nil {
			s.fail(c, fmt.Errorf("%w: %w", sponsorpay.ErrInvalidItems, err))
			return
		}

		items = append(items, sponsorpay.LineItem{
			Name:     it.Name,
			Price:    price,
			Quantity: it.Quantity,
		})
	}

	meta, err := metadata(req.Metadata, req.SponsorshipIDs)

	if err != nil {
		s.fail(c, badRequest("%s", err))
		return
	}

	res, err := s.payments.CreateCheckout(c.Request.Context(), sponsorpay.CheckoutRequest{
		OrganizerID:   req.OrganizerID,
		Items:         items,
		CoverFees:     req.CoverFees,
		CustomerEmail: req.CustomerEmail,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
		Metadata:      meta,
	})

	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": res.SessionID, "url": res.URL})
}

func (s *Server) handleVerifySession(c *gin.Context) {
	sessionID := c.Query("sessionId")

	if sessionID == "" {
		s.fail(c, badRequest("sessionId is required"))
		return
	}

	// The sponsorships settled are always the ones recorded on the session.
	st, err := s.payments.VerifyStripeSession(c.Request.Context(), sessionID, nil)

	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": st.Settled, "count": st.Count})
}

type paymentRequest struct {
	OrganizerID    string      `json:"organizerId"`
	SourceID       string      `json:"sourceId"`
	Amount         json.Number `json:"amount"`
	SponsorshipIDs []string    `json:"sponsorshipIds"`
	CoverFees      bool        `json:"coverFees"`
	PayerEmail     string      `json:"payerEmail"`
}

func (s *Server) handleProcessPayment(c *gin.Context) {
	var req paymentRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("%s", err))
		return
	}

	if req.OrganizerID == "" || req.SourceID == "" {
		s.fail(c, badRequest("organizerId and sourceId are required"))
		return
	}

	amount, err := sponsorpay.ParseCents(req.Amount.String())

	if err != nil {
		s.fail(c, err)
		return
	}

	res, err := s.payments.ProcessSquarePayment(c.Request.Context(), sponsorpay.SquarePaymentRequest{
		OrganizerID:    req.OrganizerID,
		SourceID:       req.SourceID,
		Amount:         amount,
		SponsorshipIDs: req.SponsorshipIDs,
		CoverFees:      req.CoverFees,
		PayerEmail:     req.PayerEmail,
	})

	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   res.Settled,
		"paymentId": res.PaymentID,
		"status":    res.Status,
	})
}
