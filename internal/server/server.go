// Package server implements the HTTP API of the sponsorship payment flows.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/andrewpillar/sponsorpay"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Payments is the set of payment operations the API exposes, this is
// implemented by *sponsorpay.Service.
type Payments interface {
	BeginConnect(ctx context.Context, p sponsorpay.Provider, organizerID string) (string, error)
	HandleCallback(ctx context.Context, p sponsorpay.Provider, code, state string) (sponsorpay.CallbackResult, error)
	Disconnect(ctx context.Context, p sponsorpay.Provider, organizerID string) error
	ConnectionStatus(ctx context.Context, p sponsorpay.Provider, organizerID string) (sponsorpay.ConnectionStatus, error)
	CreateCheckout(ctx context.Context, req sponsorpay.CheckoutRequest) (sponsorpay.CheckoutResult, error)
	VerifyStripeSession(ctx context.Context, sessionID string, sponsorshipIDs []string) (sponsorpay.Settlement, error)
	ProcessSquarePayment(ctx context.Context, req sponsorpay.SquarePaymentRequest) (sponsorpay.SquarePaymentResult, error)
}

// Server serves the payment API.
type Server struct {
	payments    Payments
	frontendURL string
	log         *slog.Logger
	router      *gin.Engine
}

// New returns a Server for the given payments. OAuth callbacks redirect back
// to the settings page under frontendURL.
func New(payments Payments, frontendURL string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		payments:    payments,
		frontendURL: frontendURL,
		log:         log,
		router:      router,
	}

	router.Use(s.logRequest)

	router.GET("/healthz", s.handleHealth)

	for _, p := range []sponsorpay.Provider{sponsorpay.ProviderStripe, sponsorpay.ProviderSquare} {
		g := router.Group("/" + p.String())
		{
			g.GET("/connect", s.handleConnect(p))
			g.GET("/callback", s.handleCallback(p))
			g.POST("/disconnect", s.handleDisconnect(p))
			g.GET("/status", s.handleStatus(p))
		}
	}

	router.POST("/stripe/create-checkout", s.handleCreateCheckout)
	router.GET("/stripe/verify-session", s.handleVerifySession)
	router.POST("/square/process-payment", s.handleProcessPayment)

	return s
}

// Handler returns the HTTP handler of the server, instrumented for tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "sponsorpay",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func (s *Server) logRequest(c *gin.Context) {
	start := time.Now()

	c.Next()

	s.log.InfoContext(c.Request.Context(), "request handled",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", time.Since(start)),
	)
}
