package sponsorpay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrConfiguration denotes that the platform credentials required for an
	// operation have not been configured.
	ErrConfiguration = errors.New("payment provider not configured")

	// ErrInvalidState denotes an OAuth state parameter that could not be
	// decoded, or verified.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrNotConnected denotes that the organizer has no connected gateway for
	// the requested provider.
	ErrNotConnected = errors.New("payment gateway not connected")

	// ErrNeedsReconnect denotes that stored credentials can no longer be
	// refreshed, and the organizer has to go through OAuth again.
	ErrNeedsReconnect = errors.New("payment gateway needs reconnecting")

	// ErrRefreshFailed denotes that the provider rejected a token refresh.
	ErrRefreshFailed = errors.New("access token refresh failed")

	// ErrInvalidItems denotes a malformed checkout request.
	ErrInvalidItems = errors.New("invalid checkout items")

	ErrUnsupportedProvider = errors.New("unsupported payment provider")
	ErrUnknownOrganizer    = errors.New("unknown organizer")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// ProviderError is the normalized form of any error returned by a payment
// provider. Call sites should only ever inspect this, and never the error
// shapes of the underlying provider.
type ProviderError struct {
	Provider  Provider
	Status    int    // Status is the HTTP status of the provider response, 0 if there was none.
	Code      string // Code is the provider's error code, if any.
	Message   string
	Retryable bool // Retryable is true if no request reached the provider.
	Raw       []byte
}

func (e *ProviderError) Error() string {
	msg := e.Message

	if msg == "" {
		msg = "request failed"
	}

	if e.Code != "" {
		return fmt.Sprintf("%s provider error %s: %s", e.Provider, e.Code, msg)
	}
	return fmt.Sprintf("%s provider error: %s", e.Provider, msg)
}

// transportError converts an error that occurred before a provider response
// was received into a ProviderError. Timeouts are flagged as such.
func transportError(p Provider, err error) *ProviderError {
	var nerr net.Error

	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return &ProviderError{
			Provider:  p,
			Code:      "timeout",
			Message:   "provider request timed out",
			Retryable: true,
		}
	}
	return &ProviderError{
		Provider:  p,
		Code:      "unreachable",
		Message:   err.Error(),
		Retryable: true,
	}
}

// HTTPStatus returns the HTTP status code an API endpoint should respond with
// for the given error.
func HTTPStatus(err error) int {
	var perr *ProviderError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &perr):
		if perr.Code == "timeout" {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	case errors.Is(err, ErrInvalidItems),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrNeedsReconnect),
		errors.Is(err, ErrRefreshFailed),
		errors.Is(err, ErrUnsupportedProvider),
		errors.Is(err, ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownOrganizer):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorMessage returns the message that is safe to send back to an API
// client for the given error. Provider errors pass through the provider's
// message, everything else unexpected gets a generic message.
func ErrorMessage(err error) string {
	var perr *ProviderError

	if errors.As(err, &perr) {
		if perr.Message != "" {
			return perr.Message
		}
		return "payment provider request failed"
	}

	for _, known := range []error{
		ErrConfiguration,
		ErrInvalidState,
		ErrNotConnected,
		ErrNeedsReconnect,
		ErrRefreshFailed,
		ErrInvalidItems,
		ErrInvalidAmount,
		ErrUnsupportedProvider,
		ErrUnknownOrganizer,
	} {
		if errors.Is(err, known) {
			return err.Error()
		}
	}
	return "internal error"
}

// CallbackErrorCode returns the code carried back to the frontend in the
// {provider}_error query parameter when an OAuth callback fails.
func CallbackErrorCode(err error) string {
	var perr *ProviderError

	switch {
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrConfiguration):
		return "not_configured"
	case errors.As(err, &perr) && perr.Code != "":
		return perr.Code
	default:
		return "connection_failed"
	}
}
