package api

import (
	"context"
	"errors"

	"github.com/bobby-s-dev/wsenergy/internal/services"
	"github.com/bobby-s-dev/wsenergy/pkg/client"
	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
)

// statusFor maps a service error to the HTTP status returned to clients.
func statusFor(err error) int {
	var statusErr *client.StatusError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, client.ErrTokenUnavailable),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, services.ErrInvalidPayload),
		errors.Is(err, client.ErrMalformedResponse),
		errors.As(err, &statusErr):
		return fiber.StatusBadGateway
	}

	// Fiber's own errors (404, 405) keep their code
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}

	return fiber.StatusInternalServerError
}
