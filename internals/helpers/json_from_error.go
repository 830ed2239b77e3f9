package helper

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"condoku_backend/internals/features/billing/billerr"
)

// JsonFromError maps a service error onto the standard error envelope.
// Unknown errors are logged and answered with a bare 500.
func JsonFromError(c *fiber.Ctx, err error) error {
	var ve *billerr.ValidationError
	var fe *fiber.Error

	switch {
	case errors.As(err, &ve):
		return JsonValidationError(c, ve.Fields())
	case errors.As(err, &fe):
		return JsonError(c, fe.Code, fe.Message)
	case errors.Is(err, billerr.ErrNotFound):
		return JsonError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, billerr.ErrDuplicateIdentifier),
		errors.Is(err, billerr.ErrInvalidTransition),
		errors.Is(err, billerr.ErrInvoiceSettled),
		errors.Is(err, billerr.ErrScanInProgress):
		return JsonError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, billerr.ErrPaymentsDisabled):
		return JsonError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return JsonError(c, fiber.StatusRequestTimeout, "request timed out")
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	return JsonError(c, fiber.StatusInternalServerError, "")
}
