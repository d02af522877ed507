package handler

import (
	"errors"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/giftcard-ledger/internal/service"
)

// errorStatus maps a service error to its HTTP status. Errors of no known
// kind are internal.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrPINLocked):
		return fiber.StatusTooManyRequests
	case errors.Is(err, service.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrStateConflict),
		errors.Is(err, service.ErrAuthentication),
		errors.Is(err, service.ErrExhausted):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// writeError renders err as {"error": ...}. Internal errors are logged and
// their detail hidden from the caller.
func writeError(c *fiber.Ctx, err error, op string) error {
	status := errorStatus(err)
	if status == fiber.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("op", op).
			Str("request_id", requestID(c)).
			Msg("request failed")
		return c.Status(status).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// formatValidationError turns the first validator failure into a message.
// Field names are the JSON names registered by validator.New.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request"
	}
	fe := ve[0]
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return "invalid request: " + field + " is required"
	case "required_without":
		return "invalid request: card_number or code is required"
	case "notblank":
		return "invalid request: " + field + " cannot be blank"
	case "max":
		if fe.Kind() == reflect.String {
			return "invalid request: " + field + " exceeds maximum length of " + fe.Param()
		}
		return "invalid request: " + field + " must be at most " + fe.Param()
	case "pin":
		return "invalid request: pin must be 4 digits"
	case "gt":
		return "invalid request: " + field + " must be positive"
	case "ne":
		return "invalid request: " + field + " must be non-zero"
	case "min":
		return "invalid request: " + field + " must be at least " + fe.Param()
	case "oneof":
		return "invalid request: " + field + " must be one of " + fe.Param()
	case "uuid":
		return "invalid request: " + field + " must be a UUID"
	case "url":
		return "invalid request: " + field + " must be a URL"
	}
	return "invalid request: " + field + " is invalid"
}
