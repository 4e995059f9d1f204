package handlers

import (
	"errors"

	errs "crest/internal/errors"
	"crest/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// statusForCode maps domain error codes onto HTTP statuses. Anything not
// listed is a server error.
var statusForCode = map[string]int{
	"INVALID_AMOUNT":            fiber.StatusBadRequest,
	"INVALID_ADDRESS":           fiber.StatusBadRequest,
	"INVALID_INPUT":             fiber.StatusBadRequest,
	"INSUFFICIENT_BALANCE":      fiber.StatusBadRequest,
	"PENDING_WITHDRAWAL_EXISTS": fiber.StatusConflict,
	"EMAIL_TAKEN":               fiber.StatusConflict,
	"WALLET_NOT_FOUND":          fiber.StatusNotFound,
	"TRANSFER_NOT_FOUND":        fiber.StatusNotFound,
	"BRIDGE_UNAVAILABLE":        fiber.StatusServiceUnavailable,
}

// domainError renders a service error. Domain errors carry their own HTTP
// status; everything else is masked as an internal error.
func domainError(c *fiber.Ctx, err error) error {
	var domainErr *errs.DomainError
	if errors.As(err, &domainErr) {
		status, ok := statusForCode[domainErr.Code]
		if !ok {
			status = fiber.StatusInternalServerError
		}
		return c.Status(status).JSON(fiber.Map{
			"error": domainErr.Message,
			"code":  domainErr.Code,
		})
	}
	return response.ServerError(c, "internal error")
}
