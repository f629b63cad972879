package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/nodeledger/nodeledger/internal/exception"
	"github.com/nodeledger/nodeledger/internal/logging"
	"github.com/nodeledger/nodeledger/internal/models"
)

// StatusFor maps an exception code to its HTTP status
func StatusFor(code string) int {
	switch code {
	case exception.CodeComputeHostNotFound,
		exception.CodeComputeNodeNotFound,
		exception.CodeServiceNotFound:
		return fiber.StatusNotFound
	case exception.CodeValueConversion,
		exception.CodeReadOnlyField,
		exception.CodeIncompatibleObjectVersion:
		return fiber.StatusBadRequest
	case exception.CodeObjectActionError:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every handler error as an ErrorResponse
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		detail := models.ErrorDetail{
			Code:    "INTERNAL_ERROR",
			Message: "Internal Server Error",
			Path:    c.Path(),
		}

		var appErr *exception.Error
		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &appErr):
			status = StatusFor(appErr.Code)
			detail.Code = appErr.Code
			detail.Message = appErr.Message
			detail.Details = appErr.Details
		case errors.As(err, &fiberErr):
			status = fiberErr.Code
			detail.Code = "ERROR"
			detail.Message = fiberErr.Message
		}

		log := logger.WithContext(c.UserContext())
		if status >= fiber.StatusInternalServerError {
			log.Error("Request error", "path", c.Path(), "method", c.Method(), "status", status, "error", err)
		} else {
			log.Debug("Request rejected", "path", c.Path(), "method", c.Method(), "status", status, "error", err)
		}

		return c.Status(status).JSON(models.ErrorResponse{Error: detail})
	}
}
