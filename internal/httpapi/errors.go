package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
)

// ResponseError is the JSON error body shape returned for every non-2xx
// response.
type ResponseError struct {
	Code    string `json:"code,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

func badRequest(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ResponseError{Code: code, Title: title, Message: message})
}

func notFound(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(ResponseError{Code: code, Title: title, Message: message})
}

func unprocessable(c *fiber.Ctx, code, title, message string) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(ResponseError{Code: code, Title: title, Message: message})
}

func preconditionFailed(c *fiber.Ctx, body any) error {
	return c.Status(fiber.StatusPreconditionFailed).JSON(body)
}

func internalServerError(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(ResponseError{Code: "ERR_INTERNAL", Title: "Internal Server Error", Message: message})
}

// WithError translates a typed apperr value into an HTTP response via a
// switch on its concrete type.
func WithError(c *fiber.Ctx, err error) error {
	var (
		notFoundErr      apperr.EntityNotFoundError
		validationErr    apperr.ValidationError
		conflictErr      apperr.EntityConflictError
		unprocessableErr apperr.UnprocessableOperationError
		keyValidityErr   apperr.KeyValidityError
		backendErr       apperr.BackendError
	)

	switch {
	case errors.As(err, &notFoundErr):
		return notFound(c, notFoundErr.Code, notFoundErr.Title, notFoundErr.Message)
	case errors.As(err, &validationErr):
		return badRequest(c, validationErr.Code, validationErr.Title, validationErr.Message)
	case errors.As(err, &conflictErr):
		return c.Status(fiber.StatusConflict).JSON(ResponseError{Code: conflictErr.Code, Title: conflictErr.Title, Message: conflictErr.Message})
	case errors.As(err, &unprocessableErr):
		return unprocessable(c, unprocessableErr.Code, unprocessableErr.Title, unprocessableErr.Message)
	case errors.As(err, &keyValidityErr):
		if keyValidityErr.Reason == apperr.ReasonBackendError {
			return internalServerError(c, keyValidityErr.Message)
		}

		return preconditionFailed(c, keyValidityErr)
	case errors.As(err, &backendErr):
		return internalServerError(c, backendErr.Message)
	default:
		return internalServerError(c, err.Error())
	}
}
