package serverutils

import (
	"errors"

	"ai-chatflow-be/pkg/chat"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	var (
		fiberErr      *fiber.Error
		validationErr *ValidationError
		authErr       *chat.AuthError
		providerErr   *chat.ProviderError
		persistErr    *chat.PersistenceError
	)

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &validationErr), errors.Is(err, chat.ErrEmptyInput):
		return fiber.StatusBadRequest
	case errors.As(err, &authErr):
		return fiber.StatusUnauthorized
	case errors.Is(err, chat.ErrConversationNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, chat.ErrTurnInFlight):
		return fiber.StatusConflict
	case errors.As(err, &providerErr):
		return fiber.StatusBadGateway
	case errors.As(err, &persistErr):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code := StatusFor(err)
		message := err.Error()

		var authErr *chat.AuthError
		switch {
		case errors.As(err, &authErr):
			message = authErr.Reason
		case code == fiber.StatusBadGateway:
			message = "The assistant is unavailable right now. Please try again."
		case code == fiber.StatusServiceUnavailable:
			message = "Could not reach the conversation store. Please try again."
		case code == fiber.StatusInternalServerError:
			message = "Internal server error"
		}

		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}
