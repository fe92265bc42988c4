package serverutils

import (
	"errors"

	"studykit-be/pkg/ai/pipeline"
	"studykit-be/pkg/llm"
	"studykit-be/pkg/store"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns an error returned by a handler into the JSON
// envelope with a status derived from the error.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var verr *ValidationError
		if errors.As(err, &verr) {
			return ctx.Status(fiber.StatusBadRequest).
				JSON(ErrorResponseWithData(fiber.StatusBadRequest, "Validation failed", verr.Fields))
		}

		code := StatusOf(err)
		message := err.Error()
		if kind := llm.KindOf(err); kind != llm.KindUnclassifiable && kind != llm.KindNone {
			message = llm.UserMessage(err)
		}
		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}

// StatusOf maps domain errors onto HTTP status codes.
func StatusOf(err error) int {
	var ferr *fiber.Error
	switch {
	case errors.As(err, &ferr):
		return ferr.Code

	case errors.Is(err, store.ErrSessionNotFound),
		errors.Is(err, store.ErrImageNotFound):
		return fiber.StatusNotFound

	case errors.Is(err, store.ErrInvalidLanguage),
		errors.Is(err, store.ErrInvalidTab),
		errors.Is(err, store.ErrInvalidOption),
		errors.Is(err, store.ErrUnknownQuestion),
		errors.Is(err, store.ErrBatchOutOfRange),
		errors.Is(err, pipeline.ErrEmptySpan),
		errors.Is(err, pipeline.ErrNotRetriable):
		return fiber.StatusBadRequest

	case errors.Is(err, store.ErrUploadSetFull),
		errors.Is(err, store.ErrNoImages),
		errors.Is(err, store.ErrOperationInFlight),
		errors.Is(err, store.ErrNoCompletedRun),
		errors.Is(err, store.ErrArtifactPresent),
		errors.Is(err, store.ErrExamNotAtEnd),
		errors.Is(err, pipeline.ErrRunSuperseded):
		return fiber.StatusConflict
	}

	switch llm.KindOf(err) {
	case llm.KindQuotaOrAuth:
		return fiber.StatusTooManyRequests
	case llm.KindMalformed:
		return fiber.StatusBadGateway
	case llm.KindTransport:
		return fiber.StatusServiceUnavailable
	case llm.KindEmptyResult:
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}
