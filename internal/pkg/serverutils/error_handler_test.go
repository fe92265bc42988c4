package serverutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"studykit-be/pkg/ai/pipeline"
	"studykit-be/pkg/llm"
	"studykit-be/pkg/store"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"fiber error keeps its code", fiber.NewError(fiber.StatusRequestEntityTooLarge, "big"), fiber.StatusRequestEntityTooLarge},
		{"missing session", store.ErrSessionNotFound, fiber.StatusNotFound},
		{"wrapped missing image", fmt.Errorf("remove: %w", store.ErrImageNotFound), fiber.StatusNotFound},
		{"bad option", store.ErrInvalidOption, fiber.StatusBadRequest},
		{"empty span", pipeline.ErrEmptySpan, fiber.StatusBadRequest},
		{"full upload set", store.ErrUploadSetFull, fiber.StatusConflict},
		{"busy", store.ErrOperationInFlight, fiber.StatusConflict},
		{"superseded", pipeline.ErrRunSuperseded, fiber.StatusConflict},
		{"quota", llm.Wrap(llm.ErrQuotaOrAuthFailure, "gemini", "generate", errors.New("429")), fiber.StatusTooManyRequests},
		{"malformed", fmt.Errorf("extraction: %w", llm.ErrMalformedResponse), fiber.StatusBadGateway},
		{"transport", llm.ErrTransportFailure, fiber.StatusServiceUnavailable},
		{"empty result", llm.ErrEmptyResult, fiber.StatusUnprocessableEntity},
		{"anything else", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

type sample struct {
	Language string `json:"language" validate:"required,oneof=BN EN"`
	Span     string `json:"span" validate:"max=3"`
}

func TestValidateRequest(t *testing.T) {
	require.NoError(t, ValidateRequest(&sample{Language: "BN", Span: "ab"}))

	err := ValidateRequest(&sample{Span: "abcd"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is required", verr.Fields["Language"])
	assert.Equal(t, "must be at most 3", verr.Fields["Span"])
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/validation", func(c *fiber.Ctx) error { return ValidateRequest(&sample{}) })
	app.Get("/llm", func(c *fiber.Ctx) error {
		return fmt.Errorf("gemini: raw upstream detail: %w", llm.ErrTransportFailure)
	})
	app.Get("/ok", func(c *fiber.Ctx) error { return c.JSON(SuccessResponse("fine", nil)) })

	tests := []struct {
		path        string
		wantStatus  int
		wantMessage string
	}{
		{"/validation", fiber.StatusBadRequest, "Validation failed"},
		{"/llm", fiber.StatusServiceUnavailable, llm.UserMessage(llm.ErrTransportFailure)},
		{"/ok", fiber.StatusOK, "fine"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			var body Response
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantMessage, body.Message)
			assert.Equal(t, tt.wantStatus == fiber.StatusOK, body.Success)
		})
	}
}
