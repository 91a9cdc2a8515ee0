package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/episodeline/pipeline/internal/apperr"
	"github.com/episodeline/pipeline/pkg/response"
)

// writeError maps a service error to its HTTP response.
func writeError(c *fiber.Ctx, err error) error {
	msg := apperr.Message(err)
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return response.ValidationError(c, msg, apperr.FieldsOf(err))
	case apperr.KindNotFound:
		return response.NotFound(c, msg)
	case apperr.KindConflict:
		return response.Conflict(c, msg)
	case apperr.KindInvalidState:
		return response.InvalidState(c, msg)
	case apperr.KindUpstream, apperr.KindParse:
		return response.UpstreamError(c, msg)
	default:
		return response.ServiceError(c, "Internal server error")
	}
}
