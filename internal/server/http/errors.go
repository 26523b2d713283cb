package httpserver

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"github.com/and161185/pkg-registry/internal/errs"
)

// reply is the common envelope of every response.
type reply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type dataReply struct {
	reply
	Data any `json:"data"`
}

func ok(msg string) reply { return reply{Code: "ok", Message: msg} }

// errorStatus maps service sentinels to HTTP statuses and machine codes.
// Checked in order.
var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{errs.ErrMissingField, fiber.StatusBadRequest, "missing_field"},
	{errs.ErrInvalidVersion, fiber.StatusBadRequest, "invalid_version"},
	{errs.ErrInvalidLicense, fiber.StatusBadRequest, "invalid_license"},
	{errs.ErrAlreadyExists, fiber.StatusBadRequest, "conflict"},
	{errs.ErrVersionConflict, fiber.StatusConflict, "conflict"},
	{errs.ErrInvalidCredentials, fiber.StatusUnauthorized, "invalid_credentials"},
	{errs.ErrInvalidToken, fiber.StatusUnauthorized, "invalid_token"},
	{errs.ErrTokenExpired, fiber.StatusUnauthorized, "token_expired"},
	{errs.ErrUnauthorized, fiber.StatusUnauthorized, "unauthorized"},
	{errs.ErrNotFound, fiber.StatusNotFound, "not_found"},
	{errs.ErrRateLimited, fiber.StatusTooManyRequests, "rate_limited"},
	{errs.ErrInternal, fiber.StatusInternalServerError, "internal_failure"},
}

// statusOf returns the status, code and client message of err.
func statusOf(err error) (int, string, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.code, err.Error()
		}
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := strings.ToLower(strings.ReplaceAll(utils.StatusMessage(fe.Code), " ", "_"))
		return fe.Code, code, fe.Message
	}
	return fiber.StatusInternalServerError, "internal", "internal error"
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status, code, msg := statusOf(err)
	if status >= fiber.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("trace_id", traceID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(reply{Code: code, Message: msg})
}
