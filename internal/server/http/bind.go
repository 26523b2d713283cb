package httpserver

import (
	"bytes"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// bind decodes a JSON, urlencoded or multipart body into out.
// An empty body leaves out untouched.
func bind(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	return nil
}

// flag is a boolean sent either as a JSON bool or as "true"/"false" text.
type flag bool

func (f *flag) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*f = false
		return nil
	}
	v, err := strconv.ParseBool(string(b))
	if err != nil {
		return err
	}
	*f = flag(v)
	return nil
}

func (f *flag) UnmarshalJSON(b []byte) error {
	return f.UnmarshalText(bytes.Trim(b, `"`))
}

// sessionForm carries the caller's session token.
type sessionForm struct {
	UUID string `json:"uuid" form:"uuid"`
}
