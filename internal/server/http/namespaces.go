package httpserver

import (
	"github.com/gofiber/fiber/v2"

	"github.com/and161185/pkg-registry/internal/convert"
)

type namespaceForm struct {
	UUID        string `json:"uuid" form:"uuid"`
	Namespace   string `json:"namespace" form:"namespace"`
	Description string `json:"description" form:"description"`
}

func (s *Server) createNamespace(c *fiber.Ctx) error {
	var f namespaceForm
	if err := bind(c, &f); err != nil {
		return err
	}
	if _, err := s.svc.Namespaces.Create(c.UserContext(), f.UUID, f.Namespace, f.Description); err != nil {
		return err
	}
	return c.JSON(ok("namespace created successfully"))
}

func (s *Server) getNamespace(c *fiber.Ctx) error {
	d, err := s.svc.Namespaces.Get(c.UserContext(), c.Params("namespace"))
	if err != nil {
		return err
	}
	return c.JSON(dataReply{reply: ok("namespace found"), Data: convert.ToNamespace(d)})
}

func (s *Server) namespaceToken(c *fiber.Ctx) error {
	var f sessionForm
	if err := bind(c, &f); err != nil {
		return err
	}
	tok, err := s.svc.Tokens.IssueNamespaceToken(c.UserContext(), f.UUID, c.Params("namespace"))
	if err != nil {
		return err
	}
	return c.JSON(tokenReply{reply: ok("upload token created successfully"), UploadToken: tok})
}
