package httpserver

import (
	"github.com/gofiber/fiber/v2"

	"github.com/and161185/pkg-registry/internal/convert"
)

func (s *Server) profile(c *fiber.Ctx) error {
	p, err := s.svc.Users.Profile(c.UserContext(), c.Params("username"))
	if err != nil {
		return err
	}
	return c.JSON(dataReply{reply: ok("user found"), Data: convert.ToProfile(p)})
}

func (s *Server) account(c *fiber.Ctx) error {
	var f sessionForm
	if err := bind(c, &f); err != nil {
		return err
	}
	u, err := s.svc.Users.Account(c.UserContext(), f.UUID)
	if err != nil {
		return err
	}
	return c.JSON(dataReply{reply: ok("account found"), Data: convert.ToAccount(u)})
}

func (s *Server) deleteSelf(c *fiber.Ctx) error {
	var f sessionForm
	if err := bind(c, &f); err != nil {
		return err
	}
	if err := s.svc.Users.DeleteSelf(c.UserContext(), f.UUID); err != nil {
		return err
	}
	return c.JSON(ok("user deleted"))
}

type adminForm struct {
	UUID     string `json:"uuid" form:"uuid"`
	Username string `json:"username" form:"username"`
	NewEmail string `json:"new_email" form:"new_email"`
}

func (s *Server) adminDelete(c *fiber.Ctx) error {
	var f adminForm
	if err := bind(c, &f); err != nil {
		return err
	}
	if err := s.svc.Users.AdminDelete(c.UserContext(), f.UUID, f.Username); err != nil {
		return err
	}
	return c.JSON(ok("user deleted"))
}

func (s *Server) transfer(c *fiber.Ctx) error {
	var f adminForm
	if err := bind(c, &f); err != nil {
		return err
	}
	if err := s.svc.Users.Transfer(c.UserContext(), f.UUID, f.Username, f.NewEmail); err != nil {
		return err
	}
	return c.JSON(ok("account transferred, reset link sent"))
}

func (s *Server) invitations(c *fiber.Ctx) error {
	inv, err := s.svc.Users.Invitations(c.UserContext(), c.Query("uuid"), c.Params("username"))
	if err != nil {
		return err
	}
	return c.JSON(dataReply{reply: ok("pending invitations"), Data: convert.ToInvitations(inv)})
}

type invitationForm struct {
	UUID      string `json:"uuid" form:"uuid"`
	Namespace string `json:"namespace" form:"namespace"`
	Package   string `json:"package" form:"package"`
	Accept    flag   `json:"accept" form:"accept"`
}

func (s *Server) resolveInvitation(c *fiber.Ctx) error {
	var f invitationForm
	if err := bind(c, &f); err != nil {
		return err
	}
	accept := bool(f.Accept)
	err := s.svc.Users.ResolveInvitation(c.UserContext(), f.UUID, c.Params("username"), f.Namespace, f.Package, accept)
	if err != nil {
		return err
	}
	if accept {
		return c.JSON(ok("invitation accepted"))
	}
	return c.JSON(ok("invitation declined"))
}
