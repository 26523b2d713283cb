package httpserver

import (
	"github.com/gofiber/fiber/v2"

	"github.com/and161185/pkg-registry/internal/service"
)

type sessionReply struct {
	reply
	UUID     string `json:"uuid"`
	Username string `json:"username"`
}

type loginForm struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (s *Server) login(c *fiber.Ctx) error {
	var f loginForm
	if err := bind(c, &f); err != nil {
		return err
	}
	sess, err := s.svc.Auth.Login(c.UserContext(), f.Email, f.Password, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(sessionReply{reply: ok("login successful"), UUID: sess.Token, Username: sess.Username})
}

type signupForm struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	UUID     string `json:"uuid" form:"uuid"`
}

func (s *Server) signup(c *fiber.Ctx) error {
	var f signupForm
	if err := bind(c, &f); err != nil {
		return err
	}
	sess, err := s.svc.Auth.Signup(c.UserContext(), service.SignupInput{
		Username: f.Username,
		Email:    f.Email,
		Password: f.Password,
		Token:    f.UUID,
	})
	if err != nil {
		return err
	}
	msg := "signup successful"
	if sess.Token == "" {
		msg = "admin account created, check your email to set a password"
	}
	return c.JSON(sessionReply{reply: ok(msg), UUID: sess.Token, Username: sess.Username})
}

func (s *Server) logout(c *fiber.Ctx) error {
	var f sessionForm
	if err := bind(c, &f); err != nil {
		return err
	}
	if err := s.svc.Auth.Logout(c.UserContext(), f.UUID); err != nil {
		return err
	}
	return c.JSON(ok("logout successful"))
}

type resetForm struct {
	UUID        string `json:"uuid" form:"uuid"`
	Password    string `json:"password" form:"password"`
	OldPassword string `json:"oldpassword" form:"oldpassword"`
}

func (s *Server) resetPassword(c *fiber.Ctx) error {
	var f resetForm
	if err := bind(c, &f); err != nil {
		return err
	}
	if err := s.svc.Auth.ResetPassword(c.UserContext(), f.UUID, f.Password, f.OldPassword); err != nil {
		return err
	}
	return c.JSON(ok("password reset successful"))
}

type forgotForm struct {
	Email string `json:"email" form:"email"`
}

func (s *Server) forgotPassword(c *fiber.Ctx) error {
	var f forgotForm
	if err := bind(c, &f); err != nil {
		return err
	}
	if err := s.svc.Auth.ForgotPassword(c.UserContext(), f.Email); err != nil {
		return err
	}
	return c.JSON(ok("password reset link sent to your email"))
}
