// Package httpserver exposes the registry API over HTTP.
package httpserver

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/and161185/pkg-registry/internal/service"
)

// DefaultBodyLimit caps request bodies, tarball uploads included.
const DefaultBodyLimit = 16 << 20

// Services are the handlers' dependencies.
type Services struct {
	Auth       service.AuthService
	Packages   service.PackageService
	Namespaces service.NamespaceService
	Tokens     service.TokenService
	Users      service.UserService
}

// Server wires services into HTTP handlers.
type Server struct {
	svc Services
	log *zap.Logger
	app *fiber.App
}

// New constructs the HTTP server. bodyLimit <= 0 means DefaultBodyLimit.
func New(svc Services, log *zap.Logger, bodyLimit int) *Server {
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyLimit
	}
	s := &Server{svc: svc, log: log}
	s.app = fiber.New(fiber.Config{
		AppName:               "pkg-registry",
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(AccessLog(log), Recover(log))
	s.routes()
	return s
}

func (s *Server) routes() {
	auth := s.app.Group("/auth")
	auth.Post("/login", s.login)
	auth.Post("/signup", s.signup)
	auth.Post("/logout", s.logout)
	auth.Post("/reset-password", s.resetPassword)
	auth.Post("/forgot-password", s.forgotPassword)

	s.app.Get("/tarballs/:id", s.download)

	pk := s.app.Group("/packages")
	pk.Get("/", s.searchPackages)
	pk.Post("/", s.upload)
	pk.Put("/", s.updatePackage)
	pk.Get("/list", s.listPackages)
	pk.Get("/:namespace/:name", s.getPackage)
	pk.Post("/:namespace/:name", s.checkCached)
	pk.Post("/:namespace/:name/delete", s.deletePackage)
	pk.Post("/:namespace/:name/uploadToken", s.packageToken)
	pk.Post("/:namespace/:name/maintainers", s.inviteMaintainer)
	pk.Get("/:namespace/:name/:version", s.getVersion)
	pk.Post("/:namespace/:name/:version/delete", s.deleteVersion)

	ns := s.app.Group("/namespaces")
	ns.Post("/", s.createNamespace)
	ns.Get("/:namespace", s.getNamespace)
	ns.Post("/:namespace/uploadToken", s.namespaceToken)

	us := s.app.Group("/users")
	us.Post("/delete", s.deleteSelf)
	us.Post("/account", s.account)
	us.Post("/admin", s.adminDelete)
	us.Post("/admin/transfer", s.transfer)
	us.Get("/:username", s.profile)
	us.Get("/:username/maintainer", s.invitations)
	us.Post("/:username/maintainer", s.resolveInvitation)
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error { return s.app.ShutdownWithContext(ctx) }
