package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/pkg-registry/internal/crypto"
	"github.com/and161185/pkg-registry/internal/errs"
	"github.com/and161185/pkg-registry/internal/limiter"
	"github.com/and161185/pkg-registry/internal/mail"
	"github.com/and161185/pkg-registry/internal/model"
	"github.com/and161185/pkg-registry/internal/repository"
)

// AuthConfig holds account settings.
type AuthConfig struct {
	// Salt is mixed into every password hash.
	Salt string `mapstructure:"salt"`
	// AdminPassword bootstraps admin accounts: a signup whose password hashes
	// to the same value gets the admin role and a forced reset.
	AdminPassword string `mapstructure:"admin_password"`
	// Host prefixes reset links.
	Host string `mapstructure:"host"`
}

// SignupInput carries the signup form.
type SignupInput struct {
	Username string
	Email    string
	Password string
	Token    string // optional client-chosen session token
}

// AuthService defines account and session operations.
type AuthService interface {
	// Login authenticates by email and password, rate limited per (email, ip).
	Login(ctx context.Context, email, password, ip string) (model.Session, error)
	// Signup creates an account that starts logged in.
	Signup(ctx context.Context, in SignupInput) (model.Session, error)
	// Logout ends one session of the token holder.
	Logout(ctx context.Context, token string) error
	// ResetPassword replaces the password and ends all sessions.
	ResetPassword(ctx context.Context, token, newPassword, oldPassword string) error
	// ForgotPassword mints a session and mails a reset link.
	ForgotPassword(ctx context.Context, email string) error
	// Authenticate resolves a session token.
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

type AuthServiceImpl struct {
	users repository.UserRepository
	lim   limiter.Limiter
	mail  mail.Sender
	cfg   AuthConfig
	log   *zap.Logger
	now   func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, lim limiter.Limiter, sender mail.Sender, cfg AuthConfig, log *zap.Logger) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{users: users, lim: lim, mail: sender, cfg: cfg, log: log, now: time.Now}
}

func (s *AuthServiceImpl) hash(password string) []byte {
	return pkgcrypto.HashPassword([]byte(password), []byte(s.cfg.Salt))
}

func (s *AuthServiceImpl) isAdminCredential(hash []byte) bool {
	if s.cfg.AdminPassword == "" {
		return false
	}
	return subtle.ConstantTimeCompare(hash, s.hash(s.cfg.AdminPassword)) == 1
}

// newSessionToken mints a token no user currently holds.
func (s *AuthServiceImpl) newSessionToken(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tok, err := pkgcrypto.NewToken()
		if err != nil {
			return "", err
		}
		taken, err := s.users.SessionTokenExists(ctx, tok)
		if err != nil {
			return "", err
		}
		if !taken {
			return tok, nil
		}
	}
}

// Login authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, email, password, ip string) (model.Session, error) {
	email = normalizeEmail(email)
	if err := required(validation.Errors{
		"email":    validation.Validate(email, validation.Required),
		"password": validation.Validate(password, validation.Required),
	}); err != nil {
		return model.Session{}, err
	}
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Session{}, err
	}
	if !allowed {
		return model.Session{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Session{}, err
	}
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), []byte(s.cfg.Salt), u.PwdHash) {
		blocked, _, ferr := s.lim.Failure(ctx, email, ipHash)
		if ferr != nil {
			s.log.Error("limiter failure", zap.Error(ferr))
		} else if blocked {
			return model.Session{}, errs.ErrRateLimited
		}
		return model.Session{}, errs.ErrInvalidCredentials
	}

	if err := s.lim.Success(ctx, email, ipHash); err != nil {
		s.log.Error("limiter success", zap.Error(err))
	}

	candidate, err := s.newSessionToken(ctx)
	if err != nil {
		return model.Session{}, err
	}
	tok, _, err := s.users.Login(ctx, u.ID, candidate, s.now().UTC())
	if err != nil {
		return model.Session{}, err
	}
	return model.Session{Token: tok, Username: u.Username}, nil
}

// Signup registers a user; admin bootstrap credentials trigger a reset mail.
func (s *AuthServiceImpl) Signup(ctx context.Context, in SignupInput) (model.Session, error) {
	email := normalizeEmail(in.Email)
	if err := required(validation.Errors{
		"username": validation.Validate(in.Username, validation.Required),
		"email":    validation.Validate(email, validation.Required),
		"password": validation.Validate(in.Password, validation.Required),
	}); err != nil {
		return model.Session{}, err
	}

	taken, err := s.users.ExistsByUsernameOrEmail(ctx, in.Username, email)
	if err != nil {
		return model.Session{}, err
	}
	if taken {
		return model.Session{}, fmt.Errorf("username or email: %w", errs.ErrAlreadyExists)
	}

	tok := in.Token
	if tok == "" {
		if tok, err = s.newSessionToken(ctx); err != nil {
			return model.Session{}, err
		}
	} else if used, err := s.users.SessionTokenExists(ctx, tok); err != nil {
		return model.Session{}, err
	} else if used {
		return model.Session{}, fmt.Errorf("session token: %w", errs.ErrAlreadyExists)
	}

	hash := s.hash(in.Password)
	roles := model.RoleUser
	admin := s.isAdminCredential(hash)
	if admin {
		roles |= model.RoleAdmin
	}
	now := s.now().UTC()
	u := &model.User{
		ID:           model.NewUserID(),
		Username:     in.Username,
		Email:        email,
		PwdHash:      hash,
		Roles:        roles,
		SessionToken: tok,
		LoginCount:   1,
		LoginAt:      &now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return model.Session{}, err
	}
	if admin {
		// force a password change away from the bootstrap credential;
		// a lost mail is resent by forgot-password
		if err := s.ForgotPassword(ctx, email); err != nil {
			s.log.Error("admin reset mail", zap.String("username", u.Username), zap.Error(err))
		}
		return model.Session{Username: u.Username}, nil
	}
	return model.Session{Token: tok, Username: u.Username}, nil
}

// Logout decrements the login counter of the token holder.
func (s *AuthServiceImpl) Logout(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("session: %w", errs.ErrNotFound)
	}
	u, err := s.users.GetBySessionToken(ctx, token)
	if err != nil {
		return notFound("session", err)
	}
	_, err = s.users.Logout(ctx, u.ID, s.now().UTC())
	return err
}

// ResetPassword checks the optional old password and stores the new one.
func (s *AuthServiceImpl) ResetPassword(ctx context.Context, token, newPassword, oldPassword string) error {
	if err := required(validation.Errors{
		"uuid":     validation.Validate(token, validation.Required),
		"password": validation.Validate(newPassword, validation.Required),
	}); err != nil {
		return err
	}
	u, err := s.users.GetBySessionToken(ctx, token)
	if err != nil {
		return notFound("session", err)
	}
	if oldPassword != "" && !pkgcrypto.VerifyPassword([]byte(oldPassword), []byte(s.cfg.Salt), u.PwdHash) {
		return errs.ErrInvalidCredentials
	}
	return s.users.SetPassword(ctx, u.ID, s.hash(newPassword))
}

// ForgotPassword logs the user in with a fresh token and mails the reset link.
func (s *AuthServiceImpl) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("email: %w", errs.ErrMissingField)
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return notFound("user", err)
	}
	tok, err := s.newSessionToken(ctx)
	if err != nil {
		return err
	}
	if err := s.users.SetSession(ctx, u.ID, tok, 1); err != nil {
		return err
	}
	if err := s.mail.Send(ctx, mail.ResetMessage(u.Email, ResetLink(s.cfg.Host, tok))); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

// Authenticate resolves a session token; ErrUnauthorized when unknown.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, token string) (*model.User, error) {
	return sessionUser(ctx, s.users, token)
}

// ResetLink formats the password reset url.
func ResetLink(host, token string) string {
	return host + "/account/reset-password/" + token
}
