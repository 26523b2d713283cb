// Package mail delivers account emails such as password reset links.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
	"go.uber.org/zap"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("mail transport unavailable")

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Config holds SMTP settings. An empty Host selects the log sender.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// DumpBodies makes the log sender write message bodies at debug level.
	// Bodies carry live reset tokens: local development only.
	DumpBodies bool `mapstructure:"dump_bodies"`
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends mail through a relay.
type SMTP struct {
	cfg  Config
	send sendFunc
}

// NewSMTP builds an SMTP sender.
func NewSMTP(cfg Config) *SMTP {
	return &SMTP{cfg: cfg, send: smtp.SendMail}
}

// Send implements Sender.
func (s *SMTP) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.send(addr, auth, s.cfg.From, []string{m.To}, compose(s.cfg.From, m)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", m.To, err)
	}
	return nil
}

func compose(from string, m Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + m.To + "\r\n")
	b.WriteString("Subject: " + m.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// Breaker wraps a Sender with a circuit breaker that trips after 5 consecutive failures.
type Breaker struct {
	next Sender
	cb   *circuit.Breaker
}

// NewBreaker wraps next.
func NewBreaker(next Sender) *Breaker {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	return &Breaker{
		next: next,
		cb: circuit.NewBreakerWithOptions(&circuit.Options{
			BackOff:    expBackoff,
			ShouldTrip: circuit.ThresholdTripFunc(5),
		}),
	}
}

// Send implements Sender.
func (b *Breaker) Send(ctx context.Context, m Message) error {
	if !b.cb.Ready() {
		return ErrUnavailable
	}
	return b.cb.Call(func() error { return b.next.Send(ctx, m) }, 0)
}

// Tripped reports whether the breaker is open.
func (b *Breaker) Tripped() bool { return b.cb.Tripped() }

// Log records messages instead of delivering them. Bodies are never logged
// unless dump is set, and then only at debug level.
type Log struct {
	log  *zap.Logger
	dump bool
}

// NewLog builds a log-only sender.
func NewLog(log *zap.Logger, dump bool) *Log { return &Log{log: log, dump: dump} }

// Send implements Sender.
func (l *Log) Send(_ context.Context, m Message) error {
	l.log.Info("mail not delivered, smtp disabled", zap.String("to", m.To), zap.String("subject", m.Subject))
	if l.dump {
		l.log.Debug("mail body", zap.String("to", m.To), zap.String("body", m.Body))
	}
	return nil
}

// New picks the transport for cfg.
func New(cfg Config, log *zap.Logger) Sender {
	if cfg.Host == "" {
		return NewLog(log, cfg.DumpBodies)
	}
	return NewBreaker(NewSMTP(cfg))
}

// ResetMessage builds the password reset email.
func ResetMessage(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Reset your password",
		Body:    "A password reset was requested for your account.\nOpen the link below to choose a new password:\n\n" + link + "\n",
	}
}
