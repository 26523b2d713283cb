package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failing struct{ calls int }

func (f *failing) Send(context.Context, Message) error {
	f.calls++
	return errors.New("relay down")
}

func TestSMTP_Send_ComposesMessage(t *testing.T) {
	s := NewSMTP(Config{Host: "mail.local", Port: 2525, Username: "u", Password: "p", From: "noreply@registry"})
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg, gotAuth = addr, to, string(msg), a
		return nil
	}

	require.NoError(t, s.Send(context.Background(), ResetMessage("a@b.c", "https://r/account/reset-password/xyz")))
	require.Equal(t, "mail.local:2525", gotAddr)
	require.Equal(t, []string{"a@b.c"}, gotTo)
	require.NotNil(t, gotAuth)
	require.Contains(t, gotMsg, "Subject: Reset your password\r\n")
	require.Contains(t, gotMsg, "https://r/account/reset-password/xyz")
	require.False(t, strings.Contains(strings.ReplaceAll(gotMsg, "\r\n", ""), "\n"))
}

func TestSMTP_Send_CanceledContext(t *testing.T) {
	s := NewSMTP(Config{Host: "h", Port: 25})
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("must not dial")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Send(ctx, Message{To: "x"}), context.Canceled)
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	next := &failing{}
	b := NewBreaker(next)

	for i := 0; i < 5; i++ {
		require.Error(t, b.Send(context.Background(), Message{To: "x"}))
	}
	require.True(t, b.Tripped())
	require.ErrorIs(t, b.Send(context.Background(), Message{To: "x"}), ErrUnavailable)
	require.Equal(t, 5, next.calls)
}

func TestNew_EmptyHostLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := New(Config{}, zap.New(core))

	require.IsType(t, &Log{}, s)
	require.NoError(t, s.Send(context.Background(), Message{To: "a@b.c", Subject: "hi"}))
	require.Equal(t, 1, logs.FilterField(zap.String("to", "a@b.c")).Len())

	require.IsType(t, &Breaker{}, New(Config{Host: "smtp"}, zap.NewNop()))
}

// tokenLogged reports whether any captured field mentions secret.
func tokenLogged(logs *observer.ObservedLogs, secret string) bool {
	for _, e := range logs.All() {
		if strings.Contains(e.Message, secret) {
			return true
		}
		for _, v := range e.ContextMap() {
			if strings.Contains(fmt.Sprint(v), secret) {
				return true
			}
		}
	}
	return false
}

func TestLog_NeverLogsResetToken(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := New(Config{}, zap.New(core))

	msg := ResetMessage("a@b.c", "https://h/account/reset-password/SECRETTOKEN123")
	require.NoError(t, s.Send(context.Background(), msg))
	require.Equal(t, 1, logs.Len())
	require.False(t, tokenLogged(logs, "SECRETTOKEN123"))
}

func TestLog_DumpBodiesAtDebugOnly(t *testing.T) {
	msg := ResetMessage("a@b.c", "https://h/account/reset-password/SECRETTOKEN123")

	infoCore, infoLogs := observer.New(zap.InfoLevel)
	require.NoError(t, New(Config{DumpBodies: true}, zap.New(infoCore)).Send(context.Background(), msg))
	require.False(t, tokenLogged(infoLogs, "SECRETTOKEN123"))

	debugCore, debugLogs := observer.New(zap.DebugLevel)
	require.NoError(t, New(Config{DumpBodies: true}, zap.New(debugCore)).Send(context.Background(), msg))
	body := debugLogs.FilterMessage("mail body")
	require.Equal(t, 1, body.Len())
	require.Equal(t, zap.DebugLevel, body.All()[0].Level)
	require.True(t, tokenLogged(debugLogs, "SECRETTOKEN123"))
}
