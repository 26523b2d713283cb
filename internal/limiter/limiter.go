// Package limiter throttles repeated failed logins per account and client address.
package limiter

import (
	"context"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
// Keys are the account email and a hash of the client address.
type Limiter interface {
	// Allow reports whether a login may be attempted and, if not, how long to wait.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}

// Config holds limiter thresholds.
type Config struct {
	Window   time.Duration `mapstructure:"window"`
	MaxFails int           `mapstructure:"max_fails"`
	BlockFor time.Duration `mapstructure:"block_for"`
}

// Nop never blocks.
type Nop struct{}

func (Nop) Allow(context.Context, string, []byte) (bool, time.Duration, error) { return true, 0, nil }
func (Nop) Success(context.Context, string, []byte) error { return nil }
func (Nop) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}
