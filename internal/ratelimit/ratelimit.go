package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Actions with dedicated rate-limit budgets.
const (
	ActionLogin    = "login"
	ActionRegister = "register"
)

// Supported limiter drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config bounds one action for one identifier.
type Config struct {
	MaxRequests   int           // allowed requests per window
	Window        time.Duration // fixed counting window
	BlockDuration time.Duration // lockout applied once the limit is exceeded, 0 disables
}

// Decision is the limiter's verdict for a single check. RetryAfter is in
// seconds and set only on denial; callers surface it verbatim.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter int
}

// Limiter is the admission-control capability for abuse-prone actions.
// Check counts the request against (identifier, action) atomically: two
// concurrent checks for the same key never both pass on the last slot.
// Reset clears the key's state; it belongs to use-case success paths, the
// HTTP layer only reads decisions.
type Limiter interface {
	Check(ctx context.Context, identifier, action string, cfg Config) (Decision, error)
	Reset(ctx context.Context, identifier, action string) error
}

// Options selects and configures a limiter backend.
type Options struct {
	Driver string
	Redis  RedisOptions
}

// RedisOptions configures the redis driver.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// New builds the limiter for the configured driver. An empty driver
// selects the in-memory implementation.
func New(ctx context.Context, opts Options) (Limiter, error) {
	switch opts.Driver {
	case DriverRedis:
		return NewRedisLimiter(ctx, opts.Redis)
	case DriverMemory, "":
		return NewMemoryLimiter(ctx), nil
	default:
		return nil, fmt.Errorf("unknown rate limit driver: %q", opts.Driver)
	}
}

// DefaultLoginConfig bounds login attempts per email. Credential stuffing
// burns the window quickly, and the block holds even after the window
// rolls over.
func DefaultLoginConfig() Config {
	return Config{
		MaxRequests:   10,
		Window:        time.Minute,
		BlockDuration: time.Minute,
	}
}

// DefaultRegisterConfig bounds registrations per email. Account farming
// moves slower than credential stuffing, so the window is wider and the
// budget smaller.
func DefaultRegisterConfig() Config {
	return Config{
		MaxRequests:   5,
		Window:        5 * time.Minute,
		BlockDuration: 5 * time.Minute,
	}
}

// ceilSeconds rounds a duration up to whole seconds, never below 1, so a
// client honoring Retry-After cannot come back inside the denial.
func ceilSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
