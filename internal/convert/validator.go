package convert

import (
	"context"
	"log/slog"
	"time"

	"github.com/sensiblebit/jksconvert/internal/toolchain"
)

// DefaultValidateTimeout bounds the keystore probe when none is configured.
const DefaultValidateTimeout = 10 * time.Second

// Validator gates ContainerToPem on a non-mutating keystore probe.
type Validator struct {
	toolchain toolchain.Toolchain
	timeout   time.Duration
	logger    *slog.Logger
}

// NewValidator returns a Validator. A non-positive timeout uses
// DefaultValidateTimeout.
func NewValidator(tc toolchain.Toolchain, timeout time.Duration, logger *slog.Logger) *Validator {
	if timeout <= 0 {
		timeout = DefaultValidateTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{toolchain: tc, timeout: timeout, logger: logger}
}

// Validate reports whether the keystore at path opens with password. A wrong
// password, a corrupt file, and a probe that exceeds the timeout all return
// false; callers cannot tell them apart.
func (v *Validator) Validate(ctx context.Context, path, password string) bool {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if err := v.toolchain.ProbeKeystore(ctx, path, password); err != nil {
		v.logger.InfoContext(ctx, "keystore validation failed", "timed_out", ctx.Err() != nil)
		return false
	}
	return true
}
