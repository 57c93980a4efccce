// Package svcmgr drives the external service manager binary (systemctl,
// rc-service, or any compatible CLI) that owns the actual start/stop of a
// hibernated backend, per spec.md §4.C / §6.
//
// hibernaut never signals the backend process directly: it shells out to
// the configured manager and trusts its exit code, keeping the decision
// (should this site be up?) separate from the act of making it so.
package svcmgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/hibernaut/hibernaut/internal/core/domain"
	"github.com/hibernaut/hibernaut/internal/core/ports"
)

// DefaultCallTimeout bounds a single manager invocation when the caller's
// context carries no deadline of its own.
const DefaultCallTimeout = 15 * time.Second

var _ ports.ServiceController = (*Controller)(nil)

// Controller wraps a manager binary, e.g. "systemctl" or "rc-service",
// issuing unit subcommands against it per spec.md §4.C.
type Controller struct {
	binary  string
	timeout time.Duration
	log     *slog.Logger

	// args builds the argv tail for an operation, so systemctl's
	// "<verb> <unit>" and rc-service's "<unit> <verb>" ordering can both
	// be supported without branching at every call site.
	args func(op, unit string) []string
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeout overrides DefaultCallTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithArgs overrides the default "systemctl <verb> <unit>" argument order,
// e.g. for rc-service's "rc-service <unit> <verb>".
func WithArgs(f func(op, unit string) []string) Option {
	return func(c *Controller) { c.args = f }
}

// New returns a Controller that shells out to binary. log may be nil.
func New(binary string, log *slog.Logger, opts ...Option) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		binary:  binary,
		timeout: DefaultCallTimeout,
		log:     log,
		args: func(op, unit string) []string {
			return []string{op, unit}
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start asks the manager to start unit and waits for it to return.
func (c *Controller) Start(ctx context.Context, unit string) error {
	return c.run(ctx, "start", unit)
}

// Stop asks the manager to stop unit and waits for it to return.
func (c *Controller) Stop(ctx context.Context, unit string) error {
	return c.run(ctx, "stop", unit)
}

// IsActive reports whether unit is currently active. A non-zero exit is
// the manager's normal way of saying "not active", so it is not logged as
// an error; anything else shelling out fails (binary missing, context
// cancelled) is logged and treated as not-active, matching spec.md §4.C's
// "unable to determine is treated as DOWN" rule.
func (c *Controller) IsActive(ctx context.Context, unit string) bool {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	cmd := exec.CommandContext(callCtx, c.binary, c.args("is-active", unit)...)
	err := cmd.Run()
	if err == nil {
		return true
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false
	}

	c.log.Warn("svcmgr: is-active call failed",
		"unit", unit, "binary", c.binary, "error", err)
	return false
}

func (c *Controller) run(ctx context.Context, op, unit string) error {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(callCtx, c.binary, c.args(op, unit)...)
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		wrapped := &domain.ServiceManagerError{
			Unit: unit,
			Op:   op,
			Err:  exitCause(err, stderr.Bytes()),
		}
		c.log.Error("svcmgr: call failed",
			"unit", unit, "op", op, "binary", c.binary,
			"elapsed", elapsed, "error", wrapped)
		return wrapped
	}

	c.log.Debug("svcmgr: call succeeded",
		"unit", unit, "op", op, "binary", c.binary, "elapsed", elapsed)
	return nil
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// exitCause prefers the subprocess's own stderr over the generic
// *exec.ExitError text, since "Unit foo.service not found." is a lot more
// actionable in a log line than "exit status 5".
func exitCause(err error, stderr []byte) error {
	if msg := bytes.TrimSpace(stderr); len(msg) > 0 {
		return fmt.Errorf("%s (%w)", msg, err)
	}
	return err
}
