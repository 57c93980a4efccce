package svcmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibernaut/hibernaut/internal/core/domain"
)

// fakeManager is a tiny shell script standing in for systemctl: it exits
// 0 for "start"/"stop" and reads its desired is-active exit code from argv.
const fakeManagerScript = `#!/bin/sh
case "$1" in
  is-active)
    exit "$3"
    ;;
  start|stop)
    exit 0
    ;;
  *)
    exit 99
    ;;
esac
`

func writeFakeManager(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/fake-manager.sh"
	if err := writeExecutable(path, fakeManagerScript); err != nil {
		t.Fatalf("writeExecutable: %v", err)
	}
	return path
}

func TestController_StartStopSucceed(t *testing.T) {
	bin := writeFakeManager(t)
	c := New(bin, nil)
	ctx := context.Background()

	if err := c.Start(ctx, "web.service"); err != nil {
		t.Fatalf("Start: unexpected error: %v", err)
	}
	if err := c.Stop(ctx, "web.service"); err != nil {
		t.Fatalf("Stop: unexpected error: %v", err)
	}
}

func TestController_IsActive(t *testing.T) {
	bin := writeFakeManager(t)
	c := New(bin, nil, WithArgs(func(op, unit string) []string {
		// the third argv slot carries the desired exit code for the fake.
		return []string{op, unit, "0"}
	}))

	if !c.IsActive(context.Background(), "web.service") {
		t.Fatalf("expected IsActive to report true on exit code 0")
	}
}

func TestController_IsActiveFalseOnNonZeroExit(t *testing.T) {
	bin := writeFakeManager(t)
	c := New(bin, nil, WithArgs(func(op, unit string) []string {
		return []string{op, unit, "3"}
	}))

	if c.IsActive(context.Background(), "web.service") {
		t.Fatalf("expected IsActive to report false on non-zero exit")
	}
}

func TestController_IsActiveFalseWhenBinaryMissing(t *testing.T) {
	c := New("/no/such/binary-ever", nil)
	if c.IsActive(context.Background(), "web.service") {
		t.Fatalf("expected IsActive to report false when the binary cannot run")
	}
}

func TestController_StartWrapsServiceManagerError(t *testing.T) {
	c := New("/no/such/binary-ever", nil)
	err := c.Start(context.Background(), "web.service")
	if err == nil {
		t.Fatalf("expected an error")
	}
	var smErr *domain.ServiceManagerError
	if !errors.As(err, &smErr) {
		t.Fatalf("expected *domain.ServiceManagerError, got %T: %v", err, err)
	}
	if smErr.Unit != "web.service" || smErr.Op != "start" {
		t.Fatalf("unexpected ServiceManagerError fields: %+v", smErr)
	}
	if !errors.Is(err, domain.ErrServiceManagerCall) {
		t.Fatalf("expected errors.Is to match ErrServiceManagerCall")
	}
}

func TestController_RespectsCallerDeadline(t *testing.T) {
	bin := writeFakeManager(t)
	c := New(bin, nil, WithTimeout(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	if err := c.Start(ctx, "web.service"); err == nil {
		t.Fatalf("expected the already-expired caller deadline to fail the call")
	}
}
