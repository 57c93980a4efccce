package proxyconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hibernaut/hibernaut/internal/core/domain"
)

func setupSite(t *testing.T) *domain.Site {
	t.Helper()
	dir := t.TempDir()
	available := filepath.Join(dir, "sites-available")
	if err := os.Mkdir(available, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{backendConfigName, hibernatorConfigName} {
		if err := os.WriteFile(filepath.Join(available, name), []byte("# "+name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return &domain.Site{
		Name:                 "example",
		ProxyAvailablePath:   available,
		ProxyEnabledPath:     filepath.Join(dir, "sites-enabled", "example.conf"),
		HibernatorConfigPath: filepath.Join(available, hibernatorConfigName),
	}
}

func trueCmd() []string  { return []string{"true"} }
func falseCmd() []string { return []string{"false"} }

func TestSwitcher_RouteToHibernatorThenBackend(t *testing.T) {
	site := setupSite(t)
	if err := os.MkdirAll(filepath.Dir(site.ProxyEnabledPath), 0o755); err != nil {
		t.Fatal(err)
	}
	s := New(nil, WithValidateCmd(trueCmd()), WithReloadCmd(trueCmd()))
	ctx := context.Background()

	if err := s.RouteToHibernator(ctx, site); err != nil {
		t.Fatalf("RouteToHibernator: %v", err)
	}
	target, err := os.Readlink(site.ProxyEnabledPath)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if filepath.Base(target) != hibernatorConfigName {
		t.Fatalf("expected link to %s, got %s", hibernatorConfigName, target)
	}

	if err := s.RouteToBackend(ctx, site); err != nil {
		t.Fatalf("RouteToBackend: %v", err)
	}
	target, err = os.Readlink(site.ProxyEnabledPath)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if filepath.Base(target) != backendConfigName {
		t.Fatalf("expected link to %s, got %s", backendConfigName, target)
	}
}

func TestSwitcher_RollsBackOnValidateFailure(t *testing.T) {
	site := setupSite(t)
	if err := os.MkdirAll(filepath.Dir(site.ProxyEnabledPath), 0o755); err != nil {
		t.Fatal(err)
	}
	s := New(nil, WithValidateCmd(trueCmd()), WithReloadCmd(trueCmd()))
	ctx := context.Background()

	if err := s.RouteToBackend(ctx, site); err != nil {
		t.Fatalf("initial RouteToBackend: %v", err)
	}

	s.validateCmd = falseCmd()
	if err := s.RouteToHibernator(ctx, site); err == nil {
		t.Fatalf("expected validate failure to be reported")
	}

	target, err := os.Readlink(site.ProxyEnabledPath)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if filepath.Base(target) != backendConfigName {
		t.Fatalf("expected rollback to restore %s, got %s", backendConfigName, target)
	}
}

func TestSwitcher_MissingTargetConfigFails(t *testing.T) {
	site := setupSite(t)
	site.ProxyAvailablePath = t.TempDir()
	if err := os.MkdirAll(filepath.Dir(site.ProxyEnabledPath), 0o755); err != nil {
		t.Fatal(err)
	}
	s := New(nil, WithValidateCmd(trueCmd()), WithReloadCmd(trueCmd()))

	if err := s.RouteToBackend(context.Background(), site); err == nil {
		t.Fatalf("expected error when target config file does not exist")
	}
}
