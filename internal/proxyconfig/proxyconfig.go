// Package proxyconfig swaps a site between its "backend" and "hibernator"
// reverse-proxy configuration, per spec.md §4.D: symlink ProxyEnabledPath
// to one of two files under ProxyAvailablePath, validate the running
// reverse proxy's config, then reload it — rolling the symlink back if
// either step fails so a broken switch never reaches production traffic.
package proxyconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hibernaut/hibernaut/internal/core/domain"
	"github.com/hibernaut/hibernaut/internal/core/ports"
)

const (
	backendConfigName    = "backend.conf"
	hibernatorConfigName = "hibernator.conf"
)

var _ ports.ProxySwitcher = (*Switcher)(nil)

// Switcher drives the symlink swap plus the external reverse-proxy
// binary's validate/reload subcommands (e.g. "nginx -t" / "nginx -s
// reload").
type Switcher struct {
	validateCmd []string
	reloadCmd   []string
	log         *slog.Logger
}

// Option configures a Switcher.
type Option func(*Switcher)

// WithValidateCmd overrides the default "nginx -t" validation command.
func WithValidateCmd(argv []string) Option {
	return func(s *Switcher) { s.validateCmd = argv }
}

// WithReloadCmd overrides the default "nginx -s reload" reload command.
func WithReloadCmd(argv []string) Option {
	return func(s *Switcher) { s.reloadCmd = argv }
}

// New returns a Switcher using nginx's validate/reload invocation by
// default. log may be nil.
func New(log *slog.Logger, opts ...Option) *Switcher {
	if log == nil {
		log = slog.Default()
	}
	s := &Switcher{
		validateCmd: []string{"nginx", "-t"},
		reloadCmd:   []string{"nginx", "-s", "reload"},
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RouteToBackend points site's reverse-proxy symlink at its real upstream.
func (s *Switcher) RouteToBackend(ctx context.Context, site *domain.Site) error {
	return s.switchTo(ctx, site, backendConfigName)
}

// RouteToHibernator points site's reverse-proxy symlink at the hibernator
// landing-page vhost.
func (s *Switcher) RouteToHibernator(ctx context.Context, site *domain.Site) error {
	return s.switchTo(ctx, site, hibernatorConfigName)
}

// switchTo links ProxyEnabledPath -> ProxyAvailablePath/name atomically
// (symlink-to-temp-path then rename over the live link), validates the
// reverse proxy's config, and reloads it. Any failure restores the
// previous link so a rejected config never lingers live.
func (s *Switcher) switchTo(ctx context.Context, site *domain.Site, name string) error {
	target := filepath.Join(site.ProxyAvailablePath, name)
	if _, err := os.Lstat(target); err != nil {
		return &domain.ProxyConfigError{Site: site.Name, Op: "switch:" + name, Err: fmt.Errorf("target config missing: %w", err)}
	}

	previous, hadPrevious := s.readLink(site.ProxyEnabledPath)

	if err := s.relink(site.ProxyEnabledPath, target); err != nil {
		return &domain.ProxyConfigError{Site: site.Name, Op: "relink", Err: err}
	}

	if err := s.validate(ctx); err != nil {
		s.rollback(site, previous, hadPrevious)
		return &domain.ProxyConfigError{Site: site.Name, Op: "validate", Err: err}
	}

	if err := s.reload(ctx); err != nil {
		s.rollback(site, previous, hadPrevious)
		return &domain.ProxyConfigError{Site: site.Name, Op: "reload", Err: err}
	}

	s.log.Info("proxyconfig: switched", "site", site.Name, "config", name)
	return nil
}

// relink creates a new symlink at a temporary path and renames it over
// enabledPath, so a reader never observes a half-written or missing link
// the way a plain os.Remove-then-Symlink pair could leave.
func (s *Switcher) relink(enabledPath, target string) error {
	tmp := enabledPath + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("create temp symlink: %w", err)
	}
	if err := os.Rename(tmp, enabledPath); err != nil {
		return fmt.Errorf("rename symlink into place: %w", err)
	}
	return nil
}

func (s *Switcher) readLink(path string) (string, bool) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", false
	}
	return target, true
}

func (s *Switcher) rollback(site *domain.Site, previous string, hadPrevious bool) {
	if !hadPrevious {
		s.log.Warn("proxyconfig: no previous link to restore", "site", site.Name)
		return
	}
	if err := s.relink(site.ProxyEnabledPath, previous); err != nil {
		s.log.Error("proxyconfig: rollback failed", "site", site.Name, "error", err)
		return
	}
	// best effort: a site left on a config that at least used to validate
	// is preferable to one stuck on the config we just rejected, even if
	// this reload also fails (e.g. the proxy is in an unrelated bad state).
	_ = s.reload(context.Background())
	s.log.Warn("proxyconfig: rolled back to previous config", "site", site.Name)
}

func (s *Switcher) validate(ctx context.Context) error {
	return s.runCmd(ctx, s.validateCmd)
}

func (s *Switcher) reload(ctx context.Context) error {
	return s.runCmd(ctx, s.reloadCmd)
}

func (s *Switcher) runCmd(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return errors.New("proxyconfig: empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) > 0 {
			return fmt.Errorf("%s: %w", out, err)
		}
		return err
	}
	return nil
}
