package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibernaut/hibernaut/internal/core/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalSite = `
hibernator_port = 7878

[[sites]]
name = "demo"
hosts = ["demo.test"]
port = 8080
access_log = "/var/log/nginx/demo.access.log"
service_name = "demo.service"
keep_alive = "5m"
`

func TestLoad_Minimal(t *testing.T) {
	path := writeConfig(t, minimalSite)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HibernatorPort != 7878 {
		t.Errorf("expected hibernator_port 7878, got %d", cfg.HibernatorPort)
	}

	sites, err := cfg.Sites()
	if err != nil {
		t.Fatalf("Sites: %v", err)
	}
	if len(sites) != 1 {
		t.Fatalf("expected 1 site, got %d", len(sites))
	}

	s := sites[0]
	if s.Name != "demo" || s.Port != 8080 {
		t.Errorf("unexpected site: %+v", s)
	}
	if s.KeepAlive != 5*time.Minute {
		t.Errorf("expected keep_alive 5m, got %s", s.KeepAlive)
	}
	if s.ProxyTimeout != DefaultProxyTimeout {
		t.Errorf("expected default proxy_timeout, got %s", s.ProxyTimeout)
	}
	if s.StartTimeout != DefaultStartTimeout {
		t.Errorf("expected default start_timeout, got %s", s.StartTimeout)
	}
	if s.ProxyMode != domain.ProxyModeAlways {
		t.Errorf("expected default proxy_mode always, got %s", s.ProxyMode)
	}
	if s.ETASampleSize != DefaultETASampleSize || s.ETAPercentile != DefaultETAPercentile {
		t.Errorf("expected default ETA settings, got sample=%d pct=%f", s.ETASampleSize, s.ETAPercentile)
	}
}

func TestLoad_UnknownKeyIsHardError(t *testing.T) {
	path := writeConfig(t, "bogus_top_level_key = true\n"+minimalSite)

	if _, err := Load(path, nil); err == nil {
		t.Fatal("expected an error for an unknown top-level key")
	}
}

func TestLoad_MissingRequiredField(t *testing.T) {
	body := `
[[sites]]
name = "demo"
hosts = ["demo.test"]
port = 8080
service_name = "demo.service"
keep_alive = "5m"
`
	path := writeConfig(t, body)
	if _, err := Load(path, nil); err == nil {
		t.Fatal("expected an error for missing access_log")
	}
}

func TestLoad_NoSitesIsError(t *testing.T) {
	path := writeConfig(t, "hibernator_port = 7878\n")
	if _, err := Load(path, nil); err == nil {
		t.Fatal("expected an error when no sites are configured")
	}
}

func TestSites_DuplicateHostIsError(t *testing.T) {
	body := `
[[sites]]
name = "a"
hosts = ["shared.test"]
port = 8080
access_log = "/a.log"
service_name = "a.service"
keep_alive = "5m"

[[sites]]
name = "b"
hosts = ["shared.test"]
port = 8081
access_log = "/b.log"
service_name = "b.service"
keep_alive = "5m"
`
	path := writeConfig(t, body)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.Sites(); err == nil {
		t.Fatal("expected duplicate-hostname error")
	}
}

func TestSites_InvalidProxyMode(t *testing.T) {
	path := writeConfig(t, `
[[sites]]
name = "demo"
hosts = ["demo.test"]
port = 8080
access_log = "/a.log"
service_name = "demo.service"
keep_alive = "5m"
proxy_mode = "sometimes"
`)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.Sites(); err == nil {
		t.Fatal("expected an error for an invalid proxy_mode")
	}
}

func TestSites_ExplicitZeroETAPercentileIsHonored(t *testing.T) {
	path := writeConfig(t, `
[[sites]]
name = "demo"
hosts = ["demo.test"]
port = 8080
access_log = "/a.log"
service_name = "demo.service"
keep_alive = "5m"
eta_percentile = 0
`)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sites, err := cfg.Sites()
	if err != nil {
		t.Fatalf("Sites: %v", err)
	}
	if sites[0].ETAPercentile != 0 {
		t.Errorf("expected an explicit eta_percentile = 0 to be honored, got %f", sites[0].ETAPercentile)
	}
}

func TestSites_KeepAliveBelowOneSecondIsError(t *testing.T) {
	path := writeConfig(t, `
[[sites]]
name = "demo"
hosts = ["demo.test"]
port = 8080
access_log = "/a.log"
service_name = "demo.service"
keep_alive = "0s"
`)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.Sites(); err == nil {
		t.Fatal("expected an error for keep_alive below the 1s floor")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.HibernatorPort != DefaultHibernatorPort {
		t.Errorf("expected default hibernator_port, got %d", cfg.HibernatorPort)
	}
	if cfg.ServiceManager.Binary != DefaultServiceManagerBinary {
		t.Errorf("expected default service manager binary, got %s", cfg.ServiceManager.Binary)
	}
}

func TestHibernationCheckInterval_Default(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.HibernationCheckInterval(); got != time.Second {
		t.Errorf("expected 1s default check interval, got %s", got)
	}
}
