package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/hibernaut/hibernaut/internal/clock"
	"github.com/hibernaut/hibernaut/internal/core/domain"
)

const (
	DefaultHibernatorPort = 7878
	DefaultDatabasePath   = "./data.mdb"
	DefaultLandingFolder  = "./landing"

	DefaultProxyTimeout       = 28 * time.Second
	DefaultProxyCheckInterval = 500 * time.Millisecond
	DefaultStartTimeout       = 5 * time.Minute
	DefaultStartCheckInterval = 100 * time.Millisecond
	DefaultETASampleSize      = 100
	DefaultETAPercentile      = 95.0

	DefaultHibernationCheckInterval = time.Second

	DefaultServiceManagerBinary = "systemctl"

	// Dashboard API hardening defaults (internal/security).
	DefaultMaxBodySize             = 1 << 20 // 1MiB
	DefaultMaxHeaderSize           = 16 << 10
	DefaultGlobalRequestsPerMinute = 600
	DefaultPerIPRequestsPerMinute  = 120
	DefaultHealthRequestsPerMinute = 600
	DefaultBurstSize               = 10
	DefaultCleanupInterval         = "10m"
)

// DefaultConfig returns a configuration with spec.md §6's documented
// defaults and no sites.
func DefaultConfig() *Config {
	return &Config{
		HibernatorPort: DefaultHibernatorPort,
		DatabasePath:   DefaultDatabasePath,
		LandingFolder:  DefaultLandingFolder,
		Logging: LoggingConfig{
			Level:      "info",
			FileOutput: true,
			LogDir:     "./logs",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Theme:      "default",
		},
		Hibernation: HibernationConfig{
			CheckInterval: "1s",
		},
		ReverseProxy: ReverseProxyConfig{
			ValidateCmd: []string{"nginx", "-t"},
			ReloadCmd:   []string{"nginx", "-s", "reload"},
		},
		ServiceManager: ServiceManagerConfig{
			Binary:   DefaultServiceManagerBinary,
			ArgOrder: "verb-unit",
		},
		Server: ServerConfig{
			RequestLimits: ServerRequestLimits{
				MaxBodySize:   DefaultMaxBodySize,
				MaxHeaderSize: DefaultMaxHeaderSize,
			},
			RateLimits: ServerRateLimits{
				GlobalRequestsPerMinute: DefaultGlobalRequestsPerMinute,
				PerIPRequestsPerMinute:  DefaultPerIPRequestsPerMinute,
				HealthRequestsPerMinute: DefaultHealthRequestsPerMinute,
				BurstSize:               DefaultBurstSize,
				CleanupInterval:         DefaultCleanupInterval,
			},
		},
	}
}

// Load reads and strictly decodes the TOML file at path, per spec.md §6:
// unknown top-level or per-site keys are a hard ConfigError, as is a
// missing required field. onConfigChange, if non-nil, is invoked (with a
// debounce) whenever the file changes on disk; hibernaut never reloads a
// running site's configuration live, so the callback exists purely to let
// the caller log "config changed, re-run check-config" per SPEC_FULL.md.
func Load(path string, onConfigChange func()) (*Config, error) {
	cfg, err := decode(path)
	if err != nil {
		return nil, err
	}

	if onConfigChange != nil {
		watchForChanges(path, onConfigChange)
	}

	return cfg, nil
}

func decode(path string) (*Config, error) {
	cfg := DefaultConfig()

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %s", domain.ErrConfigInvalid, path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown key(s) in %s: %s", domain.ErrConfigInvalid, path, strings.Join(keys, ", "))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces spec.md §6's required-keys and §3's defaults/ranges,
// without yet building domain.Site values (Sites() does that, separately,
// so a caller that only wants "is this file well-formed" — check-config —
// never needs a running registry).
func (c *Config) validate() error {
	if c.HibernatorPort <= 0 || c.HibernatorPort > 65535 {
		return fmt.Errorf("%w: hibernator_port must be 1..65535, got %d", domain.ErrConfigInvalid, c.HibernatorPort)
	}
	if len(c.SiteConfigs) == 0 {
		return fmt.Errorf("%w: at least one [[sites]] entry is required", domain.ErrConfigInvalid)
	}

	seenNames := make(map[string]bool, len(c.SiteConfigs))
	for i := range c.SiteConfigs {
		if err := c.SiteConfigs[i].validateRequired(); err != nil {
			return err
		}
		if seenNames[c.SiteConfigs[i].Name] {
			return fmt.Errorf("%w: duplicate site name %q", domain.ErrConfigInvalid, c.SiteConfigs[i].Name)
		}
		seenNames[c.SiteConfigs[i].Name] = true
	}

	if _, err := clock.ParseDuration(orDefault(c.Hibernation.CheckInterval, "1s")); err != nil {
		return fmt.Errorf("%w: hibernation.check_interval: %s", domain.ErrConfigInvalid, err)
	}
	return nil
}

// validateRequired enforces spec.md §6's per-site required keys: name,
// port, access_log, service_name, hosts, keep_alive.
func (s *SiteConfig) validateRequired() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("%w: site missing required field name", domain.ErrConfigInvalid)
	case len(s.Hosts) == 0:
		return fmt.Errorf("%w: site %q missing required field hosts", domain.ErrConfigInvalid, s.Name)
	case s.Port <= 0 || s.Port > 65535:
		return fmt.Errorf("%w: site %q port must be 1..65535, got %d", domain.ErrConfigInvalid, s.Name, s.Port)
	case s.AccessLog == "":
		return fmt.Errorf("%w: site %q missing required field access_log", domain.ErrConfigInvalid, s.Name)
	case s.ServiceName == "":
		return fmt.Errorf("%w: site %q missing required field service_name", domain.ErrConfigInvalid, s.Name)
	case s.KeepAlive == "":
		return fmt.Errorf("%w: site %q missing required field keep_alive", domain.ErrConfigInvalid, s.Name)
	}
	return nil
}

// Sites converts every validated SiteConfig into a domain.Site, parsing
// durations and applying spec.md §3's defaults, and rejects duplicate
// hostnames across sites per spec.md §3's global invariant.
func (c *Config) Sites() ([]*domain.Site, error) {
	out := make([]*domain.Site, 0, len(c.SiteConfigs))
	seenHosts := make(map[string]string, len(c.SiteConfigs))

	for _, sc := range c.SiteConfigs {
		site, err := sc.toDomain(c.LandingFolder)
		if err != nil {
			return nil, err
		}
		for _, h := range site.Hosts {
			if owner, ok := seenHosts[h]; ok && owner != site.Name {
				return nil, fmt.Errorf("%w: host %q claimed by both %q and %q", domain.ErrDuplicateHost, h, owner, site.Name)
			}
			seenHosts[h] = site.Name
		}
		out = append(out, site)
	}
	return out, nil
}

func (s *SiteConfig) toDomain(globalLandingFolder string) (*domain.Site, error) {
	hosts := make([]string, len(s.Hosts))
	for i, h := range s.Hosts {
		hosts[i] = strings.ToLower(strings.TrimSpace(h))
	}

	keepAlive, err := clock.ParseDuration(s.KeepAlive)
	if err != nil {
		return nil, fmt.Errorf("%w: site %q keep_alive: %s", domain.ErrConfigInvalid, s.Name, err)
	}
	if keepAlive < time.Second {
		return nil, fmt.Errorf("%w: site %q keep_alive must be >= 1s, got %s", domain.ErrConfigInvalid, s.Name, keepAlive)
	}

	proxyTimeout, err := parseDurationOrDefault(s.ProxyTimeout, DefaultProxyTimeout, s.Name, "proxy_timeout")
	if err != nil {
		return nil, err
	}
	proxyCheckInterval, err := parseDurationOrDefault(s.ProxyCheckInterval, DefaultProxyCheckInterval, s.Name, "proxy_check_interval")
	if err != nil {
		return nil, err
	}
	startTimeout, err := parseDurationOrDefault(s.StartTimeout, DefaultStartTimeout, s.Name, "start_timeout")
	if err != nil {
		return nil, err
	}
	startCheckInterval, err := parseDurationOrDefault(s.StartCheckInterval, DefaultStartCheckInterval, s.Name, "start_check_interval")
	if err != nil {
		return nil, err
	}

	proxyMode, err := parseProxyMode(s.ProxyMode, domain.ProxyModeAlways, s.Name, "proxy_mode")
	if err != nil {
		return nil, err
	}
	browserProxyMode, err := parseProxyMode(s.BrowserProxyMode, domain.ProxyModeAlways, s.Name, "browser_proxy_mode")
	if err != nil {
		return nil, err
	}

	etaSampleSize := s.ETASampleSize
	if etaSampleSize <= 0 {
		etaSampleSize = DefaultETASampleSize
	}
	etaPercentile := DefaultETAPercentile
	if s.ETAPercentile != nil {
		etaPercentile = *s.ETAPercentile
	}

	landingFolder := s.LandingFolder
	if landingFolder == "" {
		landingFolder = globalLandingFolder
	}
	if landingFolder == "" {
		landingFolder = DefaultLandingFolder
	}

	return &domain.Site{
		Name:  s.Name,
		Hosts: hosts,
		Port:  s.Port,

		AccessLogPath:   s.AccessLog,
		AccessLogFilter: s.AccessLogFilter,

		ServiceUnitName: s.ServiceName,

		ProxyAvailablePath:   s.ProxyAvailablePath,
		ProxyEnabledPath:     s.ProxyEnabledPath,
		HibernatorConfigPath: s.HibernatorConfigPath,

		KeepAlive: keepAlive,

		ProxyMode:        proxyMode,
		BrowserProxyMode: browserProxyMode,

		ProxyTimeout:       proxyTimeout,
		ProxyCheckInterval: proxyCheckInterval,

		StartTimeout:       startTimeout,
		StartCheckInterval: startCheckInterval,

		PathBlacklist: s.PathBlacklist,
		IPBlacklist:   s.IPBlacklist,
		IPWhitelist:   s.IPWhitelist,

		ETASampleSize: etaSampleSize,
		ETAPercentile: etaPercentile,

		LandingFolder: landingFolder,
	}, nil
}

func parseDurationOrDefault(raw string, fallback time.Duration, site, field string) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := clock.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: site %q %s: %s", domain.ErrConfigInvalid, site, field, err)
	}
	return d, nil
}

func parseProxyMode(raw string, fallback domain.ProxyMode, site, field string) (domain.ProxyMode, error) {
	if raw == "" {
		return fallback, nil
	}
	switch domain.ProxyMode(raw) {
	case domain.ProxyModeAlways, domain.ProxyModeWhenReady, domain.ProxyModeNever:
		return domain.ProxyMode(raw), nil
	default:
		return "", fmt.Errorf("%w: site %q %s: invalid mode %q", domain.ErrConfigInvalid, site, field, raw)
	}
}

func orDefault(raw, fallback string) string {
	if raw == "" {
		return fallback
	}
	return raw
}

// HibernationCheckInterval parses Hibernation.CheckInterval, defaulting to
// DefaultHibernationCheckInterval. Call only after validate() has already
// confirmed the raw string parses.
func (c *Config) HibernationCheckInterval() time.Duration {
	d, err := clock.ParseDuration(orDefault(c.Hibernation.CheckInterval, "1s"))
	if err != nil {
		return DefaultHibernationCheckInterval
	}
	return d
}

// watchForChanges fires onChanged (debounced) whenever path's containing
// directory reports a write to path. hibernaut's Config is decoded once
// and never swapped under a running server, so this exists purely to let
// the caller log a "re-run check-config" warning, not to reload anything.
func watchForChanges(path string, onChanged func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Default().Warn("config: could not start file watcher", "error", err)
		return
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		slog.Default().Warn("config: could not watch config directory", "dir", dir, "error", err)
		_ = watcher.Close()
		return
	}

	go func() {
		var lastFired time.Time
		for event := range watcher.Events {
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			now := time.Now()
			if now.Sub(lastFired) < 500*time.Millisecond {
				continue
			}
			lastFired = now
			time.Sleep(150 * time.Millisecond)
			onChanged()
		}
	}()
}
