// Package config loads and validates hibernaut's TOML configuration file
// into the immutable domain.Site values every other package consumes,
// per spec.md §6.
package config

// Config is the root of the TOML document.
type Config struct {
	HibernatorPort int    `toml:"hibernator_port"`
	DatabasePath   string `toml:"database_path"`
	LandingFolder  string `toml:"landing_folder"`
	APIKeySHA256   string `toml:"api_key_sha256"`

	Logging        LoggingConfig        `toml:"logging"`
	Hibernation    HibernationConfig    `toml:"hibernation"`
	ReverseProxy   ReverseProxyConfig   `toml:"reverse_proxy"`
	ServiceManager ServiceManagerConfig `toml:"service_manager"`
	Server         ServerConfig         `toml:"server"`

	SiteConfigs []SiteConfig `toml:"sites"`
}

// LoggingConfig configures the styled slog logger, per SPEC_FULL.md's
// ambient-stack section.
type LoggingConfig struct {
	Level      string `toml:"level"`
	FileOutput bool   `toml:"file_output"`
	LogDir     string `toml:"log_dir"`
	MaxSize    int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age_days"`
	Theme      string `toml:"theme"`
}

// HibernationConfig configures the periodic idle check of spec.md §4.J.
type HibernationConfig struct {
	CheckInterval string `toml:"check_interval"`
}

// ReverseProxyConfig names the external reverse proxy's validate/reload
// subcommands, per spec.md §4.D / §6. Defaults to nginx's.
type ReverseProxyConfig struct {
	ValidateCmd []string `toml:"validate_cmd"`
	ReloadCmd   []string `toml:"reload_cmd"`
}

// ServiceManagerConfig names the external service-manager binary invoked
// per spec.md §4.C / §6.
type ServiceManagerConfig struct {
	Binary string `toml:"binary"`
	// ArgOrder is "verb-unit" (systemctl start foo.service) or
	// "unit-verb" (rc-service foo start). Defaults to "verb-unit".
	ArgOrder string `toml:"arg_order"`
}

// ServerConfig holds ambient HTTP hardening settings applied only to the
// dashboard API; the front proxy's own traffic is governed exclusively by
// spec.md §4.H's classifier rules.
type ServerConfig struct {
	RequestLimits ServerRequestLimits `toml:"request_limits"`
	RateLimits    ServerRateLimits    `toml:"rate_limits"`
}

// ServerRequestLimits bounds request header/body size on the dashboard API.
type ServerRequestLimits struct {
	MaxBodySize   int64 `toml:"max_body_size"`
	MaxHeaderSize int64 `toml:"max_header_size"`
}

// ServerRateLimits bounds request rate on the dashboard API.
type ServerRateLimits struct {
	GlobalRequestsPerMinute int    `toml:"global_requests_per_minute"`
	PerIPRequestsPerMinute  int    `toml:"per_ip_requests_per_minute"`
	HealthRequestsPerMinute int    `toml:"health_requests_per_minute"`
	BurstSize               int    `toml:"burst_size"`
	CleanupInterval         string `toml:"cleanup_interval"`
}

// SiteConfig is the TOML shape of spec.md §3's immutable Site, before
// duration strings are parsed and defaults are applied by Config.Sites.
type SiteConfig struct {
	Name  string   `toml:"name"`
	Hosts []string `toml:"hosts"`
	Port  int      `toml:"port"`

	AccessLog       string `toml:"access_log"`
	AccessLogFilter string `toml:"access_log_filter"`

	ServiceName string `toml:"service_name"`

	ProxyAvailablePath   string `toml:"proxy_available_path"`
	ProxyEnabledPath     string `toml:"proxy_enabled_path"`
	HibernatorConfigPath string `toml:"hibernator_config_path"`

	KeepAlive string `toml:"keep_alive"`

	ProxyMode        string `toml:"proxy_mode"`
	BrowserProxyMode string `toml:"browser_proxy_mode"`

	ProxyTimeout       string `toml:"proxy_timeout"`
	ProxyCheckInterval string `toml:"proxy_check_interval"`

	StartTimeout       string `toml:"start_timeout"`
	StartCheckInterval string `toml:"start_check_interval"`

	PathBlacklist []string `toml:"path_blacklist"`
	IPBlacklist   []string `toml:"ip_blacklist"`
	IPWhitelist   []string `toml:"ip_whitelist"`

	ETASampleSize int `toml:"eta_sample_size"`

	// ETAPercentile is a pointer so an explicit "eta_percentile = 0" in
	// TOML (a legal value per spec.md's 0..100 range) is distinguishable
	// from the key being absent, which alone should fall back to
	// DefaultETAPercentile.
	ETAPercentile *float64 `toml:"eta_percentile"`

	LandingFolder string `toml:"landing_folder"`
}
