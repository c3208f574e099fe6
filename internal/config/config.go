// SPDX-License-Identifier: MIT

// Package config provides configuration management for reovod.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig represents the YAML configuration structure.
type FileConfig struct {
	Version  string `yaml:"version,omitempty"`
	DataDir  string `yaml:"dataDir,omitempty"`
	LogLevel string `yaml:"logLevel,omitempty"`

	Cameras []CameraConfig `yaml:"cameras"`
	API     APIConfig      `yaml:"api"`
	Cache   CacheConfig    `yaml:"cache,omitempty"`
	Refresh RefreshConfig  `yaml:"refresh,omitempty"`
}

// CameraConfig holds one Reolink camera/NVR connection.
type CameraConfig struct {
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"baseUrl"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Channels lists the channels to index. Empty means discover via
	// GetChannelStatus at startup.
	Channels  []int  `yaml:"channels,omitempty"`
	Timeout   string `yaml:"timeout,omitempty"`   // e.g. "15s"
	RateLimit int    `yaml:"rateLimit,omitempty"` // requests/sec against the camera
	RateBurst int    `yaml:"rateBurst,omitempty"`
	Stream    string `yaml:"stream,omitempty"` // search stream: main|sub|ext
}

// APIConfig holds HTTP API settings.
type APIConfig struct {
	Listen         string `yaml:"listen,omitempty"`
	RateLimitRPM   int    `yaml:"rateLimitRpm,omitempty"`
	RefreshLimit   int    `yaml:"refreshLimitRpm,omitempty"`
	TrustedProxies string `yaml:"trustedProxies,omitempty"`
}

// CacheConfig holds the TTL cache settings.
type CacheConfig struct {
	SnapshotTTL string      `yaml:"snapshotTtl,omitempty"`
	Redis       RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig enables the Redis cache backend when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// RefreshConfig controls the VOD index refresh loop.
type RefreshConfig struct {
	Interval       string `yaml:"interval,omitempty"`       // e.g. "5m"
	BackfillMonths int    `yaml:"backfillMonths,omitempty"` // hard-start walkback bound
}

// Camera is the resolved camera configuration.
type Camera struct {
	Name      string
	BaseURL   string
	Username  string
	Password  string
	Channels  []int
	Timeout   time.Duration
	RateLimit int
	RateBurst int
	Stream    string
}

// AppConfig is the resolved runtime configuration.
type AppConfig struct {
	Version  string
	DataDir  string
	LogLevel string

	Listen         string
	APIRateRPM     int
	RefreshRPM     int
	TrustedProxies string

	Cameras []Camera

	SnapshotTTL     time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RefreshInterval time.Duration
	BackfillMonths  int
}

// Loader resolves configuration with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

func (l *Loader) envString(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return defaultVal
}

func (l *Loader) envInt(key string, defaultVal int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return defaultVal
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return defaultVal
}

// Load resolves the configuration. A missing config file is not an error;
// a malformed one is.
func (l *Loader) Load() (AppConfig, error) {
	cfg := AppConfig{Version: l.version}
	l.setDefaults(&cfg)

	if l.configPath != "" {
		fc, err := l.loadFile(l.configPath)
		if err != nil {
			return AppConfig{}, err
		}
		if fc != nil {
			if err := l.mergeFileConfig(&cfg, fc); err != nil {
				return AppConfig{}, err
			}
		}
	}

	l.mergeEnvConfig(&cfg)

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (l *Loader) setDefaults(cfg *AppConfig) {
	cfg.DataDir = "/var/lib/reovod"
	cfg.LogLevel = "info"
	cfg.Listen = ":8787"
	cfg.APIRateRPM = 600
	cfg.RefreshRPM = 10
	cfg.SnapshotTTL = 30 * time.Second
	cfg.RefreshInterval = 5 * time.Minute
	cfg.BackfillMonths = 12
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc FileConfig
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}

func (l *Loader) mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.API.Listen != "" {
		dst.Listen = src.API.Listen
	}
	if src.API.RateLimitRPM > 0 {
		dst.APIRateRPM = src.API.RateLimitRPM
	}
	if src.API.RefreshLimit > 0 {
		dst.RefreshRPM = src.API.RefreshLimit
	}
	if src.API.TrustedProxies != "" {
		dst.TrustedProxies = src.API.TrustedProxies
	}
	if src.Cache.SnapshotTTL != "" {
		d, err := time.ParseDuration(src.Cache.SnapshotTTL)
		if err != nil {
			return fmt.Errorf("cache.snapshotTtl: %w", err)
		}
		dst.SnapshotTTL = d
	}
	dst.RedisAddr = src.Cache.Redis.Addr
	dst.RedisPassword = src.Cache.Redis.Password
	dst.RedisDB = src.Cache.Redis.DB
	if src.Refresh.Interval != "" {
		d, err := time.ParseDuration(src.Refresh.Interval)
		if err != nil {
			return fmt.Errorf("refresh.interval: %w", err)
		}
		dst.RefreshInterval = d
	}
	if src.Refresh.BackfillMonths > 0 {
		dst.BackfillMonths = src.Refresh.BackfillMonths
	}

	for i, cc := range src.Cameras {
		cam, err := resolveCamera(cc)
		if err != nil {
			return fmt.Errorf("cameras[%d]: %w", i, err)
		}
		dst.Cameras = append(dst.Cameras, cam)
	}
	return nil
}

func resolveCamera(cc CameraConfig) (Camera, error) {
	cam := Camera{
		Name:      cc.Name,
		BaseURL:   strings.TrimRight(cc.BaseURL, "/"),
		Username:  cc.Username,
		Password:  cc.Password,
		Channels:  cc.Channels,
		Timeout:   15 * time.Second,
		RateLimit: cc.RateLimit,
		RateBurst: cc.RateBurst,
		Stream:    cc.Stream,
	}
	if cc.Timeout != "" {
		d, err := time.ParseDuration(cc.Timeout)
		if err != nil {
			return Camera{}, fmt.Errorf("timeout: %w", err)
		}
		cam.Timeout = d
	}
	if cam.RateLimit <= 0 {
		cam.RateLimit = 4
	}
	if cam.RateBurst <= 0 {
		cam.RateBurst = 2
	}
	if cam.Stream == "" {
		cam.Stream = "main"
	}
	return cam, nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString("REOVOD_DATA", cfg.DataDir)
	cfg.LogLevel = l.envString("REOVOD_LOG_LEVEL", cfg.LogLevel)
	cfg.Listen = l.envString("REOVOD_LISTEN", cfg.Listen)
	cfg.APIRateRPM = l.envInt("REOVOD_API_RATE_RPM", cfg.APIRateRPM)
	cfg.RefreshRPM = l.envInt("REOVOD_REFRESH_RATE_RPM", cfg.RefreshRPM)
	cfg.TrustedProxies = l.envString("REOVOD_TRUSTED_PROXIES", cfg.TrustedProxies)
	cfg.SnapshotTTL = l.envDuration("REOVOD_SNAPSHOT_TTL", cfg.SnapshotTTL)
	cfg.RedisAddr = l.envString("REOVOD_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = l.envString("REOVOD_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = l.envInt("REOVOD_REDIS_DB", cfg.RedisDB)
	cfg.RefreshInterval = l.envDuration("REOVOD_REFRESH_INTERVAL", cfg.RefreshInterval)
	cfg.BackfillMonths = l.envInt("REOVOD_BACKFILL_MONTHS", cfg.BackfillMonths)

	// Single-camera shortcut for container deployments without a config file.
	if url := l.envString("REOVOD_CAMERA_URL", ""); url != "" {
		cam, _ := resolveCamera(CameraConfig{
			Name:     l.envString("REOVOD_CAMERA_NAME", "camera"),
			BaseURL:  url,
			Username: l.envString("REOVOD_CAMERA_USERNAME", "admin"),
			Password: l.envString("REOVOD_CAMERA_PASSWORD", ""),
		})
		cfg.Cameras = append(cfg.Cameras, cam)
	}
}

// Validate collects all configuration problems into one error.
func (c AppConfig) Validate() error {
	var problems []string
	if len(c.Cameras) == 0 {
		problems = append(problems, "no cameras configured")
	}
	seen := map[string]bool{}
	for i, cam := range c.Cameras {
		if cam.Name == "" {
			problems = append(problems, fmt.Sprintf("cameras[%d]: name is required", i))
		} else if seen[cam.Name] {
			problems = append(problems, fmt.Sprintf("cameras[%d]: duplicate name %q", i, cam.Name))
		}
		seen[cam.Name] = true
		if cam.BaseURL == "" {
			problems = append(problems, fmt.Sprintf("cameras[%d]: baseUrl is required", i))
		} else if !strings.HasPrefix(cam.BaseURL, "http://") && !strings.HasPrefix(cam.BaseURL, "https://") {
			problems = append(problems, fmt.Sprintf("cameras[%d]: baseUrl must be http(s)", i))
		}
		if cam.Username == "" {
			problems = append(problems, fmt.Sprintf("cameras[%d]: username is required", i))
		}
		switch cam.Stream {
		case "main", "sub", "ext":
		default:
			problems = append(problems, fmt.Sprintf("cameras[%d]: stream must be main, sub or ext", i))
		}
		for _, ch := range cam.Channels {
			if ch < 0 {
				problems = append(problems, fmt.Sprintf("cameras[%d]: negative channel %d", i, ch))
			}
		}
	}
	if c.DataDir == "" {
		problems = append(problems, "dataDir is required")
	}
	if c.RefreshInterval < time.Second {
		problems = append(problems, "refresh.interval must be at least 1s")
	}
	if c.BackfillMonths < 1 {
		problems = append(problems, "refresh.backfillMonths must be at least 1")
	}
	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// Camera returns the camera with the given name, if configured.
func (c AppConfig) Camera(name string) (Camera, bool) {
	for _, cam := range c.Cameras {
		if cam.Name == name {
			return cam, true
		}
	}
	return Camera{}, false
}

// String renders the config for logging with credentials masked.
func (c AppConfig) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "listen=%s dataDir=%s refresh=%s cameras=[", c.Listen, c.DataDir, c.RefreshInterval)
	for i, cam := range c.Cameras {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s(%s)", cam.Name, maskCredentials(cam.BaseURL))
	}
	b.WriteString("]")
	return b.String()
}

func maskCredentials(base string) string {
	// Operators sometimes paste URLs with embedded userinfo.
	if i := strings.Index(base, "@"); i >= 0 {
		if j := strings.Index(base, "://"); j >= 0 && j < i {
			return base[:j+3] + "***@" + base[i+1:]
		}
	}
	return base
}
