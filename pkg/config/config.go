package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
	"github.com/joho/godotenv"
	"github.com/tphan267/mirrorcast-signal/pkg/utils"
	"go.yaml.in/yaml/v3"
)

// Run modes. They decide the bind host when none is configured and how
// chatty the periodic statistics are.
const (
	ModeDev        = "dev"
	ModeLocal      = "local"
	ModeProduction = "production"
)

const (
	defaultWSPort     = 8080
	defaultReadLimit  = 64 * 1024
	defaultSendBuffer = 64
)

// ICEServer is a STUN/TURN entry advertised to peers by the discovery API.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// Config holds the signaling server configuration
type Config struct {
	Mode           string        `yaml:"mode"`
	Host           string        `yaml:"host"`      // bind host, derived from mode when empty
	WSPort         int           `yaml:"ws_port"`   // WebSocket signaling port
	HTTPPort       int           `yaml:"http_port"` // discovery/status API port, ws_port+1 by default
	DBPath         string        `yaml:"db_path"`
	LogLevel       string        `yaml:"log_level"`
	PublicWSURL    string        `yaml:"public_ws_url"` // overrides the advertised websocket_url
	StatsInterval  time.Duration `yaml:"stats_interval"`
	StatusInterval time.Duration `yaml:"status_interval"`
	ReadLimit      int64         `yaml:"read_limit"`
	SendBuffer     int           `yaml:"send_buffer"`
	ICEServers     []ICEServer   `yaml:"ice_servers"`

	Version string `yaml:"-"`

	mu   sync.Mutex `yaml:"-"`
	file string     `yaml:"-"`
}

// WSAddr is the listen address of the WebSocket transport.
func (c *Config) WSAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return utils.JoinHostPort(c.Host, c.WSPort)
}

// HTTPAddr is the listen address of the discovery/status API.
func (c *Config) HTTPAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return utils.JoinHostPort(c.Host, c.HTTPPort)
}

// IsDev reports whether the server runs in dev (localhost only) mode.
func (c *Config) IsDev() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Mode == ModeDev
}

// Save writes the current configuration back to the file
func (c *Config) Save() error {
	if c.file == "" {
		return fmt.Errorf("config file path is not set")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(c.file, data, 0o644)
}

// EnsureDefaultConfig applies env overrides and fills missing fields. When
// save is set and defaults were added, the file is rewritten.
func (c *Config) EnsureDefaultConfig(save bool) error {
	changed := false
	c.mu.Lock()

	// Env overrides
	if mode := utils.Env("MIRRORCAST_MODE", ""); mode != "" {
		c.Mode = mode
	}
	if host := utils.Env("MIRRORCAST_HOST", ""); host != "" {
		c.Host = host
	}
	if port := utils.EnvInt("MIRRORCAST_WS_PORT", 0); port > 0 {
		c.WSPort = port
	}
	if port := utils.EnvInt("MIRRORCAST_HTTP_PORT", 0); port > 0 {
		c.HTTPPort = port
	}
	if dbPath := utils.Env("MIRRORCAST_DB_PATH", ""); dbPath != "" {
		c.DBPath = dbPath
	}
	if logLevel := utils.Env("MIRRORCAST_LOG_LEVEL", ""); logLevel != "" {
		c.LogLevel = logLevel
	}
	if wsURL := utils.Env("MIRRORCAST_PUBLIC_WS_URL", ""); wsURL != "" {
		c.PublicWSURL = wsURL
	}
	if servers := iceServersFromEnv(); len(servers) > 0 {
		c.ICEServers = servers
	}

	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	switch c.Mode {
	case "":
		c.Mode = ModeProduction
		changed = true
	case ModeDev, ModeLocal, ModeProduction:
	default:
		c.mu.Unlock()
		return fmt.Errorf("invalid mode %q (use dev, local or production)", c.Mode)
	}

	if c.WSPort == 0 {
		c.WSPort = defaultWSPort
		changed = true
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = c.WSPort + 1
		changed = true
	}
	if c.WSPort == c.HTTPPort {
		c.mu.Unlock()
		return fmt.Errorf("ws_port and http_port must differ (both %d)", c.WSPort)
	}

	if c.DBPath == "" {
		dir := "."
		if c.file != "" {
			dir = filepath.Dir(c.file)
		}
		c.DBPath = filepath.Join(dir, "mirrorcast.db")
		changed = true
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
		changed = true
	}

	if c.StatsInterval == 0 {
		c.StatsInterval = 5 * time.Minute
		if c.Mode == ModeDev {
			c.StatsInterval = 2 * time.Minute
		}
		changed = true
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = 30 * time.Second
		changed = true
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = defaultReadLimit
		changed = true
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = defaultSendBuffer
		changed = true
	}

	if len(c.ICEServers) == 0 {
		c.ICEServers = []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
		changed = true
	}

	c.mu.Unlock()

	if changed && save && c.file != "" {
		if err := c.Save(); err != nil {
			return err
		}
	}

	// Host follows the mode unless set explicitly. It is resolved after saving
	// so a later mode switch still picks the right interface.
	c.mu.Lock()
	if c.Host == "" {
		c.Host = hostForMode(c.Mode)
	}
	c.mu.Unlock()
	return nil
}

// iceServersFromEnv reads MIRRORCAST_STUN_URLS and MIRRORCAST_TURN_URLS
// (comma separated) plus the TURN credentials.
func iceServersFromEnv() []ICEServer {
	var servers []ICEServer
	if urls := splitList(utils.Env("MIRRORCAST_STUN_URLS", "")); len(urls) > 0 {
		servers = append(servers, ICEServer{URLs: urls})
	}
	if urls := splitList(utils.Env("MIRRORCAST_TURN_URLS", "")); len(urls) > 0 {
		servers = append(servers, ICEServer{
			URLs:       urls,
			Username:   utils.Env("MIRRORCAST_TURN_USERNAME", ""),
			Credential: utils.Env("MIRRORCAST_TURN_PASSWORD", ""),
		})
	}
	return servers
}

func splitList(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func hostForMode(mode string) string {
	if mode == ModeDev {
		return "localhost"
	}
	return "0.0.0.0"
}

// Load loads configuration from the specified file and environment variables.
// Non-empty logLevel and mode arguments (usually command-line flags) win over
// both.
func Load(version, file, logLevel, mode string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Version: version,
		file:    file,
	}

	if file != "" {
		if _, err := os.Stat(file); err == nil {
			yamlFeeder := feeder.Yaml{Path: file}
			if err := config.New().AddFeeder(yamlFeeder).AddStruct(cfg).Feed(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", file, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config %s: %w", file, err)
		}
	}

	if mode != "" {
		cfg.Mode = mode
	}

	if err := cfg.EnsureDefaultConfig(true); err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	return cfg, nil
}
