package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"golang.org/x/text/language"
)

// Config holds runtime settings of the gate client.
//
// Units: all intervals are time.Duration values.
type Config struct {
	ServerEndpointAddr  string        `env:"SERVER_ENDPOINT_ADDR"`
	DeviceToken         string        `env:"DEVICE_TOKEN"`
	DatabasePath        string        `env:"DATABASE_PATH"`
	Mode                string        `env:"MODE"`
	AutoSync            bool          `env:"AUTO_SYNC"`
	SyncInterval        time.Duration `env:"SYNC_INTERVAL"`
	OnlineCheckInterval time.Duration `env:"ONLINE_CHECK_INTERVAL"`
	UploadTimeout       time.Duration `env:"UPLOAD_TIMEOUT"`
	SearchDebounce      time.Duration `env:"SEARCH_DEBOUNCE"`
	EventSlug           string        `env:"EVENT"`
	CheckInListID       int64         `env:"CHECKIN_LIST"`
	Direction           string        `env:"DIRECTION"`
	Locale              string        `env:"LOCALE"`
	LogLevel            string        `env:"LOG_LEVEL"`
	LogFormat           string        `env:"LOG_FORMAT"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabasePath = "gophscan.db"
	c.Mode = "online"
	c.AutoSync = true
	c.SyncInterval = 30 * time.Second
	c.OnlineCheckInterval = 10 * time.Second
	c.UploadTimeout = 30 * time.Second
	c.SearchDebounce = 300 * time.Millisecond
	c.Direction = string(models.DirectionEntry)
	c.Locale = "en"
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.ServerEndpointAddr == "":
		return errors.New("server endpoint address is empty")
	case c.DatabasePath == "":
		return errors.New("database path is empty")
	case c.Mode != "online" && c.Mode != "offline" && c.Mode != "signed":
		return fmt.Errorf("unknown mode %q (want online, offline or signed)", c.Mode)
	case !models.Direction(c.Direction).Valid():
		return fmt.Errorf("unknown direction %q (want entry or exit)", c.Direction)
	case c.SyncInterval <= 0, c.OnlineCheckInterval <= 0, c.UploadTimeout <= 0:
		return errors.New("intervals and timeouts must be positive")
	case c.SearchDebounce < 0:
		return errors.New("search debounce must not be negative")
	case c.CheckInListID < 0:
		return fmt.Errorf("invalid check-in list id %d", c.CheckInListID)
	case (c.EventSlug == "") != (c.CheckInListID == 0):
		return errors.New("event and check-in list must be given together")
	}
	if _, err := language.Parse(c.Locale); err != nil {
		return fmt.Errorf("invalid locale %q: %w", c.Locale, err)
	}
	return nil
}

// Language is the display locale.
func (c *Config) Language() language.Tag {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.English
	}
	return tag
}

// Selection is the event and list preselected by configuration, if any.
func (c *Config) Selection() models.Selection {
	return models.Selection{EventSlug: c.EventSlug, CheckInListID: c.CheckInListID}
}

// Load builds a Config from defaults, the JSON file named by -c/--config,
// environ and args. Later sources take precedence over earlier ones.
func Load(args []string, environ map[string]string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	path, err := configPath(args)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := parseJSON(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := parseEnv(cfg, environ); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadConfig loads the process configuration. Variables from a .env file in
// the working directory fill in what the environment leaves unset.
func LoadConfig() (*Config, error) {
	environ := environMap(os.Environ())
	if err := loadDotEnv(".env", environ); err != nil {
		return nil, err
	}
	return Load(os.Args[1:], environ)
}

func environMap(kv []string) map[string]string {
	m := make(map[string]string, len(kv))
	for _, e := range kv {
		if k, v, ok := strings.Cut(e, "="); ok {
			m[k] = v
		}
	}
	return m
}

func loadDotEnv(path string, environ map[string]string) error {
	values, err := readDotEnv(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for k, v := range values {
		if _, set := environ[k]; !set {
			environ[k] = v
		}
	}
	return nil
}
