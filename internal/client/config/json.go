package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophscan/internal/timex"
	"github.com/tidwall/jsonc"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Intervals
// use timex.Duration so they can be written as "3s" or as integer
// nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	DeviceToken         string         `json:"device_token"`
	DatabasePath        string         `json:"database_path"`
	Mode                string         `json:"mode"`
	AutoSync            bool           `json:"auto_sync"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	UploadTimeout       timex.Duration `json:"upload_timeout"`
	SearchDebounce      timex.Duration `json:"search_debounce"`
	EventSlug           string         `json:"event"`
	CheckInListID       int64          `json:"checkin_list"`
	Direction           string         `json:"direction"`
	Locale              string         `json:"locale"`
	LogLevel            string         `json:"log_level"`
	LogFormat           string         `json:"log_format"`
}

func toJSON(c *Config) JsonConfig {
	return JsonConfig{
		ServerEndpointAddr:  c.ServerEndpointAddr,
		DeviceToken:         c.DeviceToken,
		DatabasePath:        c.DatabasePath,
		Mode:                c.Mode,
		AutoSync:            c.AutoSync,
		SyncInterval:        timex.Duration{Duration: c.SyncInterval},
		OnlineCheckInterval: timex.Duration{Duration: c.OnlineCheckInterval},
		UploadTimeout:       timex.Duration{Duration: c.UploadTimeout},
		SearchDebounce:      timex.Duration{Duration: c.SearchDebounce},
		EventSlug:           c.EventSlug,
		CheckInListID:       c.CheckInListID,
		Direction:           c.Direction,
		Locale:              c.Locale,
		LogLevel:            c.LogLevel,
		LogFormat:           c.LogFormat,
	}
}

func (jc JsonConfig) apply(c *Config) {
	c.ServerEndpointAddr = jc.ServerEndpointAddr
	c.DeviceToken = jc.DeviceToken
	c.DatabasePath = jc.DatabasePath
	c.Mode = jc.Mode
	c.AutoSync = jc.AutoSync
	c.SyncInterval = jc.SyncInterval.Duration
	c.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	c.UploadTimeout = jc.UploadTimeout.Duration
	c.SearchDebounce = jc.SearchDebounce.Duration
	c.EventSlug = jc.EventSlug
	c.CheckInListID = jc.CheckInListID
	c.Direction = jc.Direction
	c.Locale = jc.Locale
	c.LogLevel = jc.LogLevel
	c.LogFormat = jc.LogFormat
}

// parseJSON overlays cfg with the settings of the file at path. The file may
// contain comments and trailing commas; keys it omits keep their values.
func parseJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	jc := toJSON(cfg)
	if err := json.Unmarshal(jsonc.ToJSON(data), &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	jc.apply(cfg)
	return nil
}
