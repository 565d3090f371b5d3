package config

import (
	"io"

	"github.com/spf13/pflag"
)

// newFlagSet binds the command-line flags to cfg. Every flag defaults to the
// current value, so parsing only changes what is given.
func newFlagSet(cfg *Config, configPath *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("gophscan", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVarP(configPath, "config", "c", "", "path to a JSON config file (comments allowed)")
	fs.StringVarP(&cfg.ServerEndpointAddr, "address", "a", cfg.ServerEndpointAddr, "address and port of the ticket server")
	fs.StringVarP(&cfg.DeviceToken, "token", "t", cfg.DeviceToken, "device API token")
	fs.StringVarP(&cfg.DatabasePath, "db", "d", cfg.DatabasePath, "path of the local ticket store")
	fs.StringVarP(&cfg.Mode, "mode", "m", cfg.Mode, "validation mode: online, offline or signed")
	fs.BoolVar(&cfg.AutoSync, "auto-sync", cfg.AutoSync, "upload queued scans in the background")
	fs.DurationVar(&cfg.SyncInterval, "sync-interval", cfg.SyncInterval, "background upload interval")
	fs.DurationVarP(&cfg.OnlineCheckInterval, "online-check-interval", "i", cfg.OnlineCheckInterval, "server reachability check interval")
	fs.DurationVar(&cfg.UploadTimeout, "upload-timeout", cfg.UploadTimeout, "timeout of a single queued upload")
	fs.DurationVar(&cfg.SearchDebounce, "search-debounce", cfg.SearchDebounce, "quiet period before a search is sent")
	fs.StringVarP(&cfg.EventSlug, "event", "e", cfg.EventSlug, "event slug")
	fs.Int64VarP(&cfg.CheckInListID, "list", "l", cfg.CheckInListID, "check-in list id")
	fs.StringVar(&cfg.Direction, "direction", cfg.Direction, "default scan direction: entry or exit")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "display language (BCP 47)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	return fs
}

// configPath extracts -c/--config without touching any other setting.
func configPath(args []string) (string, error) {
	var (
		scratch Config
		path    string
	)
	if err := newFlagSet(&scratch, &path).Parse(args); err != nil {
		return "", err
	}
	return path, nil
}

// parseFlags overlays cfg with the flags present in args.
func parseFlags(cfg *Config, args []string) error {
	var path string
	return newFlagSet(cfg, &path).Parse(args)
}

// Usage describes the flags.
func Usage() string {
	var (
		scratch Config
		path    string
	)
	scratch.LoadDefaults()
	return newFlagSet(&scratch, &path).FlagUsages()
}
