// Package config loads runtime configuration for the gate client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c/--config. Comments are allowed.
//  3. GOPHSCAN_* environment variables, with a .env file in the working
//     directory filling in unset ones.
//  4. Command-line flags, which override everything else.
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be either strings like "3s"
// or integer nanoseconds:
//
//	{
//	  // where the ticket server lives
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "mode": "offline",
//	  "sync_interval": "30s",
//	  "event": "democon",
//	  "checkin_list": 1,
//	}
package config
