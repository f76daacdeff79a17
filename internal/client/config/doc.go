// Package config loads runtime configuration for the GophJournal CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "health_addr": "127.0.0.1:50051",
//	  "data_dir": "/home/me/.config/gophjournal",
//	  "online_check_interval": "3s",
//	  "request_timeout": "10s",
//	  "limits_ttl": "5m",
//	  "log_level": "warn"
//	}
package config
