// Package config loads runtime configuration for the radsync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or --config.
//  3. Command-line flags bound by the cobra root command.
//
// # JSON schema
//
//	{
//	  "base_url": "https://sync.example.org",
//	  "db_path": "/var/lib/radsync/local.db",
//	  "queue_dir": "/var/lib/radsync/queue",
//	  "delta_interval": "15m",
//	  "flush_interval": "1m",
//	  "online_check_interval": "10s",
//	  "request_timeout": "15s",
//	  "persist_validators": true,
//	  "log_file": "/var/log/radsync/agent.log"
//	}
package config
