/*
Package config loads and validates the collector configuration.

# Configuration Architecture

Sources are layered, later ones overriding earlier ones:

	┌─────────────────────────────────────────────┐
	│      Command line (positional + flags)      │ ← Highest Priority
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│   Environment Variables (B2_*, MPYK_*)      │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Configuration File (YAML)            │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              Default Values                 │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Example

	global:
	  log_level: INFO
	  log_format: json
	  metrics_port: 9100
	collector:
	  interval_seconds: 10
	storage:
	  csv_dir: /var/lib/mpyk/csv
	  zip_dir: /var/lib/mpyk/zip
	  buffer_size: 5000
	workers:
	  count: 1
	  queue_size: 64
	upload:
	  bucket: mpyk-archive
	  endpoint: https://s3.us-west-001.backblazeb2.com
	  region: us-west-001
	  storage_class: STANDARD

Credentials are normally taken from B2_APP_KEY_ID and B2_APP_KEY. Setting
B2_BUCKET_NAME (or upload.bucket) enables upload; without it archives stay
in zip_dir.

# Usage

	cfg := config.NewDefault()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

Validation failures are fatal at startup and carry INVALID_CONFIG,
MISSING_CONFIG or CREDENTIALS_MISSING codes.
*/
package config
