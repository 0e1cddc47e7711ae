// Package config loads, normalizes, and validates tunesmith configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TUNESMITH_NTFY_TOPIC and TUNESMITH_BROWSER_BIN. The Config type centralizes
// site endpoints, per-phase timeouts, the retry policy and worker pool size so
// both pipelines read them from one place.
package config
