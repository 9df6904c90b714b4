// Package cache provides the optional on-disk response cache for idempotent
// API reads.
//
// Entries are keyed by the SHA-256 of a request's canonical shape (method,
// URL, query parameters, and body) and expire after a configurable age.
// The cache is disabled by default. Enable it in config.toml:
//
//	[cache]
//	enabled = true
//	max_age_seconds = 3600
//
// The file lives at paths.cache_file (default
// ~/.local/share/yotoup/api_cache.json) next to an advisory lock file.
package cache
