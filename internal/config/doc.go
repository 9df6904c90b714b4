// Package config loads, normalizes, and validates yotoup configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// YOTO_CLIENT_ID. Local state locations (tokens, response cache, card
// snapshots, batch journal) are derived from the config and data directories
// unless set explicitly.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical log formats, and clear validation errors.
package config
