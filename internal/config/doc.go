// Package config loads, normalizes, and validates studyhub configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY and REDIS_URL. The Config type centralizes every knob the
// daemon and CLI need: upload limits, retry bounds, adapter endpoints.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
