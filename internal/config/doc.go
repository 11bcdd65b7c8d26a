// Package config loads, normalizes, and validates anibridge-plex configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and layers PLEX_* environment overrides on top
// of the file values. The provider block lives under
// [library_provider_config.plex] and mirrors the keys the AniBridge host passes
// to library providers: url, token, user, sections, genres, and strict.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, a resolved strict flag, and clear validation errors.
package config
