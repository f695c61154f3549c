// Package config loads, normalizes, and validates FileForge configuration.
//
// Configuration is read from TOML (either ~/.config/fileforge/config.toml or
// a fileforge.toml in the working directory), with defaults applied for every
// field and a handful of secrets overridable via environment variables. Paths
// are expanded and made absolute during normalization so the rest of the
// system never deals with "~" or relative directories.
package config
