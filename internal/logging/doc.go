// Package logging constructs slog loggers and standardizes the attribute
// keys used across FileForge components so job, file, and pipeline
// identifiers stay greppable in both console and JSON output.
package logging
