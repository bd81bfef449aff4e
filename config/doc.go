// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the server, logging, circuit defaults,
// per-service overrides, metrics sampling and snapshot persistence settings.
package config
