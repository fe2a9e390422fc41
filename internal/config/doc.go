// Package config loads comiconv's TOML configuration. Values come from the
// built-in defaults, then the config file, then command-line flags applied by
// the caller.
package config
