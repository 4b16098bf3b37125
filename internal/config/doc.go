// Package config loads drainq configuration from defaults, an optional
// JSON or YAML file, and DQ_* environment variables, in that order of
// precedence (later layers win).
package config
