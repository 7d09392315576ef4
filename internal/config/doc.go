// Package config loads, normalizes, and validates converter configuration.
//
// Configuration is optional: the converter runs on repository defaults (512px
// longest edge, automatic thread count, 5 minute lock staleness, 2 GiB image
// cache). When present, a TOML file at ~/.config/thumbconv/config.toml or
// ./thumbconv.toml, or the path given with --config, overrides them. The
// package only ever reads configuration.
package config
