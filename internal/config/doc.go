// Package config holds the runtime configuration for playcrawl.
//
// Configuration comes from three places, in increasing precedence: built-in
// defaults (NewConfig), an optional YAML file (.playcrawl) carrying device
// profile and endpoint overrides, and CLI flags. The resulting Config is
// passed through the application by dependency injection; there is no
// package-level configuration state.
package config
