package config

import "errors"

var (
	// ErrUnsupportedFormat is returned for config files that are neither TOML nor YAML.
	ErrUnsupportedFormat = errors.New("unsupported config file format, want .toml, .yaml or .yml")

	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid configuration")
)
