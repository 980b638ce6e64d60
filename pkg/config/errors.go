package config

import "errors"

var (
	// ErrMissingRequired indicates a required option was not supplied.
	ErrMissingRequired = errors.New("missing required option")

	// ErrInvalidConfig indicates the config file could not be read or parsed.
	ErrInvalidConfig = errors.New("invalid config")
)
