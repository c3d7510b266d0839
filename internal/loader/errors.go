package loader

import "errors"

var (
	// ErrConfigNotFound is returned when no configuration file resolves.
	ErrConfigNotFound = errors.New("proxy config not found")
	// ErrConfigMalformed is returned when a configuration file does not expose
	// a devServer.proxy mapping of valid rules.
	ErrConfigMalformed = errors.New("proxy config malformed")
)
