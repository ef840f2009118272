package config

import "errors"

var (
	ErrParsingConfig  = errors.New("config: failed to parse environment into config")
	ErrNilPointer     = errors.New("config: nil pointer passed to loader")
	ErrLoadingEnvFile = errors.New("config: failed to load env file")
)
