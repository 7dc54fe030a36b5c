package config

import "errors"

var (
	ErrNilPointer    = errors.New("config: nil destination")
	ErrParsingConfig = errors.New("config: failed to parse environment")
	ErrEnvFile       = errors.New("config: failed to read env file")
)
