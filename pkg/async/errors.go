package async

import "errors"

// ErrAbandoned is returned by AwaitContext when the caller stops waiting.
var ErrAbandoned = errors.New("async: stopped waiting for future")
