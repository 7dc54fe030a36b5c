package mongo

import "errors"

var (
	ErrEmptyConnectionURL = errors.New("empty mongo connection URL")
	ErrInvalidConfig      = errors.New("invalid mongo client options")
	ErrMongoNotReady      = errors.New("mongo is not ready")
	ErrHealthcheckFailed  = errors.New("mongo healthcheck failed")
)
