package intake

import "errors"

var (
	ErrNoBrokers     = errors.New("intake: no brokers configured")
	ErrInvalidConfig = errors.New("intake: invalid configuration")
	ErrConnect       = errors.New("intake: failed to create consumer group")
	ErrMalformed     = errors.New("intake: malformed delivery request")
)
