package broker

import "errors"

var (
	ErrAlreadyRunning  = errors.New("broker is already running")
	ErrStopped         = errors.New("broker is stopped")
	ErrNoBroadcastFunc = errors.New("broadcast function is not set")
	ErrNoAnalyticsSink = errors.New("analytics sink is not set")
)
