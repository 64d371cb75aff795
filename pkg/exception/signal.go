package exception

import "errors"

var (
	ErrSignalQueueFull   = errors.New("signal: queue full")
	ErrSignalRejected    = errors.New("signal: rejected by validator")
	ErrSignalNilDelegate = errors.New("signal: nil collaborator")
)
