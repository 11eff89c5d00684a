package core

import "errors"

var (
	ErrJobRunning  = errors.New("a transfer is already running")
	ErrJobNotFound = errors.New("job not found")
)
