package device

import "errors"

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrItemNotFound   = errors.New("media item not found")
	ErrUnsupported    = errors.New("operation not supported by backend")
)
