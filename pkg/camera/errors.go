package camera

import (
	"errors"
	"fmt"
)

// Sentinel errors for camera sessions.
var (
	ErrNoDevice        = errors.New("camera: no camera device")
	ErrClosed          = errors.New("camera: session closed")
	ErrConfigureFailed = errors.New("camera: session configuration failed")
	ErrDisconnected    = errors.New("camera: device disconnected")
)

// AccessError is returned when cameras cannot be enumerated or opened.
type AccessError struct {
	Op  string // "enumerate" or "open"
	ID  string // Camera ID, empty for enumerate
	Err error
}

// Error implements the error interface.
func (e *AccessError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("camera: %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("camera: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *AccessError) Unwrap() error {
	return e.Err
}

// DeviceError is a fatal error reported by an open camera.
type DeviceError struct {
	Code int
	Err  error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("camera: device error %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("camera: device error %d", e.Code)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// IsAccessError reports whether err is an AccessError.
func IsAccessError(err error) bool {
	var ae *AccessError
	return errors.As(err, &ae)
}
