package audioio

import "errors"

// Sentinel errors for the audioio package.
var (
	// ErrDeviceUnavailable indicates no capture or playback device exists.
	ErrDeviceUnavailable = errors.New("audioio: device unavailable")

	// ErrPermissionDenied indicates the platform refused device access.
	ErrPermissionDenied = errors.New("audioio: permission denied")

	// ErrUnsupportedBackend indicates the requested backend is not compiled in.
	ErrUnsupportedBackend = errors.New("audioio: unsupported backend")
)
