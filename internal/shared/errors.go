package shared

import "fmt"

var (
	// Configuration errors
	ErrConfigIncomplete = fmt.Errorf("configuration incomplete")
	ErrInvalidConfig    = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrLoginRequired       = fmt.Errorf("login required")
	ErrAuthRejected        = fmt.Errorf("authentication rejected")
	ErrInvalidRefreshToken = fmt.Errorf("refresh token rejected")

	// Network and service errors
	ErrTransport          = fmt.Errorf("transport failure")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
