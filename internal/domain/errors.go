package domain

import "errors"

// Only ErrDeviceUnavailable and ErrInvalidState leave the core. The provider
// errors select the next fallback tier.
var (
	ErrDeviceUnavailable   = errors.New("audio device unavailable")
	ErrInvalidState        = errors.New("invalid session state")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrRateLimited         = errors.New("provider rate limited")
	ErrMalformedResponse   = errors.New("malformed provider response")
)

// IsRecoverable reports whether err should trigger a fallback instead of
// surfacing to the caller.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrDeviceUnavailable) && !errors.Is(err, ErrInvalidState)
}
