//go:build !linux && !darwin
// +build !linux,!darwin

package watch

// NewBackend constructs the platform-appropriate Backend. Neither inotify
// nor FSEvents is available here, so watching falls back to directory-walk
// polling.
func NewBackend(filter Filter) Backend {
	return NewPollingBackend(filter, PollDefaultInterval)
}
