package models

import "errors"

// Error taxonomy for the lounge client. Transport failures are plain wrapped
// errors and are always recoverable by retrying; the sentinels below mark the
// two conditions that are not.
var (
	// ErrAuth means the long-lived lounge token was rejected. Retrying is
	// pointless until the device is paired again.
	ErrAuth = errors.New("lounge token rejected")

	// ErrScreenTakeover means the far end refused a controller bind and
	// accepted us as a screen instead. Continuing would corrupt the real
	// playback surface, so the process must stop.
	ErrScreenTakeover = errors.New("bound as a screen, another controller owns this session")
)
