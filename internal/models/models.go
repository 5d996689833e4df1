package models

import "time"

// PlaybackPhase is the playback state reported by the device. Values match
// the wire protocol's state codes.
type PlaybackPhase int

const (
	PhaseStopped  PlaybackPhase = 0
	PhasePlaying  PlaybackPhase = 1
	PhasePaused   PlaybackPhase = 2
	PhaseStarting PlaybackPhase = 3
	PhaseAdvert   PlaybackPhase = 1081
	PhaseUnknown  PlaybackPhase = -1
)

func (p PlaybackPhase) String() string {
	switch p {
	case PhaseStopped:
		return "stopped"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseStarting:
		return "buffering"
	case PhaseAdvert:
		return "ad"
	default:
		return "unknown"
	}
}

// PlaybackState is the last playback snapshot received from a device.
// CurrentTime is the position in seconds as of At.
type PlaybackState struct {
	VideoID     string
	Phase       PlaybackPhase
	CurrentTime float64
	Duration    float64
	Speed       float64
	At          time.Time
}

// VolumeState caches the volume the device last reported so mute commands
// can be skipped when the device is already in the desired state.
type VolumeState struct {
	Volume int
	Muted  bool
	Known  bool
}

// Segment is a merged skip region [Start, End) in seconds. UUIDs are the
// identifiers of every crowdsourced report merged into the region. Locked is
// true only if every contributor was locked.
type Segment struct {
	Start  float64
	End    float64
	UUIDs  []string
	Locked bool
}

// DeviceStatus is a per-device snapshot published to the dashboard.
type DeviceStatus struct {
	Name      string    `json:"name"`
	ScreenID  string    `json:"screenId"`
	Connected bool      `json:"connected"`
	VideoID   string    `json:"videoId,omitempty"`
	Phase     string    `json:"phase"`
	Position  float64   `json:"position"`
	LastEvent time.Time `json:"lastEvent"`
}

// SkipEvent is one executed segment skip, persisted for the dashboard history.
type SkipEvent struct {
	ID           int64     `json:"id"`
	DeviceName   string    `json:"deviceName"`
	VideoID      string    `json:"videoId"`
	SegmentStart float64   `json:"segmentStart"`
	SegmentEnd   float64   `json:"segmentEnd"`
	ReportCount  int       `json:"reportCount"`
	SkippedAt    time.Time `json:"skippedAt"`
}
