package lounge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"loungeskip/internal/models"
)

// Event is one decoded wire event: a monotonically increasing sequence
// number and a typed payload.
type Event struct {
	AID  int64
	Type string
	Args []json.RawMessage
}

// parseChunks reads the long-poll framing: a decimal length line naming the
// size of the JSON payload that follows, repeated until the stream ends.
// Each payload is an ordered array of [aid, ["eventType", args...]] pairs.
func parseChunks(r io.Reader, emit func(Event)) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if err == io.EOF && strings.TrimSpace(line) == "" {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			return fmt.Errorf("bad chunk length %q", line)
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(br, payload); err != nil {
			return fmt.Errorf("short chunk: %w", err)
		}
		events, err := decodeChunk(payload)
		if err != nil {
			return err
		}
		for _, ev := range events {
			emit(ev)
		}
	}
}

func decodeChunk(payload []byte) ([]Event, error) {
	var raw [][]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decoding chunk: %w", err)
	}
	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		if len(item) != 2 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(item[0], &ev.AID); err != nil {
			continue
		}
		var body []json.RawMessage
		if err := json.Unmarshal(item[1], &body); err != nil || len(body) == 0 {
			continue
		}
		if err := json.Unmarshal(body[0], &ev.Type); err != nil {
			continue
		}
		ev.Args = body[1:]
		events = append(events, ev)
	}
	return events, nil
}

type handler func(s *Session, args []json.RawMessage)

// handlers maps event types to their reactions. Unlisted types (including
// "noop" heartbeats) still feed the liveness watchdog via dispatch.
var handlers = map[string]handler{
	"c":                        (*Session).onSessionEstablished,
	"S":                        (*Session).onSessionGeneration,
	"onStateChange":            (*Session).onStateChange,
	"nowPlaying":               (*Session).onNowPlaying,
	"onAdStateChange":          (*Session).onAdStateChange,
	"adPlaying":                (*Session).onAdPlaying,
	"autoplayUpNext":           (*Session).onAutoplayUpNext,
	"onVolumeChanged":          (*Session).onVolumeChanged,
	"loungeStatus":             (*Session).onLoungeStatus,
	"loungeScreenDisconnected": (*Session).onScreenDisconnected,
	"onSubtitlesTrackChanged":  (*Session).onSubtitlesTrackChanged,
	"onAutoplayModeChanged":    (*Session).onAutoplayModeChanged,
	"onPlaybackSpeedChanged":   (*Session).onPlaybackSpeedChanged,
}

// dispatch processes one event synchronously, in received order.
func (s *Session) dispatch(ev Event) {
	slog.Debug("lounge event", "screen", s.screenID, "type", ev.Type, "aid", ev.AID)

	s.mu.Lock()
	s.lastEvent = time.Now()
	if ev.AID > s.aid {
		s.aid = ev.AID
	}
	s.mu.Unlock()

	if h, ok := handlers[ev.Type]; ok {
		h(s, ev.Args)
	}
}

func firstArg[T any](args []json.RawMessage) (T, bool) {
	var v T
	if len(args) == 0 {
		return v, false
	}
	if err := json.Unmarshal(args[0], &v); err != nil {
		return v, false
	}
	return v, true
}

func (s *Session) onSessionEstablished(args []json.RawMessage) {
	if sid, ok := firstArg[string](args); ok && sid != "" {
		s.mu.Lock()
		s.sid = sid
		s.mu.Unlock()
	}
}

func (s *Session) onSessionGeneration(args []json.RawMessage) {
	if g, ok := firstArg[string](args); ok && g != "" {
		s.mu.Lock()
		s.gsession = g
		s.mu.Unlock()
	}
}

// playbackData is the state payload of onStateChange/nowPlaying. The wire
// encodes every number as a string.
type playbackData struct {
	State       string `json:"state"`
	VideoID     string `json:"videoId"`
	CurrentTime string `json:"currentTime"`
	Duration    string `json:"duration"`
}

func (s *Session) applyPlayback(data playbackData) models.PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = models.PlaybackState{
		VideoID:     data.VideoID,
		Phase:       parsePhase(data.State),
		CurrentTime: atof(data.CurrentTime),
		Duration:    atof(data.Duration),
		Speed:       s.speed,
		At:          time.Now(),
	}
	return s.state
}

func (s *Session) onStateChange(args []json.RawMessage) {
	data, ok := firstArg[playbackData](args)
	if !ok {
		return
	}
	state := s.applyPlayback(data)
	if s.opts.MuteAds && state.Phase == models.PhasePlaying {
		s.detach("unmute", func(ctx context.Context) error { return s.Mute(ctx, false, true) })
	}
	if s.onState != nil {
		s.onState(state)
	}
}

func (s *Session) onNowPlaying(args []json.RawMessage) {
	data, ok := firstArg[playbackData](args)
	if !ok {
		return
	}
	state := s.applyPlayback(data)
	if s.opts.MuteAds && state.Phase == models.PhasePlaying {
		log.Printf("lounge %s: ad ended, unmuting", s.screenID)
		s.detach("unmute", func(ctx context.Context) error { return s.Mute(ctx, false, true) })
	}
	if s.onState != nil {
		s.onState(state)
	}
}

type adStateData struct {
	AdState       string `json:"adState"`
	IsSkipEnabled string `json:"isSkipEnabled"`
}

func (s *Session) onAdStateChange(args []json.RawMessage) {
	data, ok := firstArg[adStateData](args)
	if !ok {
		return
	}
	switch {
	case data.AdState == "0":
		log.Printf("lounge %s: ad ended, unmuting", s.screenID)
		s.detach("unmute", func(ctx context.Context) error { return s.Mute(ctx, false, true) })
	case s.opts.SkipAds && data.IsSkipEnabled == "true": // booleans come as strings
		log.Printf("lounge %s: ad is skippable, skipping", s.screenID)
		s.detach("skip ad", func(ctx context.Context) error { return s.SkipAd(ctx) })
		s.detach("unmute", func(ctx context.Context) error { return s.Mute(ctx, false, true) })
	case s.opts.MuteAds:
		// Every other adState observed so far is some flavor of ad.
		log.Printf("lounge %s: ad started, muting", s.screenID)
		s.detach("mute", func(ctx context.Context) error { return s.Mute(ctx, true, true) })
	}
}

type adPlayingData struct {
	ContentVideoID string `json:"contentVideoId"`
	IsSkipEnabled  string `json:"isSkipEnabled"`
}

func (s *Session) onAdPlaying(args []json.RawMessage) {
	data, ok := firstArg[adPlayingData](args)
	if !ok {
		return
	}
	switch {
	case data.ContentVideoID != "":
		// Warm the segment cache for the video behind the ad.
		s.prefetchSegments(data.ContentVideoID)
	case s.opts.SkipAds && data.IsSkipEnabled == "true":
		log.Printf("lounge %s: ad is skippable, skipping", s.screenID)
		s.detach("skip ad", func(ctx context.Context) error { return s.SkipAd(ctx) })
		s.detach("unmute", func(ctx context.Context) error { return s.Mute(ctx, false, true) })
	case s.opts.MuteAds:
		log.Printf("lounge %s: ad started, muting", s.screenID)
		s.detach("mute", func(ctx context.Context) error { return s.Mute(ctx, true, true) })
	}
}

func (s *Session) onAutoplayUpNext(args []json.RawMessage) {
	data, ok := firstArg[struct {
		VideoID string `json:"videoId"`
	}](args)
	if ok && data.VideoID != "" {
		s.prefetchSegments(data.VideoID)
	}
}

func (s *Session) prefetchSegments(videoID string) {
	if s.segments == nil {
		return
	}
	log.Printf("lounge %s: warming segments for next video %s", s.screenID, videoID)
	s.detach("segment prefetch", func(ctx context.Context) error {
		_, err := s.segments.GetSegments(ctx, videoID)
		return err
	})
}

func (s *Session) onVolumeChanged(args []json.RawMessage) {
	data, ok := firstArg[struct {
		Volume string `json:"volume"`
		Muted  string `json:"muted"`
	}](args)
	if !ok {
		return
	}
	s.mu.Lock()
	s.volume = models.VolumeState{
		Volume: atoi(data.Volume),
		Muted:  data.Muted == "true",
		Known:  true,
	}
	s.mu.Unlock()
}

// rosterDevice is one entry of the loungeStatus device roster. DeviceInfo is
// a JSON object double-encoded as a string.
type rosterDevice struct {
	App        string `json:"app"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	DeviceInfo string `json:"deviceInfo"`
}

func (d rosterDevice) clientName() string {
	var info struct {
		ClientName string `json:"clientName"`
	}
	if err := json.Unmarshal([]byte(d.DeviceInfo), &info); err != nil {
		return ""
	}
	return info.ClientName
}

func (s *Session) onLoungeStatus(args []json.RawMessage) {
	data, ok := firstArg[struct {
		Devices string `json:"devices"`
	}](args)
	if !ok {
		return
	}
	var roster []rosterDevice
	if err := json.Unmarshal([]byte(data.Devices), &roster); err != nil {
		return
	}
	s.mu.Lock()
	s.lastRoster = roster
	s.mu.Unlock()

	for _, d := range roster {
		if d.Type != "LOUNGE_SCREEN" {
			continue
		}
		for _, banned := range screenDenylist {
			if d.clientName() == banned {
				log.Printf("lounge %s: screen runs unsupported client %s, dropping session", s.screenID, banned)
				go s.DropConnection()
				return
			}
		}
	}
}

func (s *Session) onScreenDisconnected(args []json.RawMessage) {
	data, ok := firstArg[struct {
		Reason string `json:"reason"`
	}](args)
	if !ok {
		return // sometimes empty
	}
	if data.Reason == "disconnectedByUserScreenInitiated" {
		// Possibly a short-form interstitial; confirmed if a subtitle-track
		// event follows.
		s.mu.Lock()
		s.shortsQuirk = true
		s.mu.Unlock()
	}
}

func (s *Session) onSubtitlesTrackChanged(args []json.RawMessage) {
	s.mu.Lock()
	quirk := s.shortsQuirk
	s.shortsQuirk = false
	s.mu.Unlock()
	if !quirk {
		return
	}
	data, ok := firstArg[struct {
		VideoID string `json:"videoId"`
	}](args)
	if !ok || data.VideoID == "" {
		return
	}
	log.Printf("lounge %s: short-form interstitial detected, resuming %s", s.screenID, data.VideoID)
	videoID := data.VideoID
	s.detach("resume video", func(ctx context.Context) error { return s.PlayVideo(ctx, videoID) })
}

func (s *Session) onAutoplayModeChanged(args []json.RawMessage) {
	// The device resets the preference; put it back.
	s.detach("autoplay mode", func(ctx context.Context) error {
		return s.SetAutoplayMode(ctx, s.opts.AutoPlay)
	})
}

func (s *Session) onPlaybackSpeedChanged(args []json.RawMessage) {
	data, ok := firstArg[struct {
		PlaybackSpeed string `json:"playbackSpeed"`
	}](args)
	if !ok {
		return
	}
	speed := atof(data.PlaybackSpeed)
	if speed <= 0 {
		speed = 1.0
	}
	s.mu.Lock()
	s.speed = speed
	s.mu.Unlock()
	// Skip timing depends on the multiplier; ask for a fresh snapshot.
	s.detach("now playing", func(ctx context.Context) error { return s.requestNowPlaying(ctx) })
}

func parsePhase(state string) models.PlaybackPhase {
	n, err := strconv.Atoi(state)
	if err != nil {
		return models.PhaseUnknown
	}
	switch p := models.PlaybackPhase(n); p {
	case models.PhaseStopped, models.PhasePlaying, models.PhasePaused, models.PhaseStarting, models.PhaseAdvert:
		return p
	default:
		return models.PhaseUnknown
	}
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
