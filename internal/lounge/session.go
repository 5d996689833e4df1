package lounge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"loungeskip/internal/httputil"
	"loungeskip/internal/models"
)

const (
	defaultAPIBase = "https://www.youtube.com/api/lounge"

	bindVersion  = "8"
	bindCVersion = "1"
)

// screenDenylist lists client profiles that cannot be controlled reliably.
// A roster entry matching one forces a disconnect.
var screenDenylist = []string{"TVHTML5_FOR_KIDS"}

// SegmentSource is the slice of the segment cache the session needs for
// warming up "up next" lookups.
type SegmentSource interface {
	GetSegments(ctx context.Context, videoID string) ([]models.Segment, error)
}

// Options are the per-run feature flags the session acts on while
// dispatching events.
type Options struct {
	JoinName string
	MuteAds  bool
	SkipAds  bool
	AutoPlay bool
}

// Session owns one device's authenticated long-poll channel: the bind
// handshake, the event stream with its liveness watchdog, and the serialized
// outbound command path.
type Session struct {
	screenID string
	deviceID string
	opts     Options
	segments SegmentSource

	apiBase string
	http    *http.Client
	stream  *http.Client

	mu          sync.Mutex
	loungeToken string
	screenName  string
	sid         string
	gsession    string
	aid         int64 // highest event sequence received
	ofs         int   // outbound command offset
	rid         int   // outbound request id
	state       models.PlaybackState
	volume      models.VolumeState
	speed       float64
	lastEvent   time.Time
	lastRoster  []rosterDevice
	shortsQuirk bool

	cmdMu sync.Mutex

	onState func(models.PlaybackState)

	subMu     sync.Mutex
	subCancel context.CancelFunc
	subDone   chan struct{}

	taskCtx    context.Context
	taskCancel context.CancelFunc
	tasks      sync.WaitGroup

	watchdogPoll      time.Duration
	watchdogTolerance time.Duration
}

func New(screenID string, segs SegmentSource, opts Options) *Session {
	if opts.JoinName == "" {
		opts.JoinName = "loungeskip"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		screenID:          screenID,
		deviceID:          randomID(),
		opts:              opts,
		segments:          segs,
		apiBase:           defaultAPIBase,
		http:              httputil.NewClient(),
		stream:            httputil.NewStreamClient(),
		speed:             1.0,
		taskCtx:           ctx,
		taskCancel:        cancel,
		watchdogPoll:      5 * time.Second,
		watchdogTolerance: 60 * time.Second,
	}
}

// NewWithAPIBase points the session at a different API root, for tests.
func NewWithAPIBase(screenID string, segs SegmentSource, opts Options, apiBase string) *Session {
	s := New(screenID, segs, opts)
	s.apiBase = strings.TrimRight(apiBase, "/")
	return s
}

// Linked reports whether a long-lived lounge token is held.
func (s *Session) Linked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loungeToken != ""
}

// Connected reports whether the rotating session fields from the last bind
// are still held.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid != "" && s.gsession != ""
}

func (s *Session) ScreenID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screenID
}

func (s *Session) ScreenName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screenName
}

// State returns the last playback snapshot received from the device.
func (s *Session) State() models.PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastEvent returns the wall-clock time of the last protocol activity.
func (s *Session) LastEvent() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEvent
}

// Pair exchanges a user-entered pairing code for the screen's stable id and
// a long-lived lounge token.
func (s *Session) Pair(ctx context.Context, code string) error {
	code = strings.NewReplacer("-", "", " ", "").Replace(code)
	resp, err := s.postForm(ctx, "/pairing/get_screen", url.Values{"pairing_code": {code}})
	if err != nil {
		return err
	}
	defer httputil.DrainBody(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pairing returned status %d", resp.StatusCode)
	}

	var result struct {
		Screen struct {
			ScreenID    string `json:"screenId"`
			Name        string `json:"name"`
			LoungeToken string `json:"loungeToken"`
		} `json:"screen"`
	}
	if err := decodeBody(resp.Body, &result); err != nil {
		return fmt.Errorf("parsing pairing response: %w", err)
	}
	if result.Screen.ScreenID == "" {
		return fmt.Errorf("pairing response missing screen id")
	}

	s.mu.Lock()
	s.screenID = result.Screen.ScreenID
	s.screenName = result.Screen.Name
	s.loungeToken = result.Screen.LoungeToken
	s.mu.Unlock()
	return nil
}

// RefreshAuth exchanges the stable screen id for a fresh long-lived lounge
// token. A rejection means the pairing itself is gone.
func (s *Session) RefreshAuth(ctx context.Context) error {
	resp, err := s.postForm(ctx, "/pairing/get_lounge_token_batch", url.Values{"screen_ids": {s.screenID}})
	if err != nil {
		return err
	}
	defer httputil.DrainBody(resp)
	if resp.StatusCode == http.StatusUnauthorized {
		return models.ErrAuth
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token refresh returned status %d", resp.StatusCode)
	}

	var result struct {
		Screens []struct {
			LoungeToken string `json:"loungeToken"`
			Name        string `json:"name"`
		} `json:"screens"`
	}
	if err := decodeBody(resp.Body, &result); err != nil {
		return fmt.Errorf("parsing token response: %w", err)
	}
	if len(result.Screens) == 0 || result.Screens[0].LoungeToken == "" {
		return models.ErrAuth
	}

	s.mu.Lock()
	s.loungeToken = result.Screens[0].LoungeToken
	if result.Screens[0].Name != "" {
		s.screenName = result.Screens[0].Name
	}
	s.mu.Unlock()
	return nil
}

// IsAvailable probes whether the screen is reachable right now. Any failure
// reads as unavailable; the caller polls.
func (s *Session) IsAvailable(ctx context.Context) bool {
	s.mu.Lock()
	token := s.loungeToken
	s.mu.Unlock()
	if token == "" {
		return false
	}
	resp, err := s.postForm(ctx, "/pairing/get_screen_availability", url.Values{"lounge_token": {token}})
	if err != nil {
		return false
	}
	defer httputil.DrainBody(resp)
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var result struct {
		Screens []struct {
			Status string `json:"status"`
		} `json:"screens"`
	}
	if err := decodeBody(resp.Body, &result); err != nil {
		return false
	}
	return len(result.Screens) > 0 && result.Screens[0].Status == "online"
}

// Connect performs the bind handshake, replacing the rotating session fields
// with fresh ones from the response. It returns models.ErrAuth if the token
// was rejected and models.ErrScreenTakeover if the far end demoted this bind
// to a passive screen because another controller owns the session.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	token := s.loungeToken
	s.sid = ""
	s.gsession = ""
	s.aid = 0
	s.ofs = 0
	s.rid = 0
	s.lastRoster = nil
	s.mu.Unlock()

	query := url.Values{
		"RID":                 {strconv.Itoa(s.nextRID())},
		"VER":                 {bindVersion},
		"CVER":                {bindCVersion},
		"zx":                  {randomID()},
		"auth_failure_option": {"send_error"},
	}
	form := url.Values{
		"screen_id":     {s.screenID},
		"loungeIdToken": {token},
		"device":        {"REMOTE_CONTROL"},
		"id":            {s.deviceID},
		"name":          {s.opts.JoinName},
		"app":           {"loungeskip"},
		"theme":         {"cl"},
		"mdx-version":   {"3"},
		"capabilities":  {"que,dsdtr,atp"},
		"count":         {"0"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.apiBase+"/bc/bind?"+query.Encode(), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	defer httputil.DrainBody(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return models.ErrAuth
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxResponseBody))
		return fmt.Errorf("bind returned status %d: %s", resp.StatusCode, httputil.Truncate(body, 200))
	}

	if err := parseChunks(resp.Body, s.dispatch); err != nil {
		return fmt.Errorf("bind response: %w", err)
	}

	s.mu.Lock()
	bound := s.sid != "" && s.gsession != ""
	roster := s.lastRoster
	s.mu.Unlock()

	// If the roster lists us as a screen rather than a controller, the far
	// end refused the controller bind. Acting as a screen would corrupt the
	// real playback surface.
	for _, d := range roster {
		if d.Type == "LOUNGE_SCREEN" && d.Name == s.opts.JoinName {
			return models.ErrScreenTakeover
		}
	}
	if !bound {
		return fmt.Errorf("bind response missing session fields")
	}
	return nil
}

// DropConnection discards the rotating session fields and cancels any active
// subscription, forcing the caller's reconnect loop to re-bind.
func (s *Session) DropConnection() {
	s.mu.Lock()
	s.sid = ""
	s.gsession = ""
	s.mu.Unlock()

	s.subMu.Lock()
	cancel, done := s.subCancel, s.subDone
	s.subMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Close tears the session down: subscription, watchdog and any detached
// command tasks are cancelled and awaited.
func (s *Session) Close() {
	s.taskCancel()
	s.DropConnection()
	s.tasks.Wait()
}

// command sends one outbound command. The lock is mandatory: commands issued
// out of order corrupt the server-side sequence counter.
func (s *Session) command(ctx context.Context, name string, params map[string]string) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	if s.sid == "" || s.gsession == "" {
		s.mu.Unlock()
		return fmt.Errorf("session not connected")
	}
	query := url.Values{
		"SID":        {s.sid},
		"gsessionid": {s.gsession},
		"RID":        {strconv.Itoa(s.rid + 1)},
		"VER":        {bindVersion},
		"CVER":       {bindCVersion},
		"AID":        {strconv.FormatInt(s.aid, 10)},
		"zx":         {randomID()},
	}
	s.rid++
	form := url.Values{
		"count":    {"1"},
		"ofs":      {strconv.Itoa(s.ofs)},
		"req0__sc": {name},
	}
	s.ofs++
	token := s.loungeToken
	s.mu.Unlock()

	for k, v := range params {
		form.Set("req0_"+k, v)
	}
	query.Set("loungeIdToken", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.apiBase+"/bc/bind?"+query.Encode(), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("command %s: %w", name, err)
	}
	defer httputil.DrainBody(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return models.ErrAuth
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusGone:
		// Rotating session fields are stale; force a re-bind.
		s.mu.Lock()
		s.sid = ""
		s.gsession = ""
		s.mu.Unlock()
		return fmt.Errorf("command %s rejected with status %d", name, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("command %s returned status %d", name, resp.StatusCode)
	}
	return nil
}

// Seek jumps playback to an absolute position in seconds.
func (s *Session) Seek(ctx context.Context, seconds float64) error {
	return s.command(ctx, "seekTo", map[string]string{
		"newTime": strconv.FormatFloat(seconds, 'f', -1, 64),
	})
}

// SkipAd presses the skip button on a skippable ad.
func (s *Session) SkipAd(ctx context.Context) error {
	return s.command(ctx, "skipAd", nil)
}

// Mute mutes or unmutes the device. Redundant sends are suppressed using the
// last reported volume state unless override is set. The device wants the
// volume level repeated when unmuting.
func (s *Session) Mute(ctx context.Context, mute, override bool) error {
	s.mu.Lock()
	if !override && s.volume.Known && s.volume.Muted == mute {
		s.mu.Unlock()
		return nil
	}
	volume := 100
	if s.volume.Known {
		volume = s.volume.Volume
	}
	s.volume.Muted = mute
	s.volume.Known = true
	s.mu.Unlock()

	return s.command(ctx, "setVolume", map[string]string{
		"volume": strconv.Itoa(volume),
		"muted":  strconv.FormatBool(mute),
	})
}

func (s *Session) SetVolume(ctx context.Context, volume int) error {
	return s.command(ctx, "setVolume", map[string]string{"volume": strconv.Itoa(volume)})
}

func (s *Session) SetAutoplayMode(ctx context.Context, enabled bool) error {
	mode := "DISABLED"
	if enabled {
		mode = "ENABLED"
	}
	return s.command(ctx, "setAutoplayMode", map[string]string{"autoplayMode": mode})
}

// PlayVideo asks the device to start a video, used to recover from the
// short-form interstitial quirk.
func (s *Session) PlayVideo(ctx context.Context, videoID string) error {
	return s.command(ctx, "setPlaylist", map[string]string{"videoId": videoID})
}

func (s *Session) requestNowPlaying(ctx context.Context) error {
	return s.command(ctx, "getNowPlaying", nil)
}

func (s *Session) nextRID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rid++
	return s.rid
}

func (s *Session) postForm(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.apiBase+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.http.Do(req)
}

// detach runs a fire-and-forget command in the session's task tree so it can
// still be cancelled and awaited at shutdown.
func (s *Session) detach(name string, fn func(ctx context.Context) error) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		if err := fn(s.taskCtx); err != nil && s.taskCtx.Err() == nil {
			log.Printf("lounge %s: %s: %v", s.screenID, name, err)
		}
	}()
}

func decodeBody(r io.Reader, v any) error {
	body, err := io.ReadAll(io.LimitReader(r, httputil.MaxResponseBody))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func randomID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
