package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"loungeskip/internal/auth"
	"loungeskip/internal/config"
	"loungeskip/internal/fleet"
	"loungeskip/internal/models"
	"loungeskip/internal/store"
	"loungeskip/internal/youtube"
)

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := &config.Config{
		Devices:        []config.Device{{ScreenID: "screen-1", Name: "tv"}},
		SkipCategories: []string{"sponsor"},
		JoinName:       "loungeskip",
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	return cfg, path
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *store.Store) {
	t.Helper()
	cfg, path := testConfig(t)
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	opts = append([]Option{WithStore(st)}, opts...)
	return NewServer(cfg, path, opts...), st
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestGetConfigRedactsPasswordHash(t *testing.T) {
	cfg, path := testConfig(t)
	cfg.PasswordHash = "$argon2id$secret"
	srv := NewServer(cfg, path)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "argon2id") {
		t.Fatal("password hash leaked to the client")
	}

	var got config.Config
	json.NewDecoder(w.Body).Decode(&got)
	if len(got.Devices) != 1 || got.Devices[0].ScreenID != "screen-1" {
		t.Fatalf("unexpected config: %+v", got)
	}
}

func TestUpdateConfigPersistsAndKeepsHash(t *testing.T) {
	cfg, path := testConfig(t)
	cfg.PasswordHash = "$argon2id$secret"
	srv := NewServer(cfg, path)

	body := `{"devices": [{"screen_id": "screen-1", "name": "renamed"}], "mute_ads": true}`
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	saved, err := config.Load(path)
	if err != nil {
		t.Fatalf("reloading config: %v", err)
	}
	if saved.Devices[0].Name != "renamed" || !saved.MuteAds {
		t.Fatalf("update not persisted: %+v", saved)
	}
	if saved.PasswordHash != "$argon2id$secret" {
		t.Fatal("password hash must survive an update that omits it")
	}
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(`{"devices": []}`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPairAddsDevice(t *testing.T) {
	cfg, path := testConfig(t)
	srv := NewServer(cfg, path, WithPairFunc(func(ctx context.Context, code string) (string, string, error) {
		if code != "123456789" {
			t.Errorf("unexpected code %q", code)
		}
		return "screen-2", "Bedroom TV", nil
	}))

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/pair",
		strings.NewReader(`{"pairing_code": "123456789"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	saved, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Devices) != 2 || saved.Devices[1].ScreenID != "screen-2" {
		t.Fatalf("expected paired device appended, got %+v", saved.Devices)
	}

	// Pairing the same screen again must not duplicate it.
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/pair",
		strings.NewReader(`{"pairing_code": "123456789"}`)))
	saved, _ = config.Load(path)
	if len(saved.Devices) != 2 {
		t.Fatalf("expected no duplicate, got %+v", saved.Devices)
	}
}

func TestPairRequiresCode(t *testing.T) {
	srv, _ := newTestServer(t, WithPairFunc(func(ctx context.Context, code string) (string, string, error) {
		return "", "", nil
	}))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/pair", strings.NewReader(`{}`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListDevices(t *testing.T) {
	fl := fleet.New(nil)
	fl.Publish(models.DeviceStatus{Name: "tv", ScreenID: "screen-1", Connected: true, VideoID: "vid-1"})

	srv, _ := newTestServer(t, WithFleet(fl))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/devices", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var statuses []models.DeviceStatus
	json.NewDecoder(w.Body).Decode(&statuses)
	if len(statuses) != 1 || !statuses[0].Connected || statuses[0].VideoID != "vid-1" {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}
}

func TestListHistory(t *testing.T) {
	srv, st := newTestServer(t)
	st.RecordSkip(&models.SkipEvent{DeviceName: "tv", VideoID: "vid-1", SegmentEnd: 30})

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var skips []models.SkipEvent
	json.NewDecoder(w.Body).Decode(&skips)
	if len(skips) != 1 || skips[0].VideoID != "vid-1" {
		t.Fatalf("unexpected history: %+v", skips)
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history?limit=0", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad limit, got %d", w.Code)
	}
}

type stubSearcher struct{}

func (stubSearcher) SearchChannels(ctx context.Context, q string) ([]youtube.Channel, error) {
	return []youtube.Channel{{ID: "c1", Title: "First", Subscribers: "10"}}, nil
}

func TestSearchChannels(t *testing.T) {
	srv, _ := newTestServer(t, WithChannelSearcher(stubSearcher{}))

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/channels/search?q=first", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var channels []youtube.Channel
	json.NewDecoder(w.Body).Decode(&channels)
	if len(channels) != 1 || channels[0].ID != "c1" {
		t.Fatalf("unexpected channels: %+v", channels)
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/channels/search", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a query, got %d", w.Code)
	}
}

func TestSearchChannelsWithoutAPIKey(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/channels/search?q=x", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestPasswordAuthGuardsAPI(t *testing.T) {
	hash, err := auth.HashPassword("hunter22222")
	if err != nil {
		t.Fatal(err)
	}
	svc := auth.NewService(hash)
	srv, _ := newTestServer(t, WithAuth(svc))

	// No cookie: rejected.
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/devices", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	// Wrong password: rejected.
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"password": "wrong"}`)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	// Correct password: cookie issued.
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"password": "hunter22222"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with a session cookie, got %d", w.Code)
	}
}

func TestHealthBypassesAuth(t *testing.T) {
	hash, _ := auth.HashPassword("hunter22222")
	srv, _ := newTestServer(t, WithAuth(auth.NewService(hash)))

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
