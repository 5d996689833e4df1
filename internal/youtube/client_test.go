package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChannelID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("expected key param, got %q", r.URL.Query().Get("key"))
		}
		if r.URL.Query().Get("id") != "vid1" {
			t.Errorf("expected id=vid1, got %q", r.URL.Query().Get("id"))
		}
		fmt.Fprint(w, `{"items": [{"kind": "youtube#video", "snippet": {"channelId": "chan-42"}}]}`)
	}))
	defer ts.Close()

	c := NewWithBaseURL("test-key", ts.URL)
	id, err := c.ChannelID(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("ChannelID: %v", err)
	}
	if id != "chan-42" {
		t.Fatalf("expected chan-42, got %s", id)
	}
}

func TestChannelIDNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": []}`)
	}))
	defer ts.Close()

	c := NewWithBaseURL("test-key", ts.URL)
	if _, err := c.ChannelID(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error for an unknown video")
	}
}

func TestChannelIDUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "quota"}`, http.StatusForbidden)
	}))
	defer ts.Close()

	c := NewWithBaseURL("test-key", ts.URL)
	if _, err := c.ChannelID(context.Background(), "vid1"); err == nil {
		t.Fatal("expected an error on upstream rejection")
	}
}

func TestSearchChannels(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			if r.URL.Query().Get("type") != "channel" {
				t.Errorf("expected type=channel, got %q", r.URL.Query().Get("type"))
			}
			fmt.Fprint(w, `{"items": [
				{"snippet": {"channelId": "c1", "channelTitle": "First"}},
				{"snippet": {"channelId": "c2", "channelTitle": "Second"}}
			]}`)
		case "/channels":
			switch r.URL.Query().Get("id") {
			case "c1":
				fmt.Fprint(w, `{"items": [{"statistics": {"subscriberCount": "12345", "hiddenSubscriberCount": false}}]}`)
			case "c2":
				fmt.Fprint(w, `{"items": [{"statistics": {"hiddenSubscriberCount": true}}]}`)
			default:
				t.Errorf("unexpected channel id %s", r.URL.Query().Get("id"))
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	c := NewWithBaseURL("test-key", ts.URL)
	channels, err := c.SearchChannels(context.Background(), "first")
	if err != nil {
		t.Fatalf("SearchChannels: %v", err)
	}
	if len(channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(channels))
	}
	if channels[0].ID != "c1" || channels[0].Subscribers != "12345" {
		t.Fatalf("unexpected first result: %+v", channels[0])
	}
	if channels[1].Subscribers != "Hidden" {
		t.Fatalf("expected hidden subscriber count, got %q", channels[1].Subscribers)
	}
}
