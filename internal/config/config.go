package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Device is one paired playback surface. ScreenID is the stable pairing
// credential; Offset is a wall-clock bias in milliseconds applied to every
// scheduled skip (positive skips earlier).
type Device struct {
	ScreenID string `json:"screen_id"`
	Name     string `json:"name"`
	Offset   int64  `json:"offset"`
}

func (d Device) SkipOffset() time.Duration {
	return time.Duration(d.Offset) * time.Millisecond
}

// Channel is one whitelisted channel.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Config is the on-disk configuration. The running process treats it as a
// read-only snapshot; the dashboard edits the file and a restart picks the
// changes up.
type Config struct {
	Devices           []Device  `json:"devices"`
	APIKey            string    `json:"apikey"`
	SkipCategories    []string  `json:"skip_categories"`
	ChannelWhitelist  []Channel `json:"channel_whitelist"`
	SkipCountTracking bool      `json:"skip_count_tracking"`
	MuteAds           bool      `json:"mute_ads"`
	SkipAds           bool      `json:"skip_ads"`
	AutoPlay          bool      `json:"auto_play"`
	JoinName          string    `json:"join_name,omitempty"`
	PasswordHash      string    `json:"password_hash,omitempty"`
}

func defaults() Config {
	return Config{
		SkipCategories:    []string{"sponsor"},
		SkipCountTracking: true,
		AutoPlay:          true,
		JoinName:          "loungeskip",
	}
}

// Load reads and validates the config file. A missing file is an error: at
// least one paired device is required to do anything useful.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := defaults()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return errors.New("no devices configured, pair at least one device")
	}
	for i, d := range c.Devices {
		if d.ScreenID == "" {
			return fmt.Errorf("device %d has no screen id", i)
		}
	}
	if len(c.ChannelWhitelist) > 0 && c.APIKey == "" {
		return errors.New("channel whitelist requires an API key")
	}
	if len(c.SkipCategories) == 0 {
		c.SkipCategories = []string{"sponsor"}
	}
	if c.JoinName == "" {
		c.JoinName = "loungeskip"
	}
	return nil
}

// Save writes the config atomically next to the target path.
func Save(path string, c *Config) error {
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
