// Package config loads and defaults the bot configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Config is the full bot configuration.
type Config struct {
	// DataDir holds the state snapshot files.
	DataDir string `json:"dataDir"`

	// PersonalityFile is the json5 file defining the personas.
	PersonalityFile string `json:"personalityFile"`

	Discord  DiscordConfig  `json:"discord"`
	Backend  BackendConfig  `json:"backend"`
	Access   AccessConfig   `json:"access"`
	Delivery DeliveryConfig `json:"delivery"`
	Janitor  JanitorConfig  `json:"janitor"`
}

// DiscordConfig configures the gateway connection and webhook identity.
type DiscordConfig struct {
	Token       string `json:"token"`
	WebhookName string `json:"webhookName"`
}

// BackendConfig configures the generation backend.
type BackendConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// AccessConfig configures the authorization gate.
type AccessConfig struct {
	BlockedUsers []string `json:"blockedUsers,omitempty"`
	NSFWChannels []string `json:"nsfwChannels,omitempty"`
}

// DeliveryConfig tunes the send pipeline.
type DeliveryConfig struct {
	// MinSendIntervalMS is the minimum spacing between sends into one
	// channel.
	MinSendIntervalMS int `json:"minSendIntervalMs"`
}

// JanitorConfig holds the cron expressions for background maintenance.
type JanitorConfig struct {
	// SweepCron drives TTL-table sweeps (memory bound, not correctness).
	SweepCron string `json:"sweepCron"`
	// SnapshotCron drives the periodic full state snapshot.
	SnapshotCron string `json:"snapshotCron"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DataDir:         "~/.kindred/data",
		PersonalityFile: "~/.kindred/personalities.json5",
		Discord: DiscordConfig{
			WebhookName: "kindred",
		},
		Delivery: DeliveryConfig{
			MinSendIntervalMS: 1000,
		},
		Janitor: JanitorConfig{
			SweepCron:    "* * * * *",
			SnapshotCron: "*/5 * * * *",
		},
	}
}

// ExpandHome resolves a leading ~ in a path.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
