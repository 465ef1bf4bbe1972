package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Load reads config from a json5 file, then overlays environment
// variables. A missing file yields defaults plus env, so the bot can run
// from environment alone.
func Load(path string) (*Config, error) {
	// Best effort: a .env in the working directory supplies env vars for
	// development setups.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overlay
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := json5.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	cfg.DataDir = ExpandHome(cfg.DataDir)
	cfg.PersonalityFile = ExpandHome(cfg.PersonalityFile)
	return cfg, nil
}

// applyEnvOverrides lets environment variables win over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KINDRED_DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("KINDRED_WEBHOOK_NAME"); v != "" {
		c.Discord.WebhookName = v
	}
	if v := os.Getenv("KINDRED_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("KINDRED_PERSONALITY_FILE"); v != "" {
		c.PersonalityFile = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Backend.APIKey == "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("KINDRED_BACKEND_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("KINDRED_BACKEND_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("KINDRED_MIN_SEND_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Delivery.MinSendIntervalMS = n
		}
	}
}

// Validate reports configuration problems that prevent startup.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord token missing (set discord.token or KINDRED_DISCORD_TOKEN)")
	}
	if c.Backend.APIKey == "" {
		return fmt.Errorf("backend API key missing (set backend.apiKey or OPENAI_API_KEY)")
	}
	return nil
}
