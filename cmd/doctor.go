package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kindredbots/kindred/internal/config"
	"github.com/kindredbots/kindred/internal/personality"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment and configuration",
		Run: func(cmd *cobra.Command, args []string) {
			failures := 0
			check := func(name string, err error) {
				if err != nil {
					failures++
					fmt.Printf("✗ %s: %v\n", name, err)
					return
				}
				fmt.Printf("✓ %s\n", name)
			}

			cfg, err := config.Load(resolveConfigPath())
			check("config loads", err)
			if err != nil {
				os.Exit(1)
			}

			check("discord token present", tokenErr(cfg))
			check("backend API key present", apiKeyErr(cfg))
			check("data dir writable", writableErr(cfg.DataDir))

			_, perr := personality.LoadRegistry(cfg.PersonalityFile)
			check("personality file parses", perr)

			if failures > 0 {
				fmt.Printf("\n%d problem(s) found\n", failures)
				os.Exit(1)
			}
			fmt.Println("\nall checks passed")
		},
	}
}

func tokenErr(cfg *config.Config) error {
	if cfg.Discord.Token == "" {
		return fmt.Errorf("missing (set discord.token or KINDRED_DISCORD_TOKEN)")
	}
	return nil
}

func apiKeyErr(cfg *config.Config) error {
	if cfg.Backend.APIKey == "" {
		return fmt.Errorf("missing (set backend.apiKey or OPENAI_API_KEY)")
	}
	return nil
}

func writableErr(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}
