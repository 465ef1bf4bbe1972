package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kindredbots/kindred/internal/config"
	"github.com/kindredbots/kindred/internal/personality"
)

func personalitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personalities",
		Short: "List configured personalities",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			registry, err := personality.LoadRegistry(cfg.PersonalityFile)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMODEL\tALIASES\tNSFW")
			for _, p := range registry.All() {
				model := p.Model
				if model == "" {
					model = "(default)"
				}
				nsfw := ""
				if p.NSFW {
					nsfw = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					p.ID, p.Name, model, strings.Join(p.Aliases, ", "), nsfw)
			}
			w.Flush()
		},
	}
}
