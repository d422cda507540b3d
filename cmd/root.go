package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/housing-cli/internal/config"
)

var cfg *config.Config

var (
	flagLimit    int
	flagAllPages bool
	flagYelp     bool
	flagGoogle   bool
	flagNoOpen   bool
	flagWorkers  int
)

var rootCmd = &cobra.Command{
	Use:   "housing <listing-site-url> <output-html-path>",
	Short: "Scrape apartment listings and rate them with Yelp and Google",
	Long: "Scrapes an apartment listing search, looks up each listing's Yelp and Google Maps " +
		"rating, writes the merged table to an HTML file, and opens it in the default browser.",
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyFlags(cmd, c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	RunE: runCrawl,
}

func init() {
	f := rootCmd.Flags()
	f.IntVar(&flagLimit, "limit", 3, "max listings to enrich (0 = all)")
	f.BoolVar(&flagAllPages, "all-pages", false, "fetch every results page instead of page 1")
	f.BoolVar(&flagYelp, "yelp", false, "look up Yelp ratings")
	f.BoolVar(&flagGoogle, "google", true, "look up Google Maps ratings")
	f.BoolVar(&flagNoOpen, "no-open", false, "do not open the report in a browser")
	f.IntVar(&flagWorkers, "workers", 8, "max concurrent fetches and lookups")
}

// applyFlags overrides config values with flags set on the command line.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("limit") {
		c.Crawl.Limit = flagLimit
	}
	if f.Changed("all-pages") {
		c.Crawl.AllPages = flagAllPages
	}
	if f.Changed("yelp") {
		c.Yelp.Enabled = flagYelp
	}
	if f.Changed("google") {
		c.Google.Enabled = flagGoogle
	}
	if f.Changed("no-open") {
		c.Crawl.OpenReport = !flagNoOpen
	}
	if f.Changed("workers") {
		c.Crawl.Workers = flagWorkers
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
