package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/vigil/internal/app"
	"github.com/hugo-lorenzo-mato/vigil/internal/config"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the resilience core in the foreground",
	Long: `Run the heartbeat watchdog and memory pressure monitor until
interrupted. The startup crash check runs first; if the previous session
died inside a dangerous region, state cleanup is performed before
monitoring begins.

Timing settings in the config file are reloaded live when the file
changes.`,
	RunE: runWatch,
}

var (
	watchAPI  bool
	watchAddr string
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchAPI, "api", false, "serve the observability HTTP API")
	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "HTTP API listen address (default from config)")

	_ = viper.BindPFlag("api.enabled", watchCmd.Flags().Lookup("api"))
	_ = viper.BindPFlag("api.addr", watchCmd.Flags().Lookup("addr"))
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cfg, app.WithVersion(appVersion))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Live reload of timing settings while running.
	if path := config.NewLoaderWithViper(viper.GetViper()).ConfigFile(); path != "" {
		watcher, werr := config.Watch(path, a.Logger.Logger, func(next *config.Config) {
			a.ApplyConfig(ctx, next)
		})
		if werr != nil {
			a.Logger.Warn("config watch unavailable", "error", werr)
		} else {
			defer watcher.Close()
		}
	}

	return a.Run(ctx)
}
