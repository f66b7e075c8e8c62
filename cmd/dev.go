package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/scriptsmith/internal/devserver"
)

var devCmd = &cobra.Command{
	Use:     "dev",
	Aliases: []string{"d", "serve"},
	Short:   "Build, serve and live-reload the script",
	Long: `Build the script once with the live-reload client embedded, serve it and
rebuild whenever a source file or the configuration changes. Every
successful rebuild is pushed to the pages running the development build.

A failing first build stops the command. Later failures are logged and the
previous artifact keeps being served.

Examples:
  scriptsmith dev                    # Serve on localhost:8787, live reload on 8788
  scriptsmith dev --port 9000        # Serve on 9000, live reload on 9001
  scriptsmith dev --config other.yml # Use another configuration file`,
	Args: cobra.NoArgs,
	RunE: runDev,
}

func init() {
	rootCmd.AddCommand(devCmd)

	addServerFlags(devCmd)
	addBuildFlags(devCmd)
}

func runDev(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := newLoader(cmd)
	session := devserver.New(devserver.Options{
		Loader: loader.Load,
		Logger: logger,
	})

	if err := session.Run(ctx); err != nil {
		return withSuggestions(err, loader)
	}
	logger.Info(ctx, "stopped", "builds", session.Metrics().TotalBuilds)
	return nil
}
