package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/scriptsmith/internal/clientruntime"
	"github.com/conneroisu/scriptsmith/internal/errors"
	"github.com/conneroisu/scriptsmith/internal/livereload"
)

var tailCmd = &cobra.Command{
	Use:   "tail [ws-url]",
	Short: "Print reload payloads as a page would receive them",
	Long: `Connect to a running dev server's live-reload channel and print the code
of every reload. The connection is retried after each disconnect, like the
client embedded in development builds.

Without a URL the channel of the active configuration is used.

Examples:
  scriptsmith tail                         # ws://localhost:8788/
  scriptsmith tail ws://127.0.0.1:9001/    # Explicit channel
  scriptsmith tail --out latest.js         # Keep only the latest payload in a file`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTail,
}

var (
	tailOut            string
	tailReconnectDelay time.Duration
)

func init() {
	rootCmd.AddCommand(tailCmd)

	addServerFlags(tailCmd)
	tailCmd.Flags().StringVar(&tailOut, "out", "", "Write each payload to this file instead of stdout")
	tailCmd.Flags().DurationVar(&tailReconnectDelay, "reconnect-delay", clientruntime.ReconnectDelay, "Delay before reconnecting")
}

func runTail(cmd *cobra.Command, args []string) error {
	url, err := tailURL(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var executor livereload.Executor = &livereload.WriterExecutor{W: cmd.OutOrStdout()}
	if tailOut != "" {
		executor = fileExecutor(tailOut)
	}

	client := livereload.NewClient(livereload.ClientOptions{
		URL:            url,
		ReconnectDelay: tailReconnectDelay,
		Executor:       executor,
		Logger:         logger,
		OnStateChange: func(s livereload.ClientState) {
			logger.Debug(ctx, "live reload state", "state", s.String())
		},
	})
	logger.Info(ctx, "tailing", "url", url)
	return client.Run(ctx)
}

func tailURL(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	loader := newLoader(cmd)
	cfg, err := loader.Load()
	if err != nil {
		return "", withSuggestions(err, loader)
	}
	return fmt.Sprintf("ws://%s/", cfg.LiveAddr()), nil
}

// fileExecutor replaces path with each payload.
func fileExecutor(path string) livereload.ExecutorFunc {
	return func(_ context.Context, code string) error {
		if err := os.WriteFile(path, []byte(code+"\n"), 0o644); err != nil {
			return errors.WrapIO(err, errors.ErrCodeArtifactWrite, "cannot write payload").WithFile(path)
		}
		return nil
	}
}
