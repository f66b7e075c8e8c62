package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/scriptsmith/internal/build"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Build the script once",
	Long: `Bundle the entry point, prepend the metadata header and write the
artifact. Production builds carry no live-reload client.

Examples:
  scriptsmith build                  # Write dist/<name>.user.js
  scriptsmith build --minify         # Minified production build
  scriptsmith build --dev            # Include the live-reload client`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

var buildDev bool

func init() {
	rootCmd.AddCommand(buildCmd)

	addBuildFlags(buildCmd)
	buildCmd.Flags().BoolVar(&buildDev, "dev", false, "Embed the live-reload client")
}

func runBuild(cmd *cobra.Command, _ []string) error {
	loader := newLoader(cmd)
	cfg, err := loader.Load()
	if err != nil {
		return withSuggestions(err, loader)
	}

	builder := build.NewArtifactBuilder(build.NewEsbuildBundler(), logger)
	result, err := builder.Build(cmd.Context(), cfg, build.Options{Dev: buildDev})
	if err != nil {
		return withSuggestions(err, loader)
	}

	out := cmd.OutOrStdout()
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	fmt.Fprintf(out, "Built %s (%d bytes, %s) in %s\n",
		result.Path, result.Size, build.ETag(result.Hash), result.Duration.Round(time.Millisecond))
	return nil
}
