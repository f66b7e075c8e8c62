package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/scriptsmith/internal/config"
	"github.com/conneroisu/scriptsmith/internal/scaffolding"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Scaffold a new userscript project",
	Long: `Create scriptsmith.yml, src/index.js, a README and a .gitignore. Without a
directory argument the current directory is used. Existing source files are
kept; an existing configuration is only replaced with --force.

Examples:
  scriptsmith init                   # Answer a few questions, then scaffold here
  scriptsmith init my-script --yes   # Scaffold my-script/ with defaults
  scriptsmith init --match 'https://github.com/*' --yes`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initYes       bool
	initForce     bool
	initName      string
	initNamespace string
	initAuthor    string
	initMatch     []string
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVarP(&initYes, "yes", "y", false, "Accept defaults without prompting")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration")
	initCmd.Flags().StringVar(&initName, "name", "", "Script name (default derived from the directory)")
	initCmd.Flags().StringVar(&initNamespace, "namespace", "", "Script namespace")
	initCmd.Flags().StringVar(&initAuthor, "author", "", "Script author")
	initCmd.Flags().StringSliceVar(&initMatch, "match", nil, "@match patterns (repeatable)")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	opts := scaffolding.GenerateOptions{
		Dir:       dir,
		Name:      initName,
		Namespace: initNamespace,
		Author:    initAuthor,
		Match:     initMatch,
		Force:     initForce,
	}
	if !initYes {
		var err error
		prompter := scaffolding.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
		if opts, err = prompter.Interactive(opts); err != nil {
			return fmt.Errorf("reading answers: %w", err)
		}
	}

	result, err := scaffolding.NewProjectGenerator().Generate(opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n", result.ConfigPath)
	for _, f := range result.Files {
		fmt.Fprintf(out, "Created %s\n", f)
	}
	fmt.Fprintln(out, "\nNext steps:")
	if dir != "." {
		fmt.Fprintf(out, "  cd %s\n", filepath.Clean(dir))
	}
	fmt.Fprintln(out, "  scriptsmith dev")
	fmt.Fprintf(out, "  Install from http://localhost:%d/ in your userscript manager\n", config.DefaultPort)
	return nil
}
