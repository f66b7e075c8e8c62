package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// overrideKeys maps flag names to the configuration keys they override.
var overrideKeys = map[string]string{
	"host":      "server.host",
	"port":      "server.port",
	"live-port": "server.live_port",
	"out-dir":   "build.out_dir",
	"minify":    "build.minify",
	"target":    "build.target",
}

// addServerFlags adds the listener flags shared by dev and tail.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "localhost", "Host to bind to")
	cmd.Flags().IntP("port", "p", 8787, "Port to serve the script on")
	cmd.Flags().Int("live-port", 0, "Port of the live-reload channel (default port+1)")
}

// addBuildFlags adds the flags that shape the artifact.
func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("out-dir", "o", "dist", "Output directory")
	cmd.Flags().Bool("minify", false, "Minify production builds")
	cmd.Flags().String("target", "es2020", "JavaScript language target")
}

// configOverrides returns the configuration keys for every flag the user
// actually set. Flags left at their defaults never mask the file or the
// environment.
func configOverrides(fs *pflag.FlagSet) map[string]interface{} {
	overrides := make(map[string]interface{})
	fs.Visit(func(f *pflag.Flag) {
		key, ok := overrideKeys[f.Name]
		if !ok {
			return
		}
		var (
			value interface{}
			err   error
		)
		switch f.Value.Type() {
		case "int":
			value, err = fs.GetInt(f.Name)
		case "bool":
			value, err = fs.GetBool(f.Name)
		default:
			value = f.Value.String()
		}
		if err == nil {
			overrides[key] = value
		}
	})
	return overrides
}
