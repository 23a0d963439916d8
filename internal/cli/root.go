// Package cli implements the imagescan command line.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/imagescan/internal/config"
	"github.com/coral-mesh/imagescan/internal/logging"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
}

// load reads the config file, applies flag overrides and builds the logger.
func (o *globalOptions) load(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.NewLoader().Load(o.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, zerolog.Nop(), err
		}
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Output = cmd.ErrOrStderr()
	return cfg, logging.NewWithComponent(logCfg, "cli"), nil
}

// NewRootCmd builds the imagescan command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "imagescan",
		Short: "Find compiler-emitted metadata sections in loaded PE images",
		Long: `imagescan walks the PE headers of binary images and reports the
location of the runtime metadata sections a compiler embedded at build time:

- .sw2prtc: interface-conformance records
- .sw2tymd: type-descriptor records

"scan" inspects every image loaded into the running process (Windows only).
"inspect" lays out a PE file from disk and inspects it on any platform.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default ~/.imagescan/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newScanCmd(opts, defaultScanEnv))
	rootCmd.AddCommand(newInspectCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
