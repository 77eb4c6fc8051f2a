// Package cli handles the command-line interface logic using the Cobra library.
package cli

import (
	"github.com/spf13/cobra"
)

// Options are shared by every command.
type Options struct {
	MappingFile string
	ConfigFile  string
	LogLevel    string
	LogFile     string
	BatchSize   int
	DryRun      bool
	Output      string
}

func NewRootCmd() *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "ptm",
		Short: "ptm - convert relational tables into MongoDB collections",
		Long: `ptm converts PostgreSQL (or SQL Server) tables into MongoDB collections.
Tables are converted in dependency order, either as collections of their own
or embedded into the documents of another collection.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.MappingFile, "mapping", "m", "configs/mapping.yaml", "Path to the YAML or JSON mapping file")
	rootCmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", ".env, .yaml or .json config file, read in addition to the environment")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level override. One of debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "Also write logs to this file")
	rootCmd.PersistentFlags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "Rows read per batch, overrides BATCH_SIZE")

	rootCmd.AddCommand(NewConvertCmd(opts), NewSchemaCmd(opts), NewTranslatorsCmd(opts))

	return rootCmd
}
