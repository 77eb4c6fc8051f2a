package cli

import (
	"github.com/spf13/cobra"
)

func NewConvertCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert every table of the mapping file into MongoDB",
		RunE: func(c *cobra.Command, args []string) error {
			return runConvert(c.Context(), opts, c.ErrOrStderr())
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Read and transform every row without writing to MongoDB")
	return cmd
}
