package cli

import (
	"github.com/spf13/cobra"
)

func NewSchemaCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Generate the JSON schema of every target collection",
		RunE: func(c *cobra.Command, args []string) error {
			return runSchema(c.Context(), opts, c.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Write the schemas to this file instead of stdout")
	return cmd
}

func NewTranslatorsCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translators",
		Short: "Print which source column feeds each target field",
		RunE: func(c *cobra.Command, args []string) error {
			return runTranslators(c.Context(), opts, c.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Write the definitions to this file instead of stdout")
	return cmd
}
