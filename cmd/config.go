package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxledger/internal/config"
)

const redacted = "<redacted>"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigValidateCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the configuration after defaults, file and environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			data, err := config.Marshal(redact(cfg))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "validate [attachments|documents|run]",
		Short:     "Check the configuration for a workflow",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{config.WorkflowAttachments, config.WorkflowDocuments, config.WorkflowCombined},
		RunE: func(cmd *cobra.Command, args []string) error {
			wf := config.WorkflowCombined
			if len(args) == 1 {
				wf = args[0]
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := cfg.Validate(wf); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid for %s\n", wf)
			return nil
		},
	}
}

// redact returns a copy of cfg with secrets masked.
func redact(cfg *config.Config) *config.Config {
	out := *cfg
	if out.Extraction.APIKey != "" {
		out.Extraction.APIKey = redacted
	}
	return &out
}
