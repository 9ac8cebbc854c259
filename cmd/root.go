package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath  string
	account     string
	logFormat   string
	debug       bool
	noColor     bool
	strictState bool
}

var flags globalFlags

// rootCmd represents the base command for the inboxledger application
var rootCmd = &cobra.Command{
	Use:   "inboxledger",
	Short: "Syncs Gmail attachments to Drive and extracted PDF data to Sheets",
	Long: `inboxledger is an idempotent batch synchronizer with two workflows:

  attachments  copies attachments of matching emails into Drive folders
  documents    sends new PDFs in a Drive folder for extraction and writes
               the line items into a spreadsheet tab

Processed emails and documents are remembered, so every run only handles
new items. Run both workflows with 'run', or keep them going with 'schedule'.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxledger version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Config file (default: ./inboxledger.toml when present)")
	pf.StringVar(&flags.account, "account", "", "Google account name; overrides the config file")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: text or json")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored console output")
	pf.BoolVar(&flags.strictState, "strict-state", false, "Fail instead of starting empty when the processed state is unreadable")

	runCmd := newRunCmd()

	// Without a subcommand both workflows run once.
	rootCmd.Args = cobra.NoArgs
	rootCmd.RunE = runCmd.RunE

	rootCmd.AddCommand(newAttachmentsCmd())
	rootCmd.AddCommand(newDocumentsCmd())
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newScheduleCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}
