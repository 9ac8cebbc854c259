package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxledger/internal/config"
	"github.com/teemow/inboxledger/internal/google"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize a Google account",
		Long: `Authorize inboxledger to use Gmail, Drive and Sheets for an account.

  inboxledger auth url            prints the consent URL
  inboxledger auth code <code>    stores the token for the code shown after consent
  inboxledger auth status         reports whether a token is stored`,
	}
	cmd.AddCommand(newAuthURLCmd(), newAuthCodeCmd(), newAuthStatusCmd())
	return cmd
}

func authenticator() (*google.Authenticator, *config.Config, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, err
	}
	return google.NewAuthenticator(cfg.CredentialsFile, cfg.TokenDir), cfg, nil
}

func newAuthURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the OAuth consent URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth, cfg, err := authenticator()
			if err != nil {
				return err
			}
			url, err := auth.AuthURL(cfg.Account)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Open this URL to authorize account %q:\n\n%s\n\n", cfg.Account, url)
			fmt.Fprintf(out, "Then run: inboxledger auth code --account %s <code>\n", cfg.Account)
			return nil
		},
	}
}

func newAuthCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "code <code>",
		Short: "Exchange an authorization code and store the token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, cfg, err := authenticator()
			if err != nil {
				return err
			}
			if err := auth.SaveToken(context.Background(), cfg.Account, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token for account %q saved to %s\n", cfg.Account, auth.TokenPath(cfg.Account))
			return nil
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the account has a stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth, cfg, err := authenticator()
			if err != nil {
				return err
			}
			if !auth.HasToken(cfg.Account) {
				return fmt.Errorf("%s", google.AuthenticationErrorMessage(cfg.Account))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %q is authorized (%s)\n", cfg.Account, auth.TokenPath(cfg.Account))
			return nil
		},
	}
}
