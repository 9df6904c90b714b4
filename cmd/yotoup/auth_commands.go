package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"yotoup/internal/auth"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Yoto login",
	}
	authCmd.AddCommand(newAuthLoginCommand(ctx))
	authCmd.AddCommand(newAuthLogoutCommand(ctx))
	authCmd.AddCommand(newAuthStatusCommand(ctx))
	return authCmd
}

func newAuthLoginCommand(ctx *commandContext) *cobra.Command {
	var refreshOnly bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize this machine with the device flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := ctx.authSession(cmd)
			if err != nil {
				return err
			}
			var pair auth.TokenPair
			if refreshOnly {
				pair, err = session.Refresh(cmd.Context())
			} else {
				pair, err = session.Login(cmd.Context())
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Logged in")
			if exp, ok := auth.ExpiresAt(pair.AccessToken); ok {
				fmt.Fprintf(out, "Access token valid until %s\n", formatWhen(exp))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refreshOnly, "refresh", false, "Exchange the stored refresh token instead of starting a new login")
	return cmd
}

func newAuthLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := ctx.authSession(cmd)
			if err != nil {
				return err
			}
			if err := session.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stored tokens removed")
			return nil
		},
	}
}

func newAuthStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a usable token is stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			session, err := ctx.authSession(cmd)
			if err != nil {
				return err
			}
			pair := session.Tokens()
			expiry, hasExpiry := auth.ExpiresAt(pair.AccessToken)
			if jsonOutput {
				payload := map[string]any{
					"token_file":        cfg.Paths.TokenFile,
					"authenticated":     session.Authenticated(),
					"has_refresh_token": pair.RefreshToken != "",
				}
				if hasExpiry {
					payload["expires_at"] = expiry.UTC().Format(time.RFC3339)
				}
				return writeJSON(cmd, payload)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderStatusLine("Token file", statusInfo, cfg.Paths.TokenFile, colorize))
			switch {
			case pair.Empty():
				fmt.Fprintln(out, renderStatusLine("Access token", statusError, "none; run 'yotoup auth login'", colorize))
			case session.Authenticated():
				fmt.Fprintln(out, renderStatusLine("Access token", statusOK, "valid until "+formatWhen(expiry), colorize))
			default:
				fmt.Fprintln(out, renderStatusLine("Access token", statusWarn, "expired", colorize))
			}
			refreshKind := statusOK
			if pair.RefreshToken == "" {
				refreshKind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Refresh token", refreshKind, yesNo(pair.RefreshToken != ""), colorize))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
