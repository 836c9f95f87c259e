package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justmadeid/social-services/internal/credentials"
)

func newCredentialsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credentials",
		Aliases: []string{"creds"},
		Short:   "Manage stored login credentials",
	}
	cmd.AddCommand(
		newCredentialsAddCmd(opts),
		newCredentialsListCmd(opts),
		newCredentialsToggleCmd(opts, "activate", true),
		newCredentialsToggleCmd(opts, "deactivate", false),
		newCredentialsDeleteCmd(opts),
	)
	return cmd
}

func newCredentialsAddCmd(opts *rootOptions) *cobra.Command {
	var (
		username   string
		totpSecret string
		inactive   bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Store a credential; the password is prompted for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.EncryptionKey == "" {
				return errNoEncryptionKey
			}

			password, err := readPassword(cmd, "Password for "+username+": ")
			if err != nil {
				return err
			}

			c, err := a.creds.Add(cmd.Context(), credentials.AddInput{
				Name:       args[0],
				Username:   username,
				Password:   password,
				TOTPSecret: totpSecret,
				Active:     !inactive,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored credential %q for @%s\n", c.Name, c.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "platform username (required)")
	cmd.Flags().StringVar(&totpSecret, "totp-secret", "", "base32 TOTP secret for two-factor login")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "store the credential without enabling it")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newCredentialsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			creds, err := a.creds.List(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, credentialRows(creds))
		},
	}
}

func newCredentialsToggleCmd(opts *rootOptions, verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <name>",
		Short: fmt.Sprintf("Mark a credential %sd", verb),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.creds.SetActive(cmd.Context(), args[0], active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credential %q %sd\n", args[0], verb)
			return nil
		},
	}
}

func newCredentialsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.creds.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credential %q deleted\n", args[0])
			return nil
		},
	}
}
