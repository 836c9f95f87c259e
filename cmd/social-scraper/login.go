package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/justmadeid/social-services/internal/models"
	"github.com/justmadeid/social-services/internal/scraper"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var (
		credential string
		username   string
		totpSecret string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session state",
		Long: `Log in through the browser and save the session cookies.

With --credential the named stored credential is used. With --username the
password is prompted for. With neither, every active stored credential is
tried in turn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if credential != "" && username != "" {
				return errors.New("--credential and --username are mutually exclusive")
			}

			req := models.LoginRequest{CredentialName: credential}
			if username != "" {
				password, err := readPassword(cmd, "Password for "+username+": ")
				if err != nil {
					return err
				}
				req.Username = username
				req.Password = password
				req.TOTPSecret = totpSecret
			}

			return withEngine(cmd, opts, func(ctx context.Context, e *scraper.Engine) (any, error) {
				return e.Login(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&credential, "credential", "", "stored credential name")
	cmd.Flags().StringVarP(&username, "username", "u", "", "log in with this username instead of a stored credential")
	cmd.Flags().StringVar(&totpSecret, "totp-secret", "", "base32 TOTP secret for two-factor login (with --username)")
	return cmd
}

// readPassword prompts on stderr and reads a line without echo when stdin is
// a terminal, or a plain line otherwise.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}
