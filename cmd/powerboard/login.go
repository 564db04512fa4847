package main

import (
	"fmt"
	"os"

	"github.com/powerboard/tui/internal/guard"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with the device authorization flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := opts.setupLogging(false, nil)
			if err != nil {
				return err
			}
			defer closeLog()

			if opts.cfg.Auth.DeviceAuthURL == "" || opts.cfg.Auth.TokenURL == "" {
				return fmt.Errorf("auth.device_auth_url and auth.token_url must be configured; sign in at %s",
					guard.LoginURL(opts.cfg.LoginURL))
			}
			cl, err := openClient(opts.cfg, "")
			if err != nil {
				return err
			}
			defer cl.Close()

			err = cl.provider.DeviceLogin(cmd.Context(), func(resp *oauth2.DeviceAuthResponse) {
				uri := resp.VerificationURIComplete
				if uri == "" {
					uri = resp.VerificationURI
				}
				fmt.Fprintf(os.Stderr, "Open %s\nand confirm the code %s\n", uri, resp.UserCode)
			})
			if err != nil {
				return err
			}
			if sub := cl.user(); sub != "" {
				fmt.Printf("Signed in as %s\n", sub)
			} else {
				fmt.Println("Signed in")
			}
			return nil
		},
	}
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := openClient(opts.cfg, "")
			if err != nil {
				return err
			}
			defer cl.Close()
			cl.provider.Reset()
			if err := cl.scopes.Purge(); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		},
	}
}
