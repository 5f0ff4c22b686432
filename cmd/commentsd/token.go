package main

import (
	"fmt"
	"time"

	"github.com/edgeee/commentsystem/auth"
	"github.com/edgeee/commentsystem/widget"
	"github.com/spf13/cobra"
)

var (
	tokenPhoto string
	tokenTTL   time.Duration
)

// tokenCmd issues identity tokens signed with the configured secret, for
// local development and smoke tests.
var tokenCmd = &cobra.Command{
	Use:   "token <user-id> <display-name>",
	Short: "Print a signed identity token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := &auth.Authority{Secret: []byte(cfg.Auth.JWTSecret), Issuer: cfg.Auth.Issuer}
		tok, err := a.Issue(widget.User{ID: args[0], DisplayName: args[1], PhotoURL: tokenPhoto}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenPhoto, "photo", "", "photo URL claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
