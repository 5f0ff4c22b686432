// Command commentsd serves the comment widget backend.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/edgeee/commentsystem/config"
	"github.com/spf13/cobra"
)

var (
	configPath string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "commentsd <command>",
	Short:         "Backend for the embeddable comment widget",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = c
		logger = cfg.Log.NewLogger(os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("COMMENTS_CONFIG"), "path to a TOML config file")
	rootCmd.AddCommand(serveCmd, migrateCmd, importCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
