package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetcmd/core/token"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print an operator token signed with the configured secret",
	RunE:  printToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func printToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	auth, err := token.NewAuthority(cfg.Auth.TokenConfig())
	if err != nil {
		return err
	}
	op, err := auth.IssueOperatorClaim()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), op)
	return err
}
