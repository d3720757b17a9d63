package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetcmd/app"
	"github.com/kilianp07/fleetcmd/config"
	"github.com/kilianp07/fleetcmd/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "fleetcmd",
	Short: "Remote command dispatch for vehicle fleets",
	RunE:  runCloud,
}

var cloudCmd = &cobra.Command{
	Use:     "cloud",
	Aliases: []string{"coordinator"},
	Short:   "Run the coordinator",
	RunE:    runCloud,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.AddCommand(cloudCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads --config. The default file may be absent, in which case
// settings come from K_ environment variables only.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := cfgPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runCloud(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()

	op, err := svc.Authority.IssueOperatorClaim()
	if err != nil {
		return fmt.Errorf("issue operator token: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OPERATOR_TOKEN=%s\n", op)
	return svc.Run(ctx)
}
