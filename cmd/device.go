package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetcmd/config"
	"github.com/kilianp07/fleetcmd/core/device"
	"github.com/kilianp07/fleetcmd/core/logger"
	"github.com/kilianp07/fleetcmd/core/token"
	infralog "github.com/kilianp07/fleetcmd/infra/logger"
	"github.com/kilianp07/fleetcmd/infra/ws"
)

var deviceURL string

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Run a simulated vehicle",
	Long: `Connects to the coordinator and applies signed commands after the
configured delay. Type "override" on stdin to report a driver override and
"exit" to disconnect.`,
	RunE: runDevice,
}

func init() {
	deviceCmd.Flags().StringVar(&deviceURL, "url", "", "coordinator WebSocket URL (overrides device.coordinator_url)")
	rootCmd.AddCommand(deviceCmd)
}

func runDevice(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if deviceURL != "" {
		cfg.Device.CoordinatorURL = deviceURL
	}
	if err := infralog.SetLevel(cfg.Logging.Level); err != nil {
		return err
	}
	return simulate(ctx, cfg, cmd.InOrStdin(), infralog.New("device"))
}

func simulate(ctx context.Context, cfg *config.Config, stdin io.Reader, log logger.Logger) error {
	log = logger.OrNop(log)
	auth, err := token.NewAuthority(cfg.Auth.TokenConfig())
	if err != nil {
		return err
	}
	conn, err := ws.Dial(ctx, cfg.Device.CoordinatorURL, ws.Options{}, log)
	if err != nil {
		return fmt.Errorf("connect %s: %w", cfg.Device.CoordinatorURL, err)
	}
	defer func() { _ = conn.Close() }()

	h, err := device.NewHandler(auth, conn, device.Delay(cfg.Device.ApplyDelay()), log,
		device.WithStrictCancel(cfg.Auth.StrictCancel))
	if err != nil {
		return err
	}
	defer h.Close()
	log.Infof("connected to %s", cfg.Device.CoordinatorURL)

	go conn.ReadLoop(func(data []byte) { _ = h.HandleMessage(ctx, data) })

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			log.Warnf("coordinator closed the connection")
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep serving until interrupted
				lines = nil
				continue
			}
			switch line {
			case "override", "o":
				if err := h.Override(ctx); err != nil {
					log.Errorf("override: %v", err)
				}
			case "exit", "quit", "q":
				return nil
			case "":
			default:
				log.Warnf("unknown input %q (override, exit)", line)
			}
		}
	}
}
