package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetcmd/app"
	"github.com/kilianp07/fleetcmd/config"
	"github.com/kilianp07/fleetcmd/core/dispatch"
	"github.com/kilianp07/fleetcmd/core/token"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestTokenCommandPrintsOperatorToken(t *testing.T) {
	path := writeConfig(t, "auth:\n  secret: cli-secret\n")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "--config", path})
	require.NoError(t, rootCmd.Execute())

	auth, err := token.NewAuthority(token.Config{Secret: "cli-secret"})
	require.NoError(t, err)
	claims, ok := auth.Verify(strings.TrimSpace(out.String()))
	require.True(t, ok)
	assert.True(t, claims.IsOperator())
}

func TestSimulatedDeviceAppliesCommands(t *testing.T) {
	dispatch.ResetMetrics(prometheus.NewRegistry())
	cfg := &config.Config{}
	cfg.Auth.Secret = "sim-secret"
	cfg.Device.ApplyDelayMS = 5
	cfg.SetDefaults()
	svc, err := app.New(cfg)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()
	cfg.Device.CoordinatorURL = "ws" + strings.TrimPrefix(srv.URL, "http") + cfg.Server.WSPath

	stdinR, stdinW := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- simulate(context.Background(), cfg, stdinR, nil) }()

	reg := svc.Dispatcher.Registry()
	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, 10*time.Millisecond)
	op, err := svc.Authority.IssueOperatorClaim()
	require.NoError(t, err)
	vehicle := reg.List()[0]
	_, err = svc.Dispatcher.Dispatch(context.Background(), op, vehicle.ID, "honk", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return vehicle.Pending.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	_, err = stdinW.Write([]byte("exit\n"))
	require.NoError(t, err)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("device did not exit")
	}
	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 10*time.Millisecond)
}
