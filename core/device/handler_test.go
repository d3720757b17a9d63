package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetcmd/core/protocol"
	"github.com/kilianp07/fleetcmd/core/token"
)

type chanSender struct {
	ch chan protocol.Envelope
}

func newChanSender() *chanSender { return &chanSender{ch: make(chan protocol.Envelope, 16)} }

func (s *chanSender) Send(_ context.Context, env protocol.Envelope) error {
	s.ch <- env
	return nil
}

func (s *chanSender) next(t *testing.T) protocol.Envelope {
	t.Helper()
	select {
	case env := <-s.ch:
		return env
	case <-time.After(time.Second):
		t.Fatal("no envelope sent")
		return protocol.Envelope{}
	}
}

func (s *chanSender) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case env := <-s.ch:
		t.Fatalf("unexpected envelope %+v", env)
	case <-time.After(wait):
	}
}

func newAuthority(t *testing.T, secret string) *token.Authority {
	t.Helper()
	a, err := token.NewAuthority(token.Config{Secret: secret})
	require.NoError(t, err)
	return a
}

func commandFrame(t *testing.T, a *token.Authority, id, typ string) []byte {
	t.Helper()
	signed, err := a.IssueCommandClaim(map[string]any{
		token.FieldCommandID: id,
		token.FieldType:      typ,
		token.FieldParams:    map[string]any{"volume": 3},
	})
	require.NoError(t, err)
	b, err := protocol.Command(signed).Encode()
	require.NoError(t, err)
	return b
}

func cancelFrame(t *testing.T, id, signed string) []byte {
	t.Helper()
	b, err := protocol.Cancel(id, signed).Encode()
	require.NoError(t, err)
	return b
}

func ackClaims(t *testing.T, a *token.Authority, env protocol.Envelope) token.Claims {
	t.Helper()
	require.Equal(t, protocol.KindAck, env.Kind)
	claims, ok := a.Verify(env.Token)
	require.True(t, ok, "ack must verify")
	return claims
}

func TestNewHandlerNilParams(t *testing.T) {
	_, err := NewHandler(nil, newChanSender(), Delay(0), nil)
	assert.Error(t, err)
}

func TestCommandAppliedThenAcked(t *testing.T) {
	a := newAuthority(t, "s")
	sender := newChanSender()
	var got Command
	applied := make(chan struct{})
	h, err := NewHandler(a, sender, ApplierFunc(func(_ context.Context, cmd Command) error {
		got = cmd
		close(applied)
		return nil
	}), nil)
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), commandFrame(t, a, "c1", "set_volume")))
	claims := ackClaims(t, a, sender.next(t))
	<-applied
	assert.Equal(t, "c1", claims.CommandID())
	assert.Equal(t, token.StatusApplied, claims.Status())
	assert.Equal(t, "set_volume", got.Type)
	assert.JSONEq(t, `{"volume":3}`, string(got.Params))
	assert.Zero(t, h.InFlight())
}

func TestForgedCommandNeverAcked(t *testing.T) {
	a := newAuthority(t, "device-secret")
	sender := newChanSender()
	called := false
	h, err := NewHandler(a, sender, ApplierFunc(func(context.Context, Command) error {
		called = true
		return nil
	}), nil)
	require.NoError(t, err)

	forged := commandFrame(t, newAuthority(t, "attacker"), "c1", "unlock")
	assert.ErrorIs(t, h.HandleMessage(context.Background(), forged), ErrUntrusted)

	op, err := a.IssueOperatorClaim()
	require.NoError(t, err)
	frame, err := protocol.Command(op).Encode()
	require.NoError(t, err)
	assert.ErrorIs(t, h.HandleMessage(context.Background(), frame), ErrUntrusted)

	sender.none(t, 50*time.Millisecond)
	assert.False(t, called)
}

func TestMalformedMessageDiscarded(t *testing.T) {
	h, err := NewHandler(newAuthority(t, "s"), newChanSender(), Delay(0), nil)
	require.NoError(t, err)
	for _, frame := range []string{"not json", `{"kind":"reboot"}`, `{"kind":"command"}`} {
		assert.ErrorIs(t, h.HandleMessage(context.Background(), []byte(frame)), protocol.ErrMalformedMessage, frame)
	}
	ack, err := protocol.Ack("x").Encode()
	require.NoError(t, err)
	assert.ErrorIs(t, h.HandleMessage(context.Background(), ack), protocol.ErrMalformedMessage)
}

func TestCancelAbortsApplyAndSuppressesAppliedAck(t *testing.T) {
	a := newAuthority(t, "s")
	sender := newChanSender()
	started := make(chan struct{})
	aborted := make(chan struct{})
	h, err := NewHandler(a, sender, ApplierFunc(func(ctx context.Context, _ Command) error {
		close(started)
		<-ctx.Done()
		close(aborted)
		return ctx.Err()
	}), nil)
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), commandFrame(t, a, "c1", "lock")))
	<-started
	require.NoError(t, h.HandleMessage(context.Background(), cancelFrame(t, "c1", "")))

	claims := ackClaims(t, a, sender.next(t))
	assert.Equal(t, token.StatusCanceled, claims.Status())
	assert.Equal(t, "c1", claims.CommandID())
	<-aborted
	sender.none(t, 50*time.Millisecond)
}

func TestCancelUnknownAckedInCompatibilityMode(t *testing.T) {
	a := newAuthority(t, "s")
	sender := newChanSender()
	h, err := NewHandler(a, sender, Delay(0), nil)
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), cancelFrame(t, "ghost", "")))
	claims := ackClaims(t, a, sender.next(t))
	assert.Equal(t, "ghost", claims.CommandID())
	assert.Equal(t, token.StatusCanceled, claims.Status())
}

func TestStrictCancelRequiresSignedToken(t *testing.T) {
	a := newAuthority(t, "s")
	sender := newChanSender()
	h, err := NewHandler(a, sender, Delay(time.Hour), nil, WithStrictCancel(true))
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.HandleMessage(context.Background(), commandFrame(t, a, "c1", "lock")))

	other, err := a.IssueCommandClaim(map[string]any{token.FieldCommandID: "c2", token.FieldAction: token.ActionCancel})
	require.NoError(t, err)
	for name, signed := range map[string]string{"unsigned": "", "mismatched": other} {
		assert.ErrorIs(t, h.HandleMessage(context.Background(), cancelFrame(t, "c1", signed)), ErrUntrusted, name)
	}
	sender.none(t, 50*time.Millisecond)
	assert.Equal(t, 1, h.InFlight())

	valid, err := a.IssueCommandClaim(map[string]any{token.FieldCommandID: "c1", token.FieldAction: token.ActionCancel})
	require.NoError(t, err)
	require.NoError(t, h.HandleMessage(context.Background(), cancelFrame(t, "c1", valid)))
	assert.Equal(t, token.StatusCanceled, ackClaims(t, a, sender.next(t)).Status())
	assert.Zero(t, h.InFlight())
}

func TestApplyFailureSendsNoAck(t *testing.T) {
	a := newAuthority(t, "s")
	sender := newChanSender()
	var wg sync.WaitGroup
	wg.Add(1)
	h, err := NewHandler(a, sender, ApplierFunc(func(context.Context, Command) error {
		defer wg.Done()
		return errors.New("amplifier offline")
	}), nil)
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), commandFrame(t, a, "c1", "set_volume")))
	wg.Wait()
	h.Close()
	sender.none(t, 50*time.Millisecond)
}

func TestOverrideSendsManualAck(t *testing.T) {
	a := newAuthority(t, "s")
	sender := newChanSender()
	h, err := NewHandler(a, sender, Delay(0), nil)
	require.NoError(t, err)

	require.NoError(t, h.Override(context.Background()))
	claims := ackClaims(t, a, sender.next(t))
	assert.Equal(t, ManualCommandID, claims.CommandID())
	assert.Equal(t, token.StatusDriverOverride, claims.Status())
}

func TestCloseAbortsInFlight(t *testing.T) {
	a := newAuthority(t, "s")
	sender := newChanSender()
	h, err := NewHandler(a, sender, Delay(time.Hour), nil)
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), commandFrame(t, a, "c1", "lock")))
	require.NoError(t, h.HandleMessage(context.Background(), commandFrame(t, a, "c1", "lock")))
	assert.Equal(t, 1, h.InFlight())

	done := make(chan struct{})
	go func() {
		h.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	sender.none(t, 50*time.Millisecond)
}
