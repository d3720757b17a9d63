// Package device implements the vehicle side of the command protocol: it
// verifies commands, runs them through an Applier and answers with signed
// acknowledgments.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kilianp07/fleetcmd/core/logger"
	"github.com/kilianp07/fleetcmd/core/protocol"
	"github.com/kilianp07/fleetcmd/core/token"
)

// ManualCommandID is the commandId reported with a driver override.
const ManualCommandID = "manual"

// ErrUntrusted is returned for envelopes whose token does not verify.
var ErrUntrusted = errors.New("device: untrusted envelope")

// Command is a verified command as seen by an Applier.
type Command struct {
	ID     string
	Type   string
	Params json.RawMessage
}

// Applier carries out a command on the vehicle. Apply must return promptly
// once ctx is canceled.
type Applier interface {
	Apply(ctx context.Context, cmd Command) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(ctx context.Context, cmd Command) error

// Apply calls f.
func (f ApplierFunc) Apply(ctx context.Context, cmd Command) error { return f(ctx, cmd) }

// Sender delivers envelopes to the coordinator.
type Sender interface {
	Send(ctx context.Context, env protocol.Envelope) error
}

// Authority is what the handler needs from the token authority.
type Authority interface {
	token.Signer
	token.Verifier
}

// Option customizes a Handler.
type Option func(*Handler)

// WithStrictCancel makes the handler ignore cancel envelopes that do not carry
// a verified cancel token for the same command.
func WithStrictCancel(strict bool) Option {
	return func(h *Handler) { h.strict = strict }
}

// Handler processes envelopes received on one vehicle connection.
type Handler struct {
	auth    Authority
	sender  Sender
	applier Applier
	log     logger.Logger
	strict  bool

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// NewHandler creates a Handler. log may be nil.
func NewHandler(auth Authority, sender Sender, applier Applier, log logger.Logger, opts ...Option) (*Handler, error) {
	if auth == nil || sender == nil || applier == nil {
		return nil, fmt.Errorf("device: nil parameter provided to NewHandler")
	}
	h := &Handler{
		auth:     auth,
		sender:   sender,
		applier:  applier,
		log:      logger.OrNop(log),
		inflight: make(map[string]context.CancelFunc),
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// HandleMessage decodes and processes one frame. Errors are informational:
// the offending frame has already been discarded.
func (h *Handler) HandleMessage(ctx context.Context, data []byte) error {
	env, err := protocol.Decode(data)
	if err != nil {
		h.log.Warnf("discarding message: %v", err)
		return err
	}
	switch env.Kind {
	case protocol.KindCommand:
		return h.handleCommand(ctx, env)
	case protocol.KindCancel:
		return h.handleCancel(ctx, env)
	default:
		h.log.Warnf("discarding unexpected %s envelope", env.Kind)
		return fmt.Errorf("%w: unexpected kind %q", protocol.ErrMalformedMessage, env.Kind)
	}
}

func (h *Handler) handleCommand(ctx context.Context, env protocol.Envelope) error {
	claims, ok := h.auth.Verify(env.Token)
	if !ok || !claims.IsCommand() || claims.CommandID() == "" || claims.Status() != "" || claims.Action() != "" {
		h.log.Warnf("invalid command signature")
		return ErrUntrusted
	}
	cmd := Command{ID: claims.CommandID(), Type: claims.Type(), Params: claims.Params()}

	h.mu.Lock()
	if _, busy := h.inflight[cmd.ID]; busy {
		h.mu.Unlock()
		h.log.Debugf("command %s already in flight", cmd.ID)
		return nil
	}
	actx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.inflight[cmd.ID] = cancel
	h.mu.Unlock()

	h.log.Infof("applying command %s (%s)", cmd.ID, cmd.Type)
	h.wg.Add(1)
	go h.apply(actx, cmd)
	return nil
}

func (h *Handler) apply(ctx context.Context, cmd Command) {
	defer h.wg.Done()
	err := h.applier.Apply(ctx, cmd)

	h.mu.Lock()
	cancel, owned := h.inflight[cmd.ID]
	if owned {
		delete(h.inflight, cmd.ID)
	}
	h.mu.Unlock()
	if !owned {
		// canceled while applying; the cancel path already answered.
		return
	}
	defer cancel()
	if err != nil {
		h.log.Errorf("apply %s: %v", cmd.ID, err)
		return
	}
	h.ack(ctx, cmd.ID, token.StatusApplied)
}

func (h *Handler) handleCancel(ctx context.Context, env protocol.Envelope) error {
	if h.strict {
		claims, ok := h.auth.Verify(env.Token)
		if !ok || !claims.IsCommand() || claims.Action() != token.ActionCancel || claims.CommandID() != env.CommandID {
			h.log.Warnf("ignoring unsigned cancel for %s", env.CommandID)
			return ErrUntrusted
		}
	}

	h.mu.Lock()
	cancel, ok := h.inflight[env.CommandID]
	delete(h.inflight, env.CommandID)
	h.mu.Unlock()
	if ok {
		cancel()
	}

	h.log.Infof("command canceled: %s", env.CommandID)
	h.ack(ctx, env.CommandID, token.StatusCanceled)
	return nil
}

// Override reports that the driver took manual control.
func (h *Handler) Override(ctx context.Context) error {
	h.log.Warnf("driver override triggered")
	return h.ack(ctx, ManualCommandID, token.StatusDriverOverride)
}

// InFlight returns how many commands are currently being applied.
func (h *Handler) InFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inflight)
}

// Close aborts every command still being applied and waits for them to return.
func (h *Handler) Close() {
	h.mu.Lock()
	for id, cancel := range h.inflight {
		cancel()
		delete(h.inflight, id)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Handler) ack(ctx context.Context, commandID, status string) error {
	signed, err := h.auth.IssueCommandClaim(map[string]any{
		token.FieldCommandID: commandID,
		token.FieldStatus:    status,
	})
	if err != nil {
		h.log.Errorf("sign ack %s: %v", commandID, err)
		return fmt.Errorf("sign ack: %w", err)
	}
	if err := h.sender.Send(ctx, protocol.Ack(signed)); err != nil {
		h.log.Warnf("send ack %s: %v", commandID, err)
		return fmt.Errorf("send ack: %w", err)
	}
	return nil
}
