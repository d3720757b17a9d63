package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/fleetcmd/core/events"
	"github.com/kilianp07/fleetcmd/core/logger"
	"github.com/kilianp07/fleetcmd/core/metrics"
	"github.com/kilianp07/fleetcmd/core/pending"
	"github.com/kilianp07/fleetcmd/core/protocol"
	"github.com/kilianp07/fleetcmd/core/registry"
	"github.com/kilianp07/fleetcmd/core/token"
	"github.com/kilianp07/fleetcmd/internal/eventbus"
)

// StatusSent is the only status Dispatch reports; delivery is asynchronous.
const StatusSent = "sent"

// Authority is the part of the token authority the dispatcher relies on.
type Authority interface {
	token.Signer
	token.Verifier
	CommandTTL() time.Duration
}

// Result is returned by a successful Dispatch.
type Result struct {
	CommandID string `json:"commandId"`
	Status    string `json:"status"`
}

// VehicleSummary describes a connected vehicle and its pending commands.
type VehicleSummary struct {
	ID          string           `json:"id"`
	ConnectedAt time.Time        `json:"connectedAt"`
	Pending     []pending.Record `json:"pending"`
}

var ackOutcomes = map[string]events.Phase{
	token.StatusApplied:        events.PhaseAcknowledged,
	token.StatusCanceled:       events.PhaseCanceled,
	token.StatusDriverOverride: events.PhaseDriverOverride,
}

// Dispatcher validates operator requests, issues signed commands to vehicles
// and reconciles their acknowledgments.
type Dispatcher struct {
	auth        Authority
	registry    *registry.Registry
	bus         eventbus.Publisher[events.CommandEvent]
	metrics     metrics.MetricsSink
	logger      logger.Logger
	sendTimeout time.Duration
	now         func() time.Time
}

// NewDispatcher creates a dispatcher. bus, sink and log are optional.
func NewDispatcher(auth Authority, reg *registry.Registry, bus eventbus.Publisher[events.CommandEvent], sink metrics.MetricsSink, log logger.Logger) (*Dispatcher, error) {
	if auth == nil || reg == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewDispatcher")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Dispatcher{
		auth:        auth,
		registry:    reg,
		bus:         bus,
		metrics:     sink,
		logger:      logger.OrNop(log),
		sendTimeout: time.Second,
		now:         time.Now,
	}, nil
}

// SetSendTimeout bounds how long an enqueue on a vehicle connection may wait.
func (d *Dispatcher) SetSendTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.sendTimeout = timeout
	}
}

// SetClock replaces time.Now. Used by tests.
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Registry returns the registry the dispatcher operates on.
func (d *Dispatcher) Registry() *registry.Registry { return d.registry }

// Connect registers a new vehicle connection under a coordinator-generated id.
func (d *Dispatcher) Connect(conn registry.Conn) *registry.Session {
	s := d.registry.Register(conn)
	connectedVehicles.Inc()
	d.recordFleetSize()
	d.logger.Infof("vehicle connected: %s", s.ID)
	return s
}

// Disconnect tears the session down. Every command still pending for the
// vehicle is abandoned. Calling it for an unknown id is a no-op.
func (d *Dispatcher) Disconnect(vehicleID string) {
	abandoned, ok := d.registry.Deregister(vehicleID)
	if !ok {
		return
	}
	connectedVehicles.Dec()
	d.recordFleetSize()
	for _, rec := range abandoned {
		d.resolve(vehicleID, rec, events.PhaseAbandoned, "")
	}
	d.logger.Infof("vehicle disconnected: %s (%d commands abandoned)", vehicleID, len(abandoned))
}

// Dispatch records a new command for vehicleID and sends it as a signed token.
// Checks run in order: operator token, target vehicle, command type.
func (d *Dispatcher) Dispatch(ctx context.Context, operatorToken, vehicleID, cmdType string, params any) (Result, error) {
	if err := d.Authorize(operatorToken); err != nil {
		return Result{}, err
	}
	sess, ok := d.registry.Get(vehicleID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrTargetNotFound, vehicleID)
	}
	if cmdType == "" {
		return Result{}, ErrInvalidCommand
	}

	now := d.now()
	rec := pending.Record{
		CommandID: uuid.NewString(),
		Type:      cmdType,
		Params:    params,
		IssuedAt:  now,
		ExpiresAt: now.Add(d.auth.CommandTTL()),
	}
	if err := sess.Pending.Insert(rec); err != nil {
		return Result{}, fmt.Errorf("record command: %w", err)
	}
	pendingCommands.Inc()

	signed, err := d.auth.IssueCommandClaim(map[string]any{
		token.FieldCommandID: rec.CommandID,
		token.FieldType:      rec.Type,
		token.FieldParams:    rec.Params,
	})
	if err != nil {
		if sess.Pending.Remove(rec.CommandID) {
			pendingCommands.Dec()
		}
		return Result{}, fmt.Errorf("sign command: %w", err)
	}

	d.send(ctx, sess, protocol.Command(signed))
	commandsDispatched.WithLabelValues(rec.Type).Inc()
	d.emit(events.CommandEvent{Phase: events.PhaseSent, VehicleID: vehicleID, CommandID: rec.CommandID, Type: rec.Type})
	d.logger.Infof("sent command %s (%s) to %s", rec.CommandID, rec.Type, vehicleID)

	// A disconnect may have cleared the store between Get and Insert; the
	// record then belongs to a dead session and is abandoned here.
	if cur, ok := d.registry.Get(vehicleID); !ok || cur != sess {
		if sess.Pending.Remove(rec.CommandID) {
			d.resolve(vehicleID, rec, events.PhaseAbandoned, "")
		}
	}
	return Result{CommandID: rec.CommandID, Status: StatusSent}, nil
}

// Cancel asks the vehicle holding commandID to cancel it. The record stays
// pending until the vehicle acknowledges the cancellation.
func (d *Dispatcher) Cancel(ctx context.Context, operatorToken, commandID string) (string, error) {
	if !d.authorize(operatorToken) {
		return "", ErrUnauthorized
	}
	sess, ok := d.registry.FindByCommandID(commandID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrCommandNotFound, commandID)
	}
	signed, err := d.auth.IssueCommandClaim(map[string]any{
		token.FieldCommandID: commandID,
		token.FieldAction:    token.ActionCancel,
	})
	if err != nil {
		d.logger.Warnf("sign cancel %s: %v", commandID, err)
		signed = ""
	}
	d.send(ctx, sess, protocol.Cancel(commandID, signed))
	d.emit(events.CommandEvent{Phase: events.PhaseCancelRequested, VehicleID: sess.ID, CommandID: commandID})
	d.logger.Infof("cancel requested for %s on %s", commandID, sess.ID)
	return commandID, nil
}

// ReconcileAck applies an acknowledgment received from vehicleID. Acks that do
// not verify are logged and dropped; acks for unknown commands are no-ops.
func (d *Dispatcher) ReconcileAck(vehicleID, ackToken string) {
	claims, ok := d.auth.Verify(ackToken)
	if !ok || !claims.IsCommand() {
		d.rejectAck(vehicleID, "", "ack did not verify")
		return
	}
	commandID := claims.CommandID()
	phase, known := ackOutcomes[claims.Status()]
	if commandID == "" || !known {
		d.rejectAck(vehicleID, commandID, fmt.Sprintf("ack with status %q", claims.Status()))
		return
	}
	d.logger.Debugw("ack from vehicle", map[string]any{
		"vehicle_id": vehicleID,
		"command_id": commandID,
		"status":     claims.Status(),
	})

	sess, ok := d.registry.Get(vehicleID)
	if !ok {
		d.logger.Debugf("ack %s from disconnected vehicle %s ignored", commandID, vehicleID)
		return
	}
	rec, found := sess.Pending.Find(commandID)
	if found && sess.Pending.Remove(commandID) {
		d.resolve(vehicleID, rec, phase, claims.Status())
		return
	}
	if phase == events.PhaseDriverOverride {
		d.emit(events.CommandEvent{Phase: phase, VehicleID: vehicleID, CommandID: commandID, Status: claims.Status()})
		d.logger.Warnf("driver override reported by %s", vehicleID)
		return
	}
	d.logger.Debugf("ack for unknown command %s from %s", commandID, vehicleID)
}

// Vehicles lists connected vehicles for an authenticated operator.
func (d *Dispatcher) Vehicles(operatorToken string) ([]VehicleSummary, error) {
	if !d.authorize(operatorToken) {
		return nil, ErrUnauthorized
	}
	sessions := d.registry.List()
	out := make([]VehicleSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, VehicleSummary{ID: s.ID, ConnectedAt: s.ConnectedAt, Pending: s.Pending.List()})
	}
	return out, nil
}

// Authorize returns ErrUnauthorized unless operatorToken carries a valid
// operator claim.
func (d *Dispatcher) Authorize(operatorToken string) error {
	if !d.authorize(operatorToken) {
		return ErrUnauthorized
	}
	return nil
}

func (d *Dispatcher) authorize(operatorToken string) bool {
	claims, ok := d.auth.Verify(operatorToken)
	return ok && claims.IsOperator()
}

// send enqueues env on the session. Failures are logged and swallowed: a
// closed connection means the record is already being abandoned.
func (d *Dispatcher) send(ctx context.Context, s *registry.Session, env protocol.Envelope) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.sendTimeout)
	defer cancel()
	if err := s.Conn.Send(sctx, env); err != nil {
		sendFailures.Inc()
		d.logger.Warnf("send %s to %s: %v", env.Kind, s.ID, err)
	}
}

func (d *Dispatcher) resolve(vehicleID string, rec pending.Record, phase events.Phase, status string) {
	outcome := string(phase)
	latency := d.now().Sub(rec.IssuedAt)
	pendingCommands.Dec()
	commandsResolved.WithLabelValues(outcome).Inc()
	resolveLatency.WithLabelValues(outcome).Observe(latency.Seconds())
	d.emit(events.CommandEvent{
		Phase:     phase,
		VehicleID: vehicleID,
		CommandID: rec.CommandID,
		Type:      rec.Type,
		Status:    status,
		Latency:   latency,
	})
}

func (d *Dispatcher) rejectAck(vehicleID, commandID, reason string) {
	acksRejected.Inc()
	d.logger.Warnf("discarding ack from %s: %s", vehicleID, reason)
	d.emit(events.CommandEvent{Phase: events.PhaseAckRejected, VehicleID: vehicleID, CommandID: commandID, Err: reason})
}

func (d *Dispatcher) emit(ev events.CommandEvent) {
	if ev.Time.IsZero() {
		ev.Time = d.now()
	}
	if d.bus != nil {
		d.bus.Publish(ev)
	}
	if err := d.metrics.RecordCommandEvent(ev); err != nil {
		d.logger.Errorf("metrics error: %v", err)
	}
}

func (d *Dispatcher) recordFleetSize() {
	fr, ok := d.metrics.(metrics.FleetSizeRecorder)
	if !ok {
		return
	}
	if err := fr.RecordFleetSize(d.registry.Len()); err != nil {
		d.logger.Errorf("fleet size metrics error: %v", err)
	}
}
