package events

import "time"

// Phase is a command lifecycle transition.
type Phase string

const (
	PhaseSent            Phase = "sent"
	PhaseCancelRequested Phase = "cancel_requested"
	PhaseAcknowledged    Phase = "acknowledged"
	PhaseCanceled        Phase = "canceled"
	PhaseDriverOverride  Phase = "driver_override"
	PhaseAbandoned       Phase = "abandoned"
	PhaseExpired         Phase = "expired"
	PhaseAckRejected     Phase = "ack_rejected"
)

// Terminal reports whether the phase resolves a command.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseAcknowledged, PhaseCanceled, PhaseAbandoned, PhaseExpired:
		return true
	}
	return false
}

// CommandEvent describes one transition of a command.
type CommandEvent struct {
	Phase     Phase         `json:"phase"`
	VehicleID string        `json:"vehicleId"`
	CommandID string        `json:"commandId,omitempty"`
	Type      string        `json:"type,omitempty"`
	Status    string        `json:"status,omitempty"`
	Latency   time.Duration `json:"latencyNs,omitempty"`
	Time      time.Time     `json:"time"`
	Err       string        `json:"error,omitempty"`
}
