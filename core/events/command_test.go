package events

import "testing"

func TestPhaseTerminal(t *testing.T) {
	terminal := map[Phase]bool{
		PhaseSent:            false,
		PhaseCancelRequested: false,
		PhaseAcknowledged:    true,
		PhaseCanceled:        true,
		PhaseDriverOverride:  false,
		PhaseAbandoned:       true,
		PhaseExpired:         true,
		PhaseAckRejected:     false,
	}
	for p, want := range terminal {
		if p.Terminal() != want {
			t.Fatalf("%s: expected terminal=%v", p, want)
		}
	}
}
