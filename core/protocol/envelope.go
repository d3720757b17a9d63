// Package protocol defines the JSON envelopes exchanged over a vehicle
// connection.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies an envelope.
type Kind string

const (
	// KindCommand carries a signed command token to a vehicle.
	KindCommand Kind = "command"
	// KindCancel asks a vehicle to cancel a pending command.
	KindCancel Kind = "cancel_command"
	// KindAck carries a signed acknowledgment back to the coordinator.
	KindAck Kind = "ack"
)

// ErrMalformedMessage is returned for payloads that are not a known envelope.
var ErrMalformedMessage = errors.New("protocol: malformed message")

// Envelope is a single framed message. Token is set for command and ack
// envelopes, CommandID for cancel envelopes. A cancel may also carry a signed
// token for vehicles running in strict mode.
type Envelope struct {
	Kind      Kind   `json:"kind"`
	Token     string `json:"token,omitempty"`
	CommandID string `json:"commandId,omitempty"`
}

// Command builds a command envelope.
func Command(token string) Envelope { return Envelope{Kind: KindCommand, Token: token} }

// Cancel builds a cancel envelope. token may be empty.
func Cancel(commandID, token string) Envelope {
	return Envelope{Kind: KindCancel, CommandID: commandID, Token: token}
}

// Ack builds an ack envelope.
func Ack(token string) Envelope { return Envelope{Kind: KindAck, Token: token} }

// Encode marshals the envelope.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses data and checks that the envelope is well formed. Errors wrap
// ErrMalformedMessage.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	switch e.Kind {
	case KindCommand, KindAck:
		if e.Token == "" {
			return Envelope{}, fmt.Errorf("%w: %s without token", ErrMalformedMessage, e.Kind)
		}
	case KindCancel:
		if e.CommandID == "" {
			return Envelope{}, fmt.Errorf("%w: cancel without commandId", ErrMalformedMessage)
		}
	default:
		return Envelope{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedMessage, e.Kind)
	}
	return e, nil
}
