// Package events defines the command lifecycle events emitted on the event bus.
//
// One CommandEvent is published per transition:
//   - sent: the command was recorded and handed to the vehicle connection
//   - cancel_requested: an operator asked the vehicle to cancel
//   - acknowledged, canceled, driver_override: a verified ack was reconciled
//   - abandoned: the vehicle disconnected with the command still pending
//   - expired: the expiry sweep removed a command whose token can no longer verify
//   - ack_rejected: an ack failed verification and was discarded
package events
