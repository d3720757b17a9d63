// Package dispatch implements the coordinator side of the command protocol.
//
// A command moves through created → sent → {acknowledged | canceled |
// abandoned}. Creation and sending happen in one Dispatch call, so a command
// is observable as pending as soon as Dispatch returns. Records leave the
// vehicle's pending store exactly once: when a verified ack is reconciled,
// when the vehicle disconnects, or, if the sweeper is enabled, when the
// command token has expired.
//
// Cancel only signals the vehicle. The record stays pending until the
// vehicle's "canceled" ack is reconciled, so repeating a cancel re-signals
// the same command.
package dispatch
