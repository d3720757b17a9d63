// Package token issues and verifies the signed, expiring claims exchanged by
// the coordinator, operators and vehicles.
//
// Two claim namespaces share one HMAC secret:
//   - operator claims, {scope: operator, role: operator}, valid for an operator session;
//   - command claims, {scope: command, ...fields}, used for commands, cancels and
//     acknowledgments, valid for a few minutes to limit replay exposure.
//
// The scope field is checked after signature verification so a token from one
// namespace never satisfies a check for the other.
package token
