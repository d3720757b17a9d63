package token

import "encoding/json"

// Reserved claim fields.
const (
	FieldScope     = "scope"
	FieldRole      = "role"
	FieldCommandID = "commandId"
	FieldType      = "type"
	FieldParams    = "params"
	FieldStatus    = "status"
	FieldAction    = "action"
)

// Claim scopes.
const (
	ScopeOperator = "operator"
	ScopeCommand  = "command"
)

// RoleOperator is the only role this protocol knows.
const RoleOperator = "operator"

// Ack statuses carried by command claims.
const (
	StatusApplied        = "applied"
	StatusCanceled       = "canceled"
	StatusDriverOverride = "driver_override"
)

// ActionCancel marks a signed cancel request.
const ActionCancel = "cancel"

// Claims is the decoded payload of a verified token. The registered exp and
// iat fields are stripped; everything else is returned as signed.
type Claims map[string]any

func (c Claims) str(key string) string {
	s, _ := c[key].(string)
	return s
}

// Scope returns the claim namespace.
func (c Claims) Scope() string { return c.str(FieldScope) }

// IsOperator reports whether the claim proves the operator role.
func (c Claims) IsOperator() bool {
	return c.Scope() == ScopeOperator && c.str(FieldRole) == RoleOperator
}

// IsCommand reports whether the claim belongs to the command namespace.
func (c Claims) IsCommand() bool { return c.Scope() == ScopeCommand }

// CommandID returns the commandId field, or "" when absent.
func (c Claims) CommandID() string { return c.str(FieldCommandID) }

// Type returns the command type field.
func (c Claims) Type() string { return c.str(FieldType) }

// Status returns the ack status field.
func (c Claims) Status() string { return c.str(FieldStatus) }

// Action returns the action field.
func (c Claims) Action() string { return c.str(FieldAction) }

// Params returns the params field re-encoded as JSON, or nil when absent.
func (c Claims) Params() json.RawMessage {
	v, ok := c[FieldParams]
	if !ok || v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// Fields returns the claim without the scope discriminant, i.e. exactly the
// mapping that was handed to the issuer.
func (c Claims) Fields() map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		if k == FieldScope {
			continue
		}
		out[k] = v
	}
	return out
}
