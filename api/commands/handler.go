// Package commands serves the operator endpoints that dispatch and cancel
// vehicle commands.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/fleetcmd/api"
	"github.com/kilianp07/fleetcmd/core/dispatch"
)

// Service is the dispatcher surface used by the handlers.
type Service interface {
	Authorize(operatorToken string) error
	Dispatch(ctx context.Context, operatorToken, vehicleID, cmdType string, params any) (dispatch.Result, error)
	Cancel(ctx context.Context, operatorToken, commandID string) (string, error)
}

// Request is the body of a dispatch call.
type Request struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

// CancelResponse is returned by a successful cancel.
type CancelResponse struct {
	Canceled string `json:"canceled"`
}

// Routes mounts the command endpoints on r.
func Routes(r chi.Router, svc Service) {
	r.Post("/vehicles/{deviceId}/commands", NewDispatchHandler(svc))
	r.Post("/commands/{commandId}/cancel", NewCancelHandler(svc))
}

// NewDispatchHandler handles POST /vehicles/{deviceId}/commands. The operator
// token is checked before the body is read.
func NewDispatchHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := api.BearerToken(r)
		if err := svc.Authorize(tok); err != nil {
			api.WriteError(w, err)
			return
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteError(w, fmt.Errorf("%w: body is not valid JSON", api.ErrBadRequest))
			return
		}
		res, err := svc.Dispatch(r.Context(), tok, chi.URLParam(r, "deviceId"), req.Type, params(req.Params))
		if err != nil {
			api.WriteError(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, res)
	}
}

// NewCancelHandler handles POST /commands/{commandId}/cancel.
func NewCancelHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := svc.Cancel(r.Context(), api.BearerToken(r), chi.URLParam(r, "commandId"))
		if err != nil {
			api.WriteError(w, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, CancelResponse{Canceled: id})
	}
}

// params decodes the opaque params so they are re-signed as JSON values, not
// as a base64 byte string. Absent params stay nil.
func params(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
