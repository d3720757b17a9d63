// Package vehicles exposes the connected fleet to operators.
package vehicles

import (
	"net/http"

	"github.com/kilianp07/fleetcmd/api"
	"github.com/kilianp07/fleetcmd/core/dispatch"
)

// Lister returns the connected vehicles for an operator token.
type Lister interface {
	Vehicles(operatorToken string) ([]dispatch.VehicleSummary, error)
}

// Entry is one vehicle in the GET /vehicles reply.
type Entry struct {
	dispatch.VehicleSummary
	PendingCount int `json:"pendingCount"`
}

// NewListHandler returns an HTTP handler listing connected vehicles via GET /vehicles.
func NewListHandler(l Lister) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		list, err := l.Vehicles(api.BearerToken(r))
		if err != nil {
			api.WriteError(w, err)
			return
		}
		out := make([]Entry, 0, len(list))
		for _, v := range list {
			out = append(out, Entry{VehicleSummary: v, PendingCount: len(v.Pending)})
		}
		api.WriteJSON(w, http.StatusOK, out)
	})
}
