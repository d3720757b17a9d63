// Package history exposes the command lifecycle journal.
package history

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/fleetcmd/api"
	"github.com/kilianp07/fleetcmd/core/dispatch"
	"github.com/kilianp07/fleetcmd/core/events"
	"github.com/kilianp07/fleetcmd/core/journal"
	"github.com/kilianp07/fleetcmd/core/token"
)

// NewLogHandler returns an HTTP handler exposing journal entries via GET /commands/log.
// Requests must carry an operator token as "Authorization: Bearer <token>".
func NewLogHandler(j journal.Journal, v token.Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := v.Verify(api.BearerToken(r)); !ok || !claims.IsOperator() {
			api.WriteError(w, dispatch.ErrUnauthorized)
			return
		}
		q := journal.Query{
			VehicleID: r.URL.Query().Get("vehicle_id"),
			CommandID: r.URL.Query().Get("command_id"),
			Phase:     events.Phase(r.URL.Query().Get("phase")),
		}
		for key, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
			s := r.URL.Query().Get(key)
			if s == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				api.WriteError(w, fmt.Errorf("%w: %s is not RFC3339", api.ErrBadRequest, key))
				return
			}
			*dst = t
		}
		entries, err := j.Query(r.Context(), q)
		if err != nil {
			api.WriteError(w, err)
			return
		}
		if entries == nil {
			entries = []events.CommandEvent{}
		}
		api.WriteJSON(w, http.StatusOK, entries)
	})
}
