package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kilianp07/fleetcmd/core/events"
	"github.com/kilianp07/fleetcmd/core/journal"
	"github.com/kilianp07/fleetcmd/core/token"
)

type memJournal struct{ evs []events.CommandEvent }

func (m *memJournal) Append(_ context.Context, ev events.CommandEvent) error {
	m.evs = append(m.evs, ev)
	return nil
}

func (m *memJournal) Query(_ context.Context, q journal.Query) ([]events.CommandEvent, error) {
	var res []events.CommandEvent
	for _, ev := range m.evs {
		if q.Match(ev) {
			res = append(res, ev)
		}
	}
	return res, nil
}

func (m *memJournal) Close() error { return nil }

func TestLogHandler_AuthAndFilters(t *testing.T) {
	auth, err := token.NewAuthority(token.Config{Secret: "s"})
	if err != nil {
		t.Fatalf("authority: %v", err)
	}
	op, err := auth.IssueOperatorClaim()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	j := &memJournal{}
	now := time.Now().UTC()
	_ = j.Append(context.Background(), events.CommandEvent{Phase: events.PhaseSent, VehicleID: "v1", CommandID: "c1", Time: now})
	_ = j.Append(context.Background(), events.CommandEvent{Phase: events.PhaseSent, VehicleID: "v2", CommandID: "c2", Time: now})
	h := NewLogHandler(j, auth)

	req := httptest.NewRequest("GET", "/commands/log?vehicle_id=v1", nil)
	req.Header.Set("Authorization", "Bearer "+op)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []events.CommandEvent
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].CommandID != "c1" {
		t.Fatalf("unexpected records %#v", out)
	}

	req = httptest.NewRequest("GET", "/commands/log?command_id=none", nil)
	req.Header.Set("Authorization", "Bearer "+op)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Body.String() != "[]\n" {
		t.Fatalf("expected empty array got %s", rr.Body.String())
	}

	req = httptest.NewRequest("GET", "/commands/log?start=yesterday", nil)
	req.Header.Set("Authorization", "Bearer "+op)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}

	req = httptest.NewRequest("GET", "/commands/log", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}
