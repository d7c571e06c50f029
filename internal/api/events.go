package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/velagate/velagate-core/internal/correlate"
	"github.com/velagate/velagate-core/internal/credential"
	"github.com/velagate/velagate-core/internal/event"
)

// defaultEventLimit caps unbounded event queries.
const defaultEventLimit = 100

// eventView is an event plus its computed correlation attributes.
// Correlation is derived on read and never stored.
type eventView struct {
	event.AccessEvent
	DeviceName  string                `json:"device_name,omitempty"`
	Correlation *correlate.Annotation `json:"correlation,omitempty"`
}

// handleQueryEvents returns events matching the query filters, newest
// first, each annotated with door/dwell correlation computed over the
// result window.
//
// Query parameters:
//   - device_id: filter by originating device
//   - plate: filter by plate (normalized before matching)
//   - user_id: filter by resolved identity
//   - decision: GRANT or DENY
//   - since, until: RFC3339 time bounds
//   - limit: maximum rows (default 100)
func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	events, err := s.events.Find(r.Context(), q)
	if err != nil {
		writeInternalError(w, "failed to query events")
		return
	}

	// The correlator wants its working set oldest first.
	ordered := make([]event.AccessEvent, len(events))
	for i := range events {
		ordered[len(events)-1-i] = events[i]
	}
	annotations := correlate.Annotate(ordered)

	// Device names come from the registry cache, one lookup per device.
	names := make(map[string]string)
	views := make([]eventView, len(events))
	for i := range events {
		views[i] = eventView{AccessEvent: events[i]}
		if ann, ok := annotations[events[i].ID]; ok {
			a := ann
			views[i].Correlation = &a
		}
		name, seen := names[events[i].DeviceID]
		if !seen {
			if dev, err := s.registry.Get(r.Context(), events[i].DeviceID); err == nil {
				name = dev.Name
			}
			names[events[i].DeviceID] = name
		}
		views[i].DeviceName = name
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": views, "count": len(views)})
}

// handleGetEvent returns a single event by ID, annotated against its
// device's surrounding activity so a door pseudo-event fetched alone
// still links to the credential event that caused it.
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	e, err := s.events.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			writeNotFound(w, "event not found")
			return
		}
		writeInternalError(w, "failed to get event")
		return
	}

	view := eventView{AccessEvent: *e}
	if dev, err := s.registry.Get(r.Context(), e.DeviceID); err == nil {
		view.DeviceName = dev.Name
	}
	recent, err := s.events.RecentForDevice(r.Context(), e.DeviceID, e.Timestamp, correlate.CloseWindow)
	if err == nil {
		if ann, ok := correlate.Annotate(recent)[e.ID]; ok {
			view.Correlation = &ann
		}
	}

	writeJSON(w, http.StatusOK, view)
}

// parseEventQuery builds an event.Query from request parameters.
func parseEventQuery(r *http.Request) (event.Query, error) {
	q := event.Query{
		DeviceID: r.URL.Query().Get("device_id"),
		UserID:   r.URL.Query().Get("user_id"),
		Limit:    defaultEventLimit,
	}

	if plate := r.URL.Query().Get("plate"); plate != "" {
		q.Plate = credential.Normalize(credential.TypePlate, plate)
	}

	if decision := r.URL.Query().Get("decision"); decision != "" {
		d := event.Decision(decision)
		if d != event.DecisionGrant && d != event.DecisionDeny {
			return q, errors.New("decision must be GRANT or DENY")
		}
		q.Decision = d
	}

	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return q, errors.New("since must be RFC3339")
		}
		q.Since = t
	}

	if until := r.URL.Query().Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return q, errors.New("until must be RFC3339")
		}
		q.Until = t
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return q, errors.New("limit must be a positive integer")
		}
		q.Limit = n
	}

	return q, nil
}
