package correlate

import (
	"time"

	"github.com/velagate/velagate-core/internal/credential"
	"github.com/velagate/velagate-core/internal/device"
	"github.com/velagate/velagate-core/internal/event"
)

// Correlation windows. A door relay fires within moments of the grant;
// the close can trail a slow gate by a couple of minutes.
const (
	OpenWindow  = 30 * time.Second
	CloseWindow = 120 * time.Second
)

// Dwell labels describe where the subject was before this event, based
// on the direction of the paired prior event.
const (
	LabelWasInside  = "was inside"
	LabelWasOutside = "was outside"
)

// Annotation is the computed correlation attributes for one event.
// Events are immutable once stored; annotations exist only on read.
type Annotation struct {
	// ParentID links a door pseudo-event to the credential event that
	// plausibly caused it. Empty for orphans and credential events.
	ParentID string `json:"parent_id,omitempty"`

	// PairedEventID and DwellSeconds describe the most recent prior
	// passage of the same subject in the opposite direction. Absent
	// when no prior passage is known.
	PairedEventID string  `json:"paired_event_id,omitempty"`
	DwellSeconds  float64 `json:"dwell_seconds,omitempty"`
	DwellLabel    string  `json:"dwell_label,omitempty"`
}

// subjectKey identifies the moving subject of a credential event for
// dwell pairing. Resolution order: matched credential, then the
// normalized plate. Events with neither cannot pair.
func subjectKey(e *event.AccessEvent) string {
	if e.CredentialID != nil && *e.CredentialID != "" {
		return "cred:" + *e.CredentialID
	}
	if e.PlateDetected != "" && !credential.IsUnread(e.PlateDetected) {
		return "plate:" + credential.Normalize(credential.TypePlate, e.PlateDetected)
	}
	return ""
}

// window returns the attach window for a door pseudo-event type.
func window(t event.AccessType) time.Duration {
	if t == event.AccessDoorClose {
		return CloseWindow
	}
	return OpenWindow
}

// Annotate computes correlation attributes for a time-ordered slice
// (oldest first). The result maps event IDs to their annotations;
// events with nothing to report have no entry.
//
// Door pseudo-events attach to the nearest preceding credential event
// on the same device inside the type's window; with no candidate they
// stay orphans. Credential events pair with the most recent prior
// event of the same subject in the opposite direction, yielding the
// dwell duration.
func Annotate(events []event.AccessEvent) map[string]Annotation {
	out := make(map[string]Annotation)

	// lastPassage tracks the most recent prior credential event per
	// subject and direction, so a repeated exit still pairs with the
	// entry before it rather than with the earlier exit.
	type passage struct {
		id        string
		timestamp time.Time
	}
	type passageKey struct {
		subject   string
		direction device.Direction
	}
	lastPassage := make(map[passageKey]passage)

	for i := range events {
		e := &events[i]
		var ann Annotation

		if e.AccessType.IsDoorState() {
			if parent := nearestCause(events, i); parent != "" {
				ann.ParentID = parent
			}
		} else {
			key := subjectKey(e)
			if key != "" && e.Direction != "" {
				opposite := e.Direction.Opposite()
				if prior, ok := lastPassage[passageKey{key, opposite}]; ok {
					ann.PairedEventID = prior.id
					ann.DwellSeconds = e.Timestamp.Sub(prior.timestamp).Abs().Seconds()
					if opposite == device.DirectionEntry {
						ann.DwellLabel = LabelWasInside
					} else {
						ann.DwellLabel = LabelWasOutside
					}
				}
				lastPassage[passageKey{key, e.Direction}] = passage{id: e.ID, timestamp: e.Timestamp}
			}
		}

		if ann != (Annotation{}) {
			out[e.ID] = ann
		}
	}
	return out
}

// nearestCause scans backwards from a door pseudo-event for the
// closest preceding credential event on the same device within the
// window.
func nearestCause(events []event.AccessEvent, doorIdx int) string {
	door := &events[doorIdx]
	w := window(door.AccessType)

	for i := doorIdx - 1; i >= 0; i-- {
		c := &events[i]
		if c.AccessType.IsDoorState() || c.DeviceID != door.DeviceID {
			continue
		}
		gap := door.Timestamp.Sub(c.Timestamp)
		if gap < 0 {
			continue
		}
		if gap > w {
			// Time-ordered input: everything earlier is further away.
			return ""
		}
		return c.ID
	}
	return ""
}

// Pair computes the dwell annotation for a single event against a
// known prior opposite-direction event, for callers that resolve the
// prior from storage instead of a slice.
func Pair(e *event.AccessEvent, prior *event.AccessEvent) Annotation {
	if prior == nil || prior.Direction != e.Direction.Opposite() {
		return Annotation{}
	}
	ann := Annotation{
		PairedEventID: prior.ID,
		DwellSeconds:  e.Timestamp.Sub(prior.Timestamp).Abs().Seconds(),
	}
	if prior.Direction == device.DirectionEntry {
		ann.DwellLabel = LabelWasInside
	} else {
		ann.DwellLabel = LabelWasOutside
	}
	return ann
}
