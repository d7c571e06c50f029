// Package event defines the canonical access-event log.
//
// AccessEvents are written exclusively by the ingestion pipeline and
// never updated afterwards; the store is append-only and corrections
// are new events. Read queries serve the admin history views and the
// correlator, which derives parent/child door links and dwell pairings
// on the fly rather than persisting them.
package event
