// Package correlate derives relationships between stored access
// events: which credential presentation caused a door state change,
// and how long a subject dwelt between an entry and the matching exit.
//
// Everything here is a pure function over time-ordered event slices.
// The event log itself stays append-only; correlation is recomputed on
// every read.
package correlate
