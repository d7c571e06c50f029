// Package credsync reconciles on-device credential tables against the
// authoritative store.
//
// The store always wins: a run pulls the device's full set through its
// brand driver, diffs it against the active store set on normalized
// values, and pushes removes then adds. Individual credential failures
// are collected in the run Report rather than aborting the run, and a
// re-run with unchanged inputs produces an empty diff.
package credsync
