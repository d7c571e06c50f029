// Package transport provides the authenticated HTTP client used to talk
// to access-control device management APIs.
//
// Devices speak plain HTTP with digest authentication (RFC 2617,
// qop=auth, MD5 or SHA-256); a few older firmwares only do basic auth,
// selected per device. The client performs the 401 challenge handshake
// transparently and classifies failures into three sentinel errors so
// callers can choose between retrying, surfacing a credentials problem,
// and marking a device degraded:
//
//   - ErrAuth: credentials rejected after a completed handshake
//   - ErrProtocol: the device answered with something we cannot parse
//   - ErrTransient: network-level failure, safe to retry reads
//
// Read calls are retried with bounded exponential backoff; writes are
// attempted once because device credential stores are not reliably
// idempotent.
package transport
