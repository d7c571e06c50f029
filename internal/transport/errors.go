package transport

import "errors"

// Error taxonomy for device management calls.
//
// Callers branch on the class of failure with errors.Is():
//
//	if errors.Is(err, transport.ErrAuth) {
//	    // credentials rejected, mark device degraded
//	}
var (
	// ErrAuth is returned when the device rejects our credentials: a 401
	// that survives the digest retry. Fatal per call.
	ErrAuth = errors.New("transport: authentication rejected")

	// ErrProtocol is returned for unexpected wire shapes: malformed
	// challenges, responses that cannot belong to the protocol. The raw
	// payload is logged for diagnosis; the call is aborted.
	ErrProtocol = errors.New("transport: protocol error")

	// ErrTransient is returned for network-level failures (timeouts,
	// refused connections). Read operations retry these with backoff;
	// write operations surface them after a single attempt.
	ErrTransient = errors.New("transport: transient network error")
)
