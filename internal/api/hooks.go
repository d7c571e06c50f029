package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/velagate/velagate-core/internal/ingest"
)

// Webhook acknowledgment bodies. Devices retransmit on anything they
// read as failure, so the ack must go out promptly and in the shape
// the brand's firmware expects.
const (
	ackXML   = `<?xml version="1.0" encoding="UTF-8"?><ResponseStatus><statusCode>1</statusCode><statusString>OK</statusString></ResponseStatus>`
	ackPlain = "OK"
)

// handleWebhook receives an inbound device event payload, runs it
// through the ingest pipeline, and acknowledges in the shape the
// posting brand expects.
//
// Duplicate deliveries and unknown devices are acknowledged with 200
// anyway: the device cannot act on an error, and a non-2xx answer
// only provokes a retransmission storm.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	brand := chi.URLParam(r, "brand")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body")
		return
	}

	_, err = s.pipeline.Process(r.Context(), r.Header.Get("Content-Type"), body)
	switch {
	case err == nil:
		// fall through to ack
	case errors.Is(err, ingest.ErrDuplicate):
		s.logger.Debug("duplicate webhook delivery", "brand", brand, "error", err)
	case errors.Is(err, ingest.ErrUnknownDevice):
		s.logger.Warn("webhook from unknown device", "brand", brand, "error", err)
	default:
		var parseErr *ingest.ParseError
		if errors.As(err, &parseErr) {
			s.logger.Warn("unparseable webhook payload",
				"brand", brand,
				"reason", parseErr.Reason,
				"error", err,
			)
			writeAck(w, brand, http.StatusBadRequest)
			return
		}
		s.logger.Error("webhook processing failed", "brand", brand, "error", err)
		writeInternalError(w, "event processing failed")
		return
	}

	writeAck(w, brand, http.StatusOK)
}

// writeAck sends the brand-appropriate acknowledgment body.
func writeAck(w http.ResponseWriter, brand string, status int) {
	if brand == "dahua" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status)
		//nolint:errcheck // Best-effort write to response
		w.Write([]byte(ackPlain))
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response
	w.Write([]byte(ackXML))
}
