package session

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/clinicvault/clinicvault-api/models"
)

// Relay is the protocol layer between a connection's read loop and the
// registry. It decodes each inbound frame exactly once, validates the type
// tag and forwards the envelope to the sender's peers. Signaling payloads
// (offer, answer, candidate) pass through byte-for-byte; the relay never
// parses media-negotiation internals.
type Relay struct {
	registry *Registry
}

// NewRelay creates a relay over the given registry
func NewRelay(registry *Registry) *Relay {
	return &Relay{registry: registry}
}

// HandleInbound processes one raw frame from a participant. Unparsable
// frames and unrecognized types are dropped with a log line; the connection
// stays open either way.
func (r *Relay) HandleInbound(h *Handle, frame []byte) {
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		zap.S().Warnw("dropping unparsable envelope",
			"consultationID", h.ConsultationID,
			"userID", h.UserID,
			"error", err,
		)
		return
	}
	if !env.Type.Valid() {
		zap.S().Warnw("dropping envelope with unrecognized type",
			"consultationID", h.ConsultationID,
			"userID", h.UserID,
			"type", env.Type,
		)
		return
	}
	env.Sender = h.Name
	r.registry.BroadcastToPeers(h, env)
}
