package models

import "encoding/json"

// EnvelopeType tags the payload shape of a session message
type EnvelopeType string

// The six recognized envelope types. Chat, system and transcript carry free
// text; offer, answer and candidate carry opaque WebRTC negotiation payloads
// that the server forwards without inspection.
const (
	EnvelopeChat       EnvelopeType = "chat"
	EnvelopeSystem     EnvelopeType = "system"
	EnvelopeTranscript EnvelopeType = "transcript"
	EnvelopeOffer      EnvelopeType = "offer"
	EnvelopeAnswer     EnvelopeType = "answer"
	EnvelopeCandidate  EnvelopeType = "candidate"
)

// Valid reports whether t is one of the six recognized envelope types
func (t EnvelopeType) Valid() bool {
	switch t {
	case EnvelopeChat, EnvelopeSystem, EnvelopeTranscript,
		EnvelopeOffer, EnvelopeAnswer, EnvelopeCandidate:
		return true
	}
	return false
}

// Envelope is the wire unit exchanged over a consultation session connection.
// SDP and Candidate stay json.RawMessage so signaling payloads pass through
// byte-for-byte; malformed negotiation internals are the peers' problem, not
// the relay's.
type Envelope struct {
	Type      EnvelopeType    `json:"type"`
	Sender    string          `json:"sender,omitempty"`
	Text      string          `json:"text,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Initiator bool            `json:"initiator,omitempty"`
}
