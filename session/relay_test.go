package session_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicvault/clinicvault-api/models"
	"github.com/clinicvault/clinicvault-api/session"
)

func relayPair(t *testing.T) (*session.Relay, *session.Handle, *session.Handle) {
	t.Helper()
	source := newStubSource()
	source.set("c1", models.StatusActive)
	r := session.NewRegistry(source)
	relay := session.NewRelay(r)

	h1, err := r.Join(context.Background(), "c1", session.Participant{UserID: "a", Name: "Pat", Role: models.RolePatient})
	require.NoError(t, err)
	h2, err := r.Join(context.Background(), "c1", session.Participant{UserID: "b", Name: "Dr. Smith", Role: models.RoleDoctor})
	require.NoError(t, err)
	recvEnvelope(t, h1)
	recvEnvelope(t, h2)
	return relay, h1, h2
}

func TestRelay_ForwardsChatWithServerSideSender(t *testing.T) {
	relay, h1, h2 := relayPair(t)

	// sender field in the frame is attacker-controlled and must be replaced
	relay.HandleInbound(h1, []byte(`{"type":"chat","text":"hello doctor","sender":"Forged Name"}`))

	env := recvEnvelope(t, h2)
	assert.Equal(t, models.EnvelopeChat, env.Type)
	assert.Equal(t, "hello doctor", env.Text)
	assert.Equal(t, "Pat", env.Sender)
}

func TestRelay_DropsUnparsableFrames(t *testing.T) {
	relay, h1, h2 := relayPair(t)

	relay.HandleInbound(h1, []byte(`{not json`))
	assertNoEnvelope(t, h2)
}

func TestRelay_DropsUnrecognizedTypes(t *testing.T) {
	relay, h1, h2 := relayPair(t)

	relay.HandleInbound(h1, []byte(`{"type":"shutdown","text":"now"}`))
	assertNoEnvelope(t, h2)
}

func TestRelay_ForwardsSignalingPayloadsVerbatim(t *testing.T) {
	relay, h1, h2 := relayPair(t)

	for _, tc := range []struct {
		name    string
		frame   string
		envType models.EnvelopeType
	}{
		{"offer", `{"type":"offer","sdp":{"type":"offer","sdp":"v=0\r\no=- 46117 2 IN IP4 127.0.0.1"}}`, models.EnvelopeOffer},
		{"answer", `{"type":"answer","sdp":{"type":"answer","sdp":"v=0"}}`, models.EnvelopeAnswer},
		{"candidate", `{"type":"candidate","candidate":{"candidate":"candidate:1 1 UDP 2122252543","sdpMid":"0","sdpMLineIndex":0}}`, models.EnvelopeCandidate},
	} {
		t.Run(tc.name, func(t *testing.T) {
			relay.HandleInbound(h1, []byte(tc.frame))
			env := recvEnvelope(t, h2)
			assert.Equal(t, tc.envType, env.Type)

			// the negotiation payload must survive the relay untouched
			var sent models.Envelope
			require.NoError(t, json.Unmarshal([]byte(tc.frame), &sent))
			if sent.SDP != nil {
				assert.JSONEq(t, string(sent.SDP), string(env.SDP))
			}
			if sent.Candidate != nil {
				assert.JSONEq(t, string(sent.Candidate), string(env.Candidate))
			}
		})
	}
}

func TestRelay_ForwardsTranscriptEnvelopes(t *testing.T) {
	relay, h1, h2 := relayPair(t)

	relay.HandleInbound(h1, []byte(`{"type":"transcript","text":"the pain started yesterday"}`))
	env := recvEnvelope(t, h2)
	assert.Equal(t, models.EnvelopeTranscript, env.Type)
	assert.Equal(t, "the pain started yesterday", env.Text)
	assert.Equal(t, "Pat", env.Sender)
}
