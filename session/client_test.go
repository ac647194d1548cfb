package session_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicvault/clinicvault-api/models"
	"github.com/clinicvault/clinicvault-api/session"
)

func readEnv(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	var env models.Envelope
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestServeSession_EndToEnd(t *testing.T) {
	source := newStubSource()
	source.set("c1", models.StatusActive)
	registry := session.NewRegistry(source)
	relay := session.NewRelay(registry)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		p := session.Participant{UserID: q.Get("user"), Name: q.Get("name"), Role: q.Get("role")}
		if err := session.ServeSession(registry, relay, w, r, q.Get("consultation"), p); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	dial := func(consultation, user, name string) (*websocket.Conn, *http.Response, error) {
		return websocket.DefaultDialer.Dial(
			wsURL+"/?consultation="+consultation+"&user="+user+"&name="+url.QueryEscape(name), nil)
	}

	patient, _, err := dial("c1", "a", "Pat")
	require.NoError(t, err)
	defer patient.Close()
	doctor, _, err := dial("c1", "b", "Dr. Smith")
	require.NoError(t, err)
	defer doctor.Close()

	// both sides hear about each other
	env := readEnv(t, patient)
	assert.Equal(t, models.EnvelopeSystem, env.Type)
	assert.Equal(t, "Dr. Smith joined", env.Text)
	env = readEnv(t, doctor)
	assert.Equal(t, models.EnvelopeSystem, env.Type)
	assert.Equal(t, "Pat is in the consultation", env.Text)

	// chat crosses the room with the server-side sender identity
	require.NoError(t, patient.WriteJSON(models.Envelope{Type: models.EnvelopeChat, Text: "hello doctor"}))
	env = readEnv(t, doctor)
	assert.Equal(t, models.EnvelopeChat, env.Type)
	assert.Equal(t, "hello doctor", env.Text)
	assert.Equal(t, "Pat", env.Sender)

	// a transcript line injected by the pipeline reaches both sides
	registry.InjectExternal("c1", models.Envelope{
		Type:   models.EnvelopeTranscript,
		Sender: "Pat",
		Text:   "the pain started yesterday",
	})
	env = readEnv(t, patient)
	assert.Equal(t, models.EnvelopeTranscript, env.Type)
	env = readEnv(t, doctor)
	assert.Equal(t, models.EnvelopeTranscript, env.Type)
	assert.Equal(t, "the pain started yesterday", env.Text)

	// dropping the doctor's socket notifies the patient
	doctor.Close()
	env = readEnv(t, patient)
	assert.Equal(t, models.EnvelopeSystem, env.Type)
	assert.Equal(t, "Dr. Smith left", env.Text)
}

func TestServeSession_RejectsClosedConsultationBeforeUpgrade(t *testing.T) {
	source := newStubSource()
	source.set("c-done", models.StatusCompleted)
	registry := session.NewRegistry(source)
	relay := session.NewRelay(registry)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := session.Participant{UserID: "a", Name: "Pat"}
		if err := session.ServeSession(registry, relay, w, r, "c-done", p); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
