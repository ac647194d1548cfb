package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/clinicvault/clinicvault-api/config"
	"github.com/clinicvault/clinicvault-api/databases"
	"github.com/clinicvault/clinicvault-api/models"
	"github.com/clinicvault/clinicvault-api/privacy"
	"github.com/clinicvault/clinicvault-api/session"
	"github.com/clinicvault/clinicvault-api/transcription"
)

// maxClipBytes caps a single uploaded audio chunk
const maxClipBytes = 16 << 20

// Transcription exported for testing purposes
type Transcription struct {
	Registry    *session.Registry
	DB          databases.ConsultationDatabase
	UDB         databases.UserDatabase
	Cipher      *privacy.Cipher
	Audit       *privacy.Audit
	Transcriber *transcription.Transcriber
}

// UploadAudioHandler accepts a short audio clip from a session participant
// and queues it for transcription. The caller gets a 202 immediately; the
// transcript line is pushed into the live session and appended to the
// consultation record when (and if) the model produces usable text.
func (t Transcription) UploadAudioHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	consultationID := mux.Vars(r)["consultation_id"]

	cID, err := primitive.ObjectIDFromHex(consultationID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := t.DB.FindOne(r.Context(), bson.M{"_id": cID})
	if err != nil {
		config.ErrorStatus("failed to get consultation by ID", http.StatusNotFound, w, err)
		return
	}
	if dbResp.Details.Status != models.StatusActive {
		config.ErrorStatus("consultation session is not open", http.StatusForbidden, w, fmt.Errorf("consultation %v is %v", consultationID, dbResp.Details.Status))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxClipBytes)
	if err := r.ParseMultipartForm(maxClipBytes); err != nil {
		config.ErrorStatus("failed to parse multipart form", http.StatusBadRequest, w, err)
		return
	}

	speakerID := r.FormValue("speakerId")
	if speakerID != dbResp.Details.PatientID && speakerID != dbResp.Details.DoctorID {
		config.ErrorStatus("speaker is not part of this consultation", http.StatusForbidden, w, fmt.Errorf("user %v is not a participant", speakerID))
		return
	}

	speaker, err := actorFromUserID(r.Context(), t.UDB, speakerID)
	if err != nil {
		config.ErrorStatus("failed to get speaker by ID", http.StatusNotFound, w, err)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		config.ErrorStatus("audio file is required", http.StatusBadRequest, w, err)
		return
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".webm"
	}
	tmp, err := os.CreateTemp("", "clinicvault-clip-*"+ext)
	if err != nil {
		config.ErrorStatus("failed to create temp file", http.StatusInternalServerError, w, err)
		return
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		config.ErrorStatus("failed to store audio clip", http.StatusInternalServerError, w, err)
		return
	}
	tmp.Close()

	go t.process(consultationID, speaker, tmp.Name())

	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status": "processing"}`))
}

// process runs off the request goroutine. The transcriber owns the temp
// file from here and removes it whatever happens.
func (t Transcription) process(consultationID string, speaker privacy.Actor, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	text := t.Transcriber.Transcribe(ctx, path)
	if text == "" {
		return
	}

	// push the line to whoever is still in the room; a torn-down room is
	// fine, the durable record below is the source of truth
	t.Registry.InjectExternal(consultationID, models.Envelope{
		Type:   models.EnvelopeTranscript,
		Sender: speaker.Name,
		Text:   text,
	})

	if err := t.appendTranscript(ctx, consultationID, speaker, text); err != nil {
		zap.S().Errorw("failed to append transcript line",
			"consultationID", consultationID,
			"error", err,
		)
	}
}

// appendTranscript decrypts the stored transcript, appends the new line and
// writes back the re-encrypted blob
func (t Transcription) appendTranscript(ctx context.Context, consultationID string, speaker privacy.Actor, text string) error {
	cID, err := primitive.ObjectIDFromHex(consultationID)
	if err != nil {
		return err
	}
	dbResp, err := t.DB.FindOne(ctx, bson.M{"_id": cID})
	if err != nil {
		return err
	}

	transcript := t.Cipher.Decrypt(dbResp.Details.TranscriptEnc)
	line := speaker.Name + ": " + text
	if transcript == "" {
		transcript = line
	} else {
		transcript = transcript + "\n" + line
	}

	transcriptEnc, err := t.Cipher.Encrypt(transcript)
	if err != nil {
		return err
	}

	_, err = t.DB.UpdateOne(ctx, bson.M{"_id": cID}, bson.M{
		"$set": bson.M{
			"consultation.transcriptEnc": transcriptEnc,
			"consultation.updatedAt":     primitive.NewDateTimeFromTime(time.Now()),
		},
	})
	if err != nil {
		return err
	}

	return t.Audit.Record(ctx, speaker, "Appended Session Transcript", "Session Transcript", "Clinical Record Keeping", consultationID)
}
