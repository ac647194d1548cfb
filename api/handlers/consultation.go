package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/clinicvault/clinicvault-api/api"
	"github.com/clinicvault/clinicvault-api/config"
	"github.com/clinicvault/clinicvault-api/databases"
	"github.com/clinicvault/clinicvault-api/models"
	"github.com/clinicvault/clinicvault-api/privacy"
	"github.com/clinicvault/clinicvault-api/session"
	templates "github.com/clinicvault/clinicvault-api/templates/html"
)

// Consultation exported for testing purposes
type Consultation struct {
	DB       databases.ConsultationDatabase
	UDB      databases.UserDatabase
	Cipher   *privacy.Cipher
	Audit    *privacy.Audit
	Registry *session.Registry
}

type createConsultationRequest struct {
	PatientID string `json:"patientId"`
	DoctorID  string `json:"doctorId"`
	Specialty string `json:"specialty"`
	Symptoms  string `json:"symptoms"`
}

// CreateConsultationHandler starts a triage request. The symptoms text is
// encrypted before it touches the database and the new consultation awaits
// payment before the session can open.
func (c Consultation) CreateConsultationHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var req createConsultationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	if req.PatientID == "" || req.DoctorID == "" || req.Symptoms == "" {
		config.ErrorStatus("patientId, doctorId and symptoms are required", http.StatusBadRequest, w, fmt.Errorf("missing required fields"))
		return
	}

	actor, err := actorFromUserID(r.Context(), c.UDB, req.PatientID)
	if err != nil {
		config.ErrorStatus("failed to get patient by ID", http.StatusNotFound, w, err)
		return
	}

	symptomsEnc, err := c.Cipher.Encrypt(req.Symptoms)
	if err != nil {
		config.ErrorStatus("failed to encrypt symptoms", http.StatusInternalServerError, w, err)
		return
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	details := models.ConsultationDetails{
		PatientID:   req.PatientID,
		DoctorID:    req.DoctorID,
		Specialty:   req.Specialty,
		Status:      models.StatusPendingPayment,
		SymptomsEnc: symptomsEnc,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	res, err := c.DB.InsertOne(r.Context(), details)
	if err != nil {
		config.ErrorStatus("failed to insert consultation", http.StatusInternalServerError, w, err)
		return
	}

	newID := ""
	if oid, ok := res.Decode().(primitive.ObjectID); ok {
		newID = oid.Hex()
	}

	if err := c.Audit.Record(r.Context(), actor, "Started Triage", "Symptoms Intake", "Care Delivery", newID); err != nil {
		config.ErrorStatus("failed to record privacy log", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	b, _ := json.Marshal(map[string]string{"_id": newID, "status": string(models.StatusPendingPayment)})
	w.Write(b)
}

// ConsultationHandler returns the decrypted consultation record to an
// authorized participant. Every hit on this handler lands one privacy log
// entry because PHI is decrypted to serve it.
func (c Consultation) ConsultationHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	consultationID := mux.Vars(r)["consultation_id"]
	requesterID := r.URL.Query().Get("requester_id")

	cID, err := primitive.ObjectIDFromHex(consultationID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := c.DB.FindOne(r.Context(), bson.M{"_id": cID})
	if err != nil {
		config.ErrorStatus("failed to get consultation by ID", http.StatusNotFound, w, err)
		return
	}

	actor, _, err := c.authorizeParticipant(r.Context(), requesterID, dbResp)
	if err != nil {
		config.ErrorStatus("requester is not part of this consultation", http.StatusForbidden, w, err)
		return
	}

	// audit before the plaintext leaves the process; a failed audit write
	// fails the read
	if err := c.Audit.Record(r.Context(), actor, "Viewed Consultation Record", "Symptoms, Notes, Transcript", "Care Delivery", consultationID); err != nil {
		config.ErrorStatus("failed to record privacy log", http.StatusInternalServerError, w, err)
		return
	}

	view := models.ConsultationView{
		ID:         dbResp.ID.Hex(),
		PatientID:  dbResp.Details.PatientID,
		DoctorID:   dbResp.Details.DoctorID,
		Specialty:  dbResp.Details.Specialty,
		Status:     dbResp.Details.Status,
		Symptoms:   c.Cipher.Decrypt(dbResp.Details.SymptomsEnc),
		Notes:      c.Cipher.Decrypt(dbResp.Details.NotesEnc),
		Transcript: c.Cipher.Decrypt(dbResp.Details.TranscriptEnc),
	}

	b, err := json.Marshal(view)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

type notesRequest struct {
	RequesterID string `json:"requesterId"`
	Notes       string `json:"notes"`
}

// UpdateNotesHandler replaces the doctor's private clinical notes
func (c Consultation) UpdateNotesHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	consultationID := mux.Vars(r)["consultation_id"]

	var req notesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	cID, err := primitive.ObjectIDFromHex(consultationID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := c.DB.FindOne(r.Context(), bson.M{"_id": cID})
	if err != nil {
		config.ErrorStatus("failed to get consultation by ID", http.StatusNotFound, w, err)
		return
	}

	if req.RequesterID != dbResp.Details.DoctorID {
		config.ErrorStatus("only the treating doctor can write notes", http.StatusForbidden, w, fmt.Errorf("requester %v is not the treating doctor", req.RequesterID))
		return
	}

	actor, err := actorFromUserID(r.Context(), c.UDB, req.RequesterID)
	if err != nil {
		config.ErrorStatus("failed to get requester by ID", http.StatusNotFound, w, err)
		return
	}

	notesEnc, err := c.Cipher.Encrypt(req.Notes)
	if err != nil {
		config.ErrorStatus("failed to encrypt notes", http.StatusInternalServerError, w, err)
		return
	}

	_, err = c.DB.UpdateOne(r.Context(), bson.M{"_id": cID}, bson.M{
		"$set": bson.M{
			"consultation.notesEnc":  notesEnc,
			"consultation.updatedAt": primitive.NewDateTimeFromTime(time.Now()),
		},
	})
	if err != nil {
		config.ErrorStatus("failed to update notes", http.StatusInternalServerError, w, err)
		return
	}

	if err := c.Audit.Record(r.Context(), actor, "Updated Clinical Notes", "Clinical Notes", "Care Documentation", consultationID); err != nil {
		config.ErrorStatus("failed to record privacy log", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type transitionRequest struct {
	RequesterID string `json:"requesterId"`
}

// CompleteConsultationHandler closes out an active visit and notifies the
// patient by email
func (c Consultation) CompleteConsultationHandler(w http.ResponseWriter, r *http.Request) {
	c.transitionHandler(w, r, models.StatusCompleted, "Completed Consultation", "consultation completed")
}

// CancelConsultationHandler cancels a pending or active visit
func (c Consultation) CancelConsultationHandler(w http.ResponseWriter, r *http.Request) {
	c.transitionHandler(w, r, models.StatusCancelled, "Cancelled Consultation", "consultation cancelled")
}

func (c Consultation) transitionHandler(w http.ResponseWriter, r *http.Request, target models.ConsultationStatus, action, closeReason string) {
	w.Header().Set("Content-Type", "application/json")
	consultationID := mux.Vars(r)["consultation_id"]

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	cID, err := primitive.ObjectIDFromHex(consultationID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := c.DB.FindOne(r.Context(), bson.M{"_id": cID})
	if err != nil {
		config.ErrorStatus("failed to get consultation by ID", http.StatusNotFound, w, err)
		return
	}

	actor, _, err := c.authorizeParticipant(r.Context(), req.RequesterID, dbResp)
	if err != nil {
		config.ErrorStatus("requester is not part of this consultation", http.StatusForbidden, w, err)
		return
	}

	changed, err := dbResp.Details.Status.Transition(target)
	if err != nil {
		zap.S().Errorw("rejected consultation status transition",
			"consultationID", consultationID,
			"from", dbResp.Details.Status,
			"to", target,
		)
		config.ErrorStatus("invalid status transition", http.StatusConflict, w, err)
		return
	}
	if !changed {
		// already in the requested state
		w.WriteHeader(http.StatusOK)
		return
	}

	updated, err := c.DB.UpdateOne(r.Context(), bson.M{"_id": cID}, bson.M{
		"$set": bson.M{
			"consultation.status":    target,
			"consultation.updatedAt": primitive.NewDateTimeFromTime(time.Now()),
		},
	})
	if err != nil {
		config.ErrorStatus("failed to update consultation status", http.StatusInternalServerError, w, err)
		return
	}

	if err := c.Audit.Record(r.Context(), actor, action, "Consultation Lifecycle", "Care Delivery", consultationID); err != nil {
		config.ErrorStatus("failed to record privacy log", http.StatusInternalServerError, w, err)
		return
	}

	// a closed consultation never hosts a live session
	if c.Registry != nil {
		c.Registry.CloseRoom(consultationID, closeReason)
	}

	if target == models.StatusCompleted {
		go c.sendVisitSummaryEmail(updated.Details.PatientID)
	}

	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(map[string]string{"_id": consultationID, "status": string(target)})
	w.Write(b)
}

// consultationListItem is the metadata-only shape for list views; PHI fields
// stay out so no privacy log entry is owed
type consultationListItem struct {
	ID        string                    `json:"_id"`
	PatientID string                    `json:"patientID"`
	DoctorID  string                    `json:"doctorID"`
	Specialty string                    `json:"specialty"`
	Status    models.ConsultationStatus `json:"status"`
	CreatedAt primitive.DateTime        `json:"createdAt"`
}

// ConsultationsByUserHandler lists consultations where the user is the
// patient or the doctor
func (c Consultation) ConsultationsByUserHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	userID := mux.Vars(r)["user_id"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := c.DB.Find(ctx, bson.M{"$or": []bson.M{
		{"consultation.patientID": userID},
		{"consultation.doctorID": userID},
	}})
	if err != nil {
		config.ErrorStatus("failed to get consultations by user ID", http.StatusInternalServerError, w, err)
		return
	}

	items := make([]consultationListItem, 0, len(dbResp))
	for _, consultation := range dbResp {
		items = append(items, consultationListItem{
			ID:        consultation.ID.Hex(),
			PatientID: consultation.Details.PatientID,
			DoctorID:  consultation.Details.DoctorID,
			Specialty: consultation.Details.Specialty,
			Status:    consultation.Details.Status,
			CreatedAt: consultation.Details.CreatedAt,
		})
	}

	b, err := json.Marshal(items)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// authorizeParticipant checks that the requester is the patient, the doctor,
// or an admin, and resolves the privacy log actor identity
func (c Consultation) authorizeParticipant(ctx context.Context, requesterID string, consultation *models.Consultation) (privacy.Actor, *models.User, error) {
	if requesterID == "" {
		return privacy.Actor{}, nil, fmt.Errorf("requester_id is required")
	}
	uID, err := primitive.ObjectIDFromHex(requesterID)
	if err != nil {
		return privacy.Actor{}, nil, err
	}
	user, err := c.UDB.FindOne(ctx, bson.M{"_id": uID})
	if err != nil {
		return privacy.Actor{}, nil, err
	}
	if requesterID != consultation.Details.PatientID &&
		requesterID != consultation.Details.DoctorID &&
		user.Details.Role != models.RoleAdmin {
		return privacy.Actor{}, nil, fmt.Errorf("user %v is not a participant", requesterID)
	}
	return privacy.Actor{ID: requesterID, Name: user.Details.DisplayName()}, user, nil
}

func (c Consultation) sendVisitSummaryEmail(patientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pID, err := primitive.ObjectIDFromHex(patientID)
	if err != nil {
		return
	}
	patient, err := c.UDB.FindOne(ctx, bson.M{"_id": pID})
	if err != nil || patient.Details.Email == "" {
		return
	}

	subject := "Your Consultation is Complete - ClinicVault"
	// no clinical content in the email body; the record stays behind auth
	body := "Hi " + patient.Details.Name + ",\n\nYour consultation has been completed. " +
		"Your doctor's summary and the session transcript are available in your ClinicVault dashboard.\n\n" +
		"Thank you for choosing ClinicVault."
	htmlContent := templates.RenderGenericEmail(subject, body)

	from := mail.NewEmail("ClinicVault", "no-reply@clinicvault.health")
	to := mail.NewEmail(patient.Details.Name, patient.Details.Email)
	message := mail.NewSingleEmail(from, subject, to, body, htmlContent)
	client := sendgrid.NewSendClient(os.Getenv("SENDGRID_API_KEY"))
	response, err := client.Send(message)
	if err != nil {
		zap.S().Errorw("failed to send visit summary email", "error", err, "patientId", patientID)
		return
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
	}
}
