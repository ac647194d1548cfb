package models

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConsultationStatus is the lifecycle status of a consultation
type ConsultationStatus string

// The consultation lifecycle: a consultation is created awaiting payment,
// becomes active once billing succeeds, and ends completed or cancelled.
// Completed and cancelled are terminal.
const (
	StatusPendingPayment ConsultationStatus = "pending_payment"
	StatusActive         ConsultationStatus = "active"
	StatusCompleted      ConsultationStatus = "completed"
	StatusCancelled      ConsultationStatus = "cancelled"
)

// ErrInvalidTransition is returned when a status change is requested that the
// consultation lifecycle does not allow. Correct callers never trigger it, so
// every occurrence is logged as a bug signal.
var ErrInvalidTransition = errors.New("invalid consultation status transition")

// Transition reports whether moving from s to target is a real state change.
// Requesting the status the consultation is already in is an idempotent no-op
// (false, nil). Any move out of a terminal state, or along an edge the
// lifecycle does not define, returns ErrInvalidTransition.
func (s ConsultationStatus) Transition(target ConsultationStatus) (bool, error) {
	if s == target {
		return false, nil
	}
	switch s {
	case StatusPendingPayment:
		if target == StatusActive || target == StatusCancelled {
			return true, nil
		}
	case StatusActive:
		if target == StatusCompleted || target == StatusCancelled {
			return true, nil
		}
	}
	return false, ErrInvalidTransition
}

// Terminal reports whether the status can never change again
func (s ConsultationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Consultation holds the structure for the consultation collection in mongo
type Consultation struct {
	ID      primitive.ObjectID  `json:"_id" bson:"_id"`
	Details ConsultationDetails `json:"consultation" bson:"consultation"`
	Version int32               `json:"__v" bson:"__v"`
}

// ConsultationDetails holds the structure for the inner consultation
// structure as defined in the consultation collection in mongo. The three
// *Enc fields are PHI and only ever hold ciphertext tokens produced by the
// privacy cipher; plaintext never reaches this struct on a write path.
type ConsultationDetails struct {
	PatientID        string             `json:"patientID" bson:"patientID"`
	DoctorID         string             `json:"doctorID" bson:"doctorID"`
	Specialty        string             `json:"specialty" bson:"specialty"`
	Status           ConsultationStatus `json:"status" bson:"status"`
	SymptomsEnc      string             `json:"symptomsEnc" bson:"symptomsEnc"`
	NotesEnc         string             `json:"notesEnc" bson:"notesEnc"`
	TranscriptEnc    string             `json:"transcriptEnc" bson:"transcriptEnc"`
	PaymentSessionID string             `json:"paymentSessionID" bson:"paymentSessionID"`
	CreatedAt        primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt        primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// ConsultationView is the decrypted representation served to an authorized
// participant. It exists only in process memory for the life of a single
// request and is never persisted.
type ConsultationView struct {
	ID         string             `json:"_id"`
	PatientID  string             `json:"patientID"`
	DoctorID   string             `json:"doctorID"`
	Specialty  string             `json:"specialty"`
	Status     ConsultationStatus `json:"status"`
	Symptoms   string             `json:"symptoms"`
	Notes      string             `json:"notes"`
	Transcript string             `json:"transcript"`
}
