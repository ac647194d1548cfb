package privacy

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/clinicvault/clinicvault-api/databases"
	"github.com/clinicvault/clinicvault-api/models"
)

// Actor identifies who touched PHI for the audit trail
type Actor struct {
	ID   string
	Name string
}

// Audit appends immutable privacy log entries. Every read or write of a PHI
// field must call Record on the same request path, before the response that
// exposed or changed the data is written; callers must treat a Record error
// as a failure of the whole operation.
type Audit struct {
	DB databases.PrivacyLogDatabase
}

// NewAudit initializes an audit writer over the privacy log collection
func NewAudit(db databases.PrivacyLogDatabase) *Audit {
	return &Audit{DB: db}
}

// Record appends one privacy log entry. consultationID may be empty for
// events not tied to a consultation, eg staff onboarding.
func (a *Audit) Record(ctx context.Context, actor Actor, action, target, purpose, consultationID string) error {
	details := models.PrivacyLogDetails{
		ConsultationID: consultationID,
		ActorID:        actor.ID,
		ActorName:      actor.Name,
		Action:         action,
		TargetData:     target,
		Purpose:        purpose,
		Timestamp:      primitive.NewDateTimeFromTime(time.Now().UTC()),
	}
	_, err := a.DB.InsertOne(ctx, details)
	if err != nil {
		zap.S().Errorw("failed to append privacy log entry",
			"action", action,
			"consultationID", consultationID,
			"error", err,
		)
		return err
	}
	return nil
}
