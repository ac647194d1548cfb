package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PrivacyLog holds the structure for the privacy log collection in mongo.
// The collection is append-only: documents are inserted exactly once and are
// never updated or deleted.
type PrivacyLog struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Details PrivacyLogDetails  `json:"privacyLog" bson:"privacyLog"`
	Version int32              `json:"__v" bson:"__v"`
}

// PrivacyLogDetails holds the structure for the inner privacy log structure
// as defined in the privacy log collection in mongo
type PrivacyLogDetails struct {
	ConsultationID string             `json:"consultationID" bson:"consultationID,omitempty"`
	ActorID        string             `json:"actorID" bson:"actorID"`
	ActorName      string             `json:"actorName" bson:"actorName"`
	Action         string             `json:"action" bson:"action"`
	TargetData     string             `json:"targetData" bson:"targetData"`
	Purpose        string             `json:"purpose" bson:"purpose"`
	Timestamp      primitive.DateTime `json:"timestamp" bson:"timestamp"`
}
