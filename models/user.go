package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// User roles
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// Doctor availability statuses
const (
	DoctorOffline = "offline"
	DoctorOnline  = "online"
	DoctorBusy    = "busy"
)

// User holds the structure for the user collection in mongo
type User struct {
	ID      string      `json:"_id" bson:"_id"`
	Details UserDetails `json:"user" bson:"user"`
	Version int32       `json:"__v" bson:"__v"`
}

// UserDetails holds the structure for the inner user structure as defined in
// the user collection in mongo. Specialty and Status are only meaningful for
// doctors.
type UserDetails struct {
	Email     string             `json:"email" bson:"email"`
	Name      string             `json:"name" bson:"name"`
	Password  string             `json:"password" bson:"password"`
	Role      string             `json:"role" bson:"role"`
	Specialty string             `json:"specialty" bson:"specialty"`
	Status    string             `json:"status" bson:"status"`
	CreatedAt primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// DisplayName renders the actor display string recorded in privacy log
// entries, eg "Dr. Smith (doctor)".
func (u UserDetails) DisplayName() string {
	return u.Name + " (" + u.Role + ")"
}
