package handlers

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicvault/clinicvault-api/api"
	"github.com/clinicvault/clinicvault-api/config"
	"github.com/clinicvault/clinicvault-api/databases"
	"github.com/clinicvault/clinicvault-api/models"
	"github.com/clinicvault/clinicvault-api/privacy"
)

// User exported for testing purposes
type User struct {
	DB    databases.UserDatabase
	Audit *privacy.Audit
}

// UserHandler returns a user given a userID
func (u User) UserHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	zap.S().Debugf("user_id: %v", userID)

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := u.DB.FindOne(context.Background(), bson.M{"_id": uID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return
	}

	// never leak the password hash through the read path
	dbResp.Details.Password = ""

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UserCreateHandler registers a patient account
func (u User) UserCreateHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var user models.UserDetails
	err := json.NewDecoder(r.Body).Decode(&user)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	// check if the user already exists
	existingUser, _ := u.DB.FindOne(context.Background(), bson.M{"user.email": user.Email})
	if existingUser != nil {
		config.ErrorStatus("email already exists", http.StatusConflict, w, fmt.Errorf("duplicate email"))
		return
	}

	// hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		config.ErrorStatus("failed to hash password", http.StatusInternalServerError, w, err)
		return
	}
	user.Password = string(hashedPassword)

	// self-service signup only creates patients; doctors are onboarded by an admin
	user.Role = models.RolePatient
	user.Specialty = ""
	user.Status = ""
	now := primitive.NewDateTimeFromTime(time.Now())
	user.CreatedAt = now
	user.UpdatedAt = now

	res, err := u.DB.InsertOne(context.Background(), user)
	if err != nil {
		config.ErrorStatus("failed to insert user", http.StatusInternalServerError, w, err)
		return
	}

	newID := ""
	if oid, ok := res.Decode().(primitive.ObjectID); ok {
		newID = oid.Hex()
	}
	actor := privacy.Actor{ID: newID, Name: user.DisplayName()}
	if err := u.Audit.Record(context.Background(), actor, "Registered", "Patient Profile", "Onboarding", ""); err != nil {
		config.ErrorStatus("failed to record privacy log", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	b, _ := json.Marshal(map[string]string{"_id": newID})
	w.Write(b)
}

// UserCheckEmailHandler checks if an email exists using POST
func (u User) UserCheckEmailHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var user models.UserDetails
	err := json.NewDecoder(r.Body).Decode(&user)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	// check if the user already exists
	existingUser, _ := u.DB.FindOne(context.Background(), bson.M{"user.email": user.Email})
	if existingUser != nil {
		config.ErrorStatus("email already exists", http.StatusConflict, w, fmt.Errorf("duplicate email"))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// UserLoginHandler verifies credentials passed via basic auth
func (u User) UserLoginHandler(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if ok {
		usernameHash := sha256.Sum256([]byte(email))

		// fetch email & pass from db
		dbEmailResp, err := u.DB.Find(context.Background(), bson.M{"user.email": email})
		if err != nil {
			config.ErrorStatus("failed to get user by email", http.StatusNotFound, w, err)
			return
		}
		if len(dbEmailResp) == 0 {
			config.ErrorStatus("no matching email found", http.StatusUnauthorized, w, fmt.Errorf("no matching email found"))
			return
		}

		expectedUsernameHash := sha256.Sum256([]byte(dbEmailResp[0].Details.Email))
		usernameMatch := subtle.ConstantTimeCompare(usernameHash[:], expectedUsernameHash[:]) == 1

		err = bcrypt.CompareHashAndPassword([]byte(dbEmailResp[0].Details.Password), []byte(password))
		if err != nil {
			config.ErrorStatus("failed to compare password", http.StatusUnauthorized, w, err)
			return
		}

		if usernameMatch {
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)

}

type availabilityRequest struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// SetAvailabilityHandler updates a doctor's availability status
func (u User) SetAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	switch req.Status {
	case models.DoctorOffline, models.DoctorOnline, models.DoctorBusy:
	default:
		config.ErrorStatus("unknown availability status", http.StatusBadRequest, w, fmt.Errorf("status %q is not recognized", req.Status))
		return
	}

	uID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	user, err := u.DB.FindOne(context.Background(), bson.M{"_id": uID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return
	}
	if user.Details.Role != models.RoleDoctor {
		config.ErrorStatus("availability only applies to doctors", http.StatusForbidden, w, fmt.Errorf("user %v is not a doctor", req.UserID))
		return
	}

	_, err = u.DB.UpdateOne(context.Background(), bson.M{"_id": uID}, bson.M{
		"$set": bson.M{
			"user.status":    req.Status,
			"user.updatedAt": primitive.NewDateTimeFromTime(time.Now()),
		},
	})
	if err != nil {
		config.ErrorStatus("failed to update availability", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DoctorsHandler returns available doctors, optionally filtered by specialty
func (u User) DoctorsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	filter := bson.M{"user.role": models.RoleDoctor, "user.status": models.DoctorOnline}
	if specialty := r.URL.Query().Get("specialty"); specialty != "" {
		filter["user.specialty"] = specialty
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := u.DB.Find(ctx, filter)
	if err != nil {
		config.ErrorStatus("failed to get doctors", http.StatusInternalServerError, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.User{}
	}
	for i := range dbResp {
		dbResp[i].Details.Password = ""
	}

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// actorFromUserID resolves the acting user into the identity stamped on
// privacy log entries
func actorFromUserID(ctx context.Context, db databases.UserDatabase, userID string) (privacy.Actor, error) {
	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return privacy.Actor{}, err
	}
	user, err := db.FindOne(ctx, bson.M{"_id": uID})
	if err != nil {
		return privacy.Actor{}, err
	}
	return privacy.Actor{ID: userID, Name: user.Details.DisplayName()}, nil
}
