package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/clinicvault/clinicvault-api/config"
	"github.com/clinicvault/clinicvault-api/databases"
	"github.com/clinicvault/clinicvault-api/session"
)

// Session exported for testing purposes
type Session struct {
	Registry *session.Registry
	Relay    *session.Relay
	UDB      databases.UserDatabase
}

// ConsultationSessionHandler upgrades the connection to a websocket and
// attaches the caller to the consultation room. Joins are refused before the
// upgrade so the client gets a proper HTTP status instead of a dropped
// socket.
func (s Session) ConsultationSessionHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	consultationID := vars["consultation_id"]
	userID := vars["user_id"]

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}
	user, err := s.UDB.FindOne(r.Context(), bson.M{"_id": uID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return
	}

	p := session.Participant{
		UserID: userID,
		Name:   user.Details.Name,
		Role:   user.Details.Role,
	}

	err = session.ServeSession(s.Registry, s.Relay, w, r, consultationID, p)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrRoomFull):
		config.ErrorStatus("consultation room is full", http.StatusConflict, w, err)
	case errors.Is(err, session.ErrSessionClosed):
		config.ErrorStatus("consultation session is not open", http.StatusForbidden, w, err)
	default:
		config.ErrorStatus("failed to join consultation session", http.StatusInternalServerError, w, err)
	}
}
