package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicvault/clinicvault-api/api"
	"github.com/clinicvault/clinicvault-api/config"
	"github.com/clinicvault/clinicvault-api/databases"
	"github.com/clinicvault/clinicvault-api/models"
	"github.com/clinicvault/clinicvault-api/privacy"
)

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type adminLoginResponse struct {
	Token string `json:"token"`
	Admin struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"admin"`
}

// Admin represents the admin handler
type Admin struct {
	UDB   databases.UserDatabase
	PDB   databases.PrivacyLogDatabase
	Audit *privacy.Audit
}

// AdminLoginHandler handles admin login via email/password and returns a JWT
func (h Admin) AdminLoginHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid request"})
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "email and password required"})
		return
	}

	admin, err := h.UDB.FindOne(r.Context(), bson.M{"user.email": email, "user.role": models.RoleAdmin})
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid credentials"})
		return
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(admin.Details.Password), []byte(req.Password)); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid credentials"})
		return
	}

	jwtSecret := []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "server misconfigured"})
		return
	}

	claims := jwt.MapClaims{
		"sub":   admin.ID,
		"email": admin.Details.Email,
		"scope": "admin",
		"typ":   "access",
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(jwtSecret)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "token generation failed"})
		return
	}

	var resp adminLoginResponse
	resp.Token = signed
	resp.Admin.ID = admin.ID
	resp.Admin.Email = admin.Details.Email
	resp.Admin.Name = admin.Details.Name

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

type addDoctorRequest struct {
	RequesterID string `json:"requesterId"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Specialty   string `json:"specialty"`
}

// AddDoctorHandler onboards a new doctor account. Only admins can call it,
// and the staffing change lands in the privacy log.
func (h Admin) AddDoctorHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req addDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" || req.Specialty == "" {
		config.ErrorStatus("name, email, password and specialty are required", http.StatusBadRequest, w, fmt.Errorf("missing required fields"))
		return
	}

	admin, err := h.requireAdmin(r.Context(), req.RequesterID)
	if err != nil {
		config.ErrorStatus("admin privileges required", http.StatusForbidden, w, err)
		return
	}

	existingUser, _ := h.UDB.FindOne(r.Context(), bson.M{"user.email": req.Email})
	if existingUser != nil {
		config.ErrorStatus("email already exists", http.StatusConflict, w, fmt.Errorf("duplicate email"))
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		config.ErrorStatus("failed to hash password", http.StatusInternalServerError, w, err)
		return
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	details := models.UserDetails{
		Email:     req.Email,
		Name:      req.Name,
		Password:  string(hashedPassword),
		Role:      models.RoleDoctor,
		Specialty: req.Specialty,
		Status:    models.DoctorOffline,
		CreatedAt: now,
		UpdatedAt: now,
	}

	res, err := h.UDB.InsertOne(r.Context(), details)
	if err != nil {
		config.ErrorStatus("failed to insert doctor", http.StatusInternalServerError, w, err)
		return
	}

	if err := h.Audit.Record(r.Context(), admin, "Onboarded New Doctor", "Staff: "+req.Name, "Staff Management", ""); err != nil {
		config.ErrorStatus("failed to record privacy log", http.StatusInternalServerError, w, err)
		return
	}

	newID := ""
	if oid, ok := res.Decode().(primitive.ObjectID); ok {
		newID = oid.Hex()
	}
	w.WriteHeader(http.StatusCreated)
	b, _ := json.Marshal(map[string]string{"_id": newID})
	w.Write(b)
}

// PrivacyLogsHandler returns privacy log entries, optionally scoped to one
// consultation. Read-only; there is no write surface for the audit trail
// outside privacy.Audit.
func (h Admin) PrivacyLogsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	requesterID := r.URL.Query().Get("requester_id")
	if _, err := h.requireAdmin(r.Context(), requesterID); err != nil {
		config.ErrorStatus("admin privileges required", http.StatusForbidden, w, err)
		return
	}

	filter := bson.M{}
	if consultationID := r.URL.Query().Get("consultation_id"); consultationID != "" {
		filter["privacyLog.consultationID"] = consultationID
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := h.PDB.Find(ctx, filter)
	if err != nil {
		config.ErrorStatus("failed to get privacy logs", http.StatusInternalServerError, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.PrivacyLog{}
	}

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func (h Admin) requireAdmin(ctx context.Context, requesterID string) (privacy.Actor, error) {
	if requesterID == "" {
		return privacy.Actor{}, fmt.Errorf("requester id is required")
	}
	uID, err := primitive.ObjectIDFromHex(requesterID)
	if err != nil {
		return privacy.Actor{}, err
	}
	user, err := h.UDB.FindOne(ctx, bson.M{"_id": uID})
	if err != nil {
		return privacy.Actor{}, err
	}
	if user.Details.Role != models.RoleAdmin {
		return privacy.Actor{}, fmt.Errorf("user %v is not an admin", requesterID)
	}
	return privacy.Actor{ID: requesterID, Name: user.Details.DisplayName()}, nil
}
