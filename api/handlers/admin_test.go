package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicvault/clinicvault-api/api/handlers"
	"github.com/clinicvault/clinicvault-api/databases/mocks"
	"github.com/clinicvault/clinicvault-api/models"
)

func TestAdminLoginHandlerRejectsUnknownEmail(t *testing.T) {
	body := []byte(`{"email":"nobody@clinicvault.health","password":"hunter2"}`)
	req := httptest.NewRequest("POST", "/api/v1/admin/login", bytes.NewReader(body))

	udb := &mocks.UserDatabase{}
	udb.On("FindOne", mock.Anything, mock.Anything).Return(nil, errors.New("mongo: no documents in result"))

	h := handlers.Admin{UDB: udb}

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AdminLoginHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid credentials")
}

func TestAdminLoginHandlerRejectsWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.DefaultCost)
	body := []byte(`{"email":"root@clinicvault.health","password":"wrong-password"}`)
	req := httptest.NewRequest("POST", "/api/v1/admin/login", bytes.NewReader(body))

	udb := &mocks.UserDatabase{}
	udb.On("FindOne", mock.Anything, mock.Anything).Return(&models.User{
		ID: primitive.NewObjectID().Hex(),
		Details: models.UserDetails{
			Email:    "root@clinicvault.health",
			Password: string(hash),
			Role:     models.RoleAdmin,
		},
	}, nil)

	h := handlers.Admin{UDB: udb}

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AdminLoginHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminLoginHandlerIssuesScopedToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.DefaultCost)
	adminID := primitive.NewObjectID().Hex()
	body := []byte(`{"email":"Root@ClinicVault.health","password":"correct-password"}`)
	req := httptest.NewRequest("POST", "/api/v1/admin/login", bytes.NewReader(body))

	udb := &mocks.UserDatabase{}
	udb.On("FindOne", mock.Anything, mock.Anything).Return(&models.User{
		ID: adminID,
		Details: models.UserDetails{
			Email:    "root@clinicvault.health",
			Name:     "Root",
			Password: string(hash),
			Role:     models.RoleAdmin,
		},
	}, nil)

	h := handlers.Admin{UDB: udb}

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AdminLoginHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Token string `json:"token"`
		Admin struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"admin"`
	}
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, adminID, resp.Admin.ID)

	token, err := jwt.Parse(resp.Token, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	assert.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "admin", claims["scope"])
	assert.Equal(t, adminID, claims["sub"])
}

func TestAddDoctorHandlerRequiresAdmin(t *testing.T) {
	requesterID := primitive.NewObjectID()
	body, _ := json.Marshal(map[string]string{
		"requesterId": requesterID.Hex(),
		"name":        "Dr. Smith",
		"email":       "smith@clinicvault.health",
		"password":    "hunter2",
		"specialty":   "dermatology",
	})
	req := httptest.NewRequest("POST", "/api/v1/admin/doctors", bytes.NewReader(body))

	udb := &mocks.UserDatabase{}
	udb.On("FindOne", mock.Anything, mock.Anything).Return(&models.User{
		ID:      requesterID.Hex(),
		Details: models.UserDetails{Role: models.RoleDoctor},
	}, nil)

	h := handlers.Admin{UDB: udb}

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AddDoctorHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "admin privileges required")
}

func TestAddDoctorHandlerOnboardsDoctor(t *testing.T) {
	requesterID := primitive.NewObjectID()
	body, _ := json.Marshal(map[string]string{
		"requesterId": requesterID.Hex(),
		"name":        "Dr. Smith",
		"email":       "smith@clinicvault.health",
		"password":    "hunter2",
		"specialty":   "dermatology",
	})
	req := httptest.NewRequest("POST", "/api/v1/admin/doctors", bytes.NewReader(body))

	insertedID := primitive.NewObjectID()
	ior := &mocks.InsertOneResultHelper{}
	ior.On("Decode").Return(insertedID)

	var captured models.UserDetails
	udb := &mocks.UserDatabase{}
	// admin lookup by id succeeds, duplicate-email lookup comes back empty
	udb.On("FindOne", mock.Anything, mock.MatchedBy(func(filter interface{}) bool {
		m, ok := filter.(bson.M)
		return ok && m["_id"] != nil
	})).Return(&models.User{
		ID:      requesterID.Hex(),
		Details: models.UserDetails{Name: "Root", Role: models.RoleAdmin},
	}, nil)
	udb.On("FindOne", mock.Anything, mock.MatchedBy(func(filter interface{}) bool {
		m, ok := filter.(bson.M)
		return ok && m["user.email"] != nil
	})).Return(nil, errors.New("mongo: no documents in result"))
	udb.On("InsertOne", mock.Anything, mock.AnythingOfType("models.UserDetails")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(models.UserDetails)
		}).
		Return(ior, nil)

	audit, plog := newAuditRecorder()
	h := handlers.Admin{UDB: udb, Audit: audit}

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.AddDoctorHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), insertedID.Hex())

	assert.Equal(t, models.RoleDoctor, captured.Role)
	assert.Equal(t, models.DoctorOffline, captured.Status)
	assert.Equal(t, "dermatology", captured.Specialty)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(captured.Password), []byte("hunter2")))

	plog.AssertNumberOfCalls(t, "InsertOne", 1)
}

func TestPrivacyLogsHandlerRequiresAdmin(t *testing.T) {
	requesterID := primitive.NewObjectID()
	req := httptest.NewRequest("GET", "/api/v1/admin/privacy-logs?requester_id="+requesterID.Hex(), nil)

	udb := &mocks.UserDatabase{}
	udb.On("FindOne", mock.Anything, mock.Anything).Return(&models.User{
		ID:      requesterID.Hex(),
		Details: models.UserDetails{Role: models.RolePatient},
	}, nil)

	h := handlers.Admin{UDB: udb}

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.PrivacyLogsHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestPrivacyLogsHandlerFiltersByConsultation(t *testing.T) {
	requesterID := primitive.NewObjectID()
	req := httptest.NewRequest("GET", "/api/v1/admin/privacy-logs?requester_id="+requesterID.Hex()+"&consultation_id=abc123", nil)

	udb := &mocks.UserDatabase{}
	udb.On("FindOne", mock.Anything, mock.Anything).Return(&models.User{
		ID:      requesterID.Hex(),
		Details: models.UserDetails{Name: "Root", Role: models.RoleAdmin},
	}, nil)

	pdb := &mocks.PrivacyLogDatabase{}
	pdb.On("Find", mock.Anything, bson.M{"privacyLog.consultationID": "abc123"}).Return([]models.PrivacyLog{
		{Details: models.PrivacyLogDetails{ConsultationID: "abc123", Action: "Viewed Consultation Record"}},
	}, nil)

	h := handlers.Admin{UDB: udb, PDB: pdb}

	rr := httptest.NewRecorder()
	http.HandlerFunc(h.PrivacyLogsHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Viewed Consultation Record")
}
