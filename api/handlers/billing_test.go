package handlers_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/clinicvault/clinicvault-api/api/handlers"
	"github.com/clinicvault/clinicvault-api/databases/mocks"
	"github.com/clinicvault/clinicvault-api/models"
)

func TestCreateCheckoutSessionHandlerBadHex(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/billing/asdf/create-checkout-session", nil)
	req = mux.SetURLVars(req, map[string]string{"consultation_id": "asdf"})

	b := handlers.Billing{}

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.CreateCheckoutSessionHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateCheckoutSessionHandlerRejectsNonPendingVisit(t *testing.T) {
	cID := primitive.NewObjectID()
	req := httptest.NewRequest("POST", "/api/v1/billing/"+cID.Hex()+"/create-checkout-session", nil)
	req = mux.SetURLVars(req, map[string]string{"consultation_id": cID.Hex()})

	cdb := &mocks.ConsultationDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Consultation{
		ID:      cID,
		Details: models.ConsultationDetails{Status: models.StatusActive},
	}, nil)

	b := handlers.Billing{DB: cdb}

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.CreateCheckoutSessionHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "not awaiting payment")
}

func TestVerifyPaymentHandlerIsIdempotentOnceActive(t *testing.T) {
	cID := primitive.NewObjectID()
	body := []byte(`{"requesterId":"` + primitive.NewObjectID().Hex() + `"}`)
	req := httptest.NewRequest("POST", "/api/v1/billing/"+cID.Hex()+"/verify-payment", bytes.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"consultation_id": cID.Hex()})

	cdb := &mocks.ConsultationDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Consultation{
		ID:      cID,
		Details: models.ConsultationDetails{Status: models.StatusActive, PaymentSessionID: "cs_test_123"},
	}, nil)

	b := handlers.Billing{DB: cdb}

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.VerifyPaymentHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status": "active"}`, rr.Body.String())
	cdb.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyPaymentHandlerRequiresCheckoutSession(t *testing.T) {
	cID := primitive.NewObjectID()
	body := []byte(`{"requesterId":"` + primitive.NewObjectID().Hex() + `"}`)
	req := httptest.NewRequest("POST", "/api/v1/billing/"+cID.Hex()+"/verify-payment", bytes.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"consultation_id": cID.Hex()})

	cdb := &mocks.ConsultationDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Consultation{
		ID:      cID,
		Details: models.ConsultationDetails{Status: models.StatusPendingPayment},
	}, nil)

	b := handlers.Billing{DB: cdb}

	rr := httptest.NewRecorder()
	http.HandlerFunc(b.VerifyPaymentHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "no checkout session")
}
