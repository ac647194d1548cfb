package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/clinicvault/clinicvault-api/config"
	"github.com/clinicvault/clinicvault-api/databases"
	"github.com/clinicvault/clinicvault-api/models"
	"github.com/clinicvault/clinicvault-api/privacy"
)

// consultationFeeCents is the flat fee charged per consultation
const consultationFeeCents = 4900

// Billing exported for testing purposes
type Billing struct {
	DB     databases.ConsultationDatabase
	UDB    databases.UserDatabase
	Audit  *privacy.Audit
	Config config.Config
}

// CreateCheckoutSessionHandler creates a stripe checkout session for a
// consultation awaiting payment and returns the hosted payment URL
func (b Billing) CreateCheckoutSessionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	consultationID := mux.Vars(r)["consultation_id"]

	cID, err := primitive.ObjectIDFromHex(consultationID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := b.DB.FindOne(r.Context(), bson.M{"_id": cID})
	if err != nil {
		config.ErrorStatus("failed to get consultation by ID", http.StatusNotFound, w, err)
		return
	}
	if dbResp.Details.Status != models.StatusPendingPayment {
		config.ErrorStatus("consultation is not awaiting payment", http.StatusConflict, w, fmt.Errorf("consultation %v is %v", consultationID, dbResp.Details.Status))
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("usd"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Telehealth Consultation - " + dbResp.Details.Specialty),
					},
					UnitAmount: stripe.Int64(consultationFeeCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(consultationID),
		SuccessURL:        stripe.String(b.Config.BaseURL + "/api/v1/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(b.Config.BaseURL + "/api/v1/cancel"),
	}

	cs, err := checkoutsession.New(params)
	if err != nil {
		config.ErrorStatus("failed to create checkout session", http.StatusInternalServerError, w, err)
		return
	}

	_, err = b.DB.UpdateOne(r.Context(), bson.M{"_id": cID}, bson.M{
		"$set": bson.M{
			"consultation.paymentSessionID": cs.ID,
			"consultation.updatedAt":        primitive.NewDateTimeFromTime(time.Now()),
		},
	})
	if err != nil {
		config.ErrorStatus("failed to store checkout session", http.StatusInternalServerError, w, err)
		return
	}

	resp, _ := json.Marshal(map[string]string{"sessionId": cs.ID, "url": cs.URL})
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}

type verifyPaymentRequest struct {
	RequesterID string `json:"requesterId"`
}

// VerifyPaymentHandler confirms payment with stripe and activates the
// consultation. Calling it again after activation is a no-op.
func (b Billing) VerifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	consultationID := mux.Vars(r)["consultation_id"]

	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	cID, err := primitive.ObjectIDFromHex(consultationID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := b.DB.FindOne(r.Context(), bson.M{"_id": cID})
	if err != nil {
		config.ErrorStatus("failed to get consultation by ID", http.StatusNotFound, w, err)
		return
	}

	if dbResp.Details.Status == models.StatusActive {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "active"}`))
		return
	}
	if dbResp.Details.PaymentSessionID == "" {
		config.ErrorStatus("no checkout session for consultation", http.StatusConflict, w, fmt.Errorf("consultation %v has no checkout session", consultationID))
		return
	}

	cs, err := checkoutsession.Get(dbResp.Details.PaymentSessionID, nil)
	if err != nil {
		config.ErrorStatus("failed to fetch checkout session", http.StatusInternalServerError, w, err)
		return
	}
	if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		config.ErrorStatus("payment has not completed", http.StatusPaymentRequired, w, fmt.Errorf("checkout session is %v", cs.PaymentStatus))
		return
	}

	if _, err := dbResp.Details.Status.Transition(models.StatusActive); err != nil {
		zap.S().Errorw("rejected consultation status transition",
			"consultationID", consultationID,
			"from", dbResp.Details.Status,
			"to", models.StatusActive,
		)
		config.ErrorStatus("invalid status transition", http.StatusConflict, w, err)
		return
	}

	_, err = b.DB.UpdateOne(r.Context(), bson.M{"_id": cID}, bson.M{
		"$set": bson.M{
			"consultation.status":    models.StatusActive,
			"consultation.updatedAt": primitive.NewDateTimeFromTime(time.Now()),
		},
	})
	if err != nil {
		config.ErrorStatus("failed to activate consultation", http.StatusInternalServerError, w, err)
		return
	}

	actor, err := actorFromUserID(r.Context(), b.UDB, req.RequesterID)
	if err != nil {
		config.ErrorStatus("failed to get requester by ID", http.StatusNotFound, w, err)
		return
	}
	if err := b.Audit.Record(r.Context(), actor, "Payment Verified", "Billing Record", "Revenue Cycle", consultationID); err != nil {
		config.ErrorStatus("failed to record privacy log", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "active"}`))
}

func (b Billing) handleSuccessRedirect(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<html><body><h1>Payment received</h1><p>You can return to your consultation.</p></body></html>`))
}

func (b Billing) handleCancelRedirect(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<html><body><h1>Payment cancelled</h1><p>Your consultation is still awaiting payment.</p></body></html>`))
}
