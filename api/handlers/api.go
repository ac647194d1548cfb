package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/clinicvault/clinicvault-api/models"
	"github.com/stripe/stripe-go/v82"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/clinicvault/clinicvault-api/api"
	"github.com/clinicvault/clinicvault-api/config"
	"github.com/clinicvault/clinicvault-api/databases"
	"github.com/clinicvault/clinicvault-api/privacy"
	"github.com/clinicvault/clinicvault-api/session"
	"github.com/clinicvault/clinicvault-api/transcription"
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router        *mux.Router
	DB            databases.CollectionHelper
	Config        config.Config
	Registry      *session.Registry
	Consultations databases.ConsultationDatabase
	dbHelper      databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	// setup go-guardian for middleware
	m := api.MiddlewareDB{DB: databases.NewUserDatabase(a.dbHelper)}
	m.SetupGoGuardian()

	cipher, err := privacy.NewCipher()
	if err != nil {
		// without a data key no PHI can be written, so kill the pod
		zap.S().Fatalw("failed to initialize phi cipher", "error", err)
	}
	audit := privacy.NewAudit(databases.NewPrivacyLogDatabase(a.dbHelper))

	userDB := databases.NewUserDatabase(a.dbHelper)
	consultDB := databases.NewConsultationDatabase(a.dbHelper)

	registry := session.NewRegistry(consultDB)
	relay := session.NewRelay(registry)
	a.Registry = registry
	a.Consultations = consultDB

	r := mux.NewRouter()

	u := User{DB: userDB, Audit: audit}
	c := Consultation{DB: consultDB, UDB: userDB, Cipher: cipher, Audit: audit, Registry: registry}
	s := Session{Registry: registry, Relay: relay, UDB: userDB}
	tr := Transcription{Registry: registry, DB: consultDB, UDB: userDB, Cipher: cipher, Audit: audit, Transcriber: transcription.New()}
	b := Billing{DB: consultDB, UDB: userDB, Audit: audit, Config: a.Config}
	ad := Admin{UDB: userDB, PDB: databases.NewPrivacyLogDatabase(a.dbHelper), Audit: audit}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(30 * time.Second))

	apiCreate.Handle("/auth/token", api.Middleware(http.HandlerFunc(m.CreateToken))).Methods("POST")
	apiCreate.Handle("/auth/logout", api.Middleware(http.HandlerFunc(api.RevokeToken))).Methods("DELETE")

	apiCreate.Handle("/user/create-user", http.HandlerFunc(u.UserCreateHandler)).Methods("POST")
	apiCreate.Handle("/user/check-user", http.HandlerFunc(u.UserCheckEmailHandler)).Methods("POST")
	apiCreate.Handle("/user/login", http.HandlerFunc(u.UserLoginHandler)).Methods("POST")
	apiCreate.Handle("/user/availability", api.Middleware(http.HandlerFunc(u.SetAvailabilityHandler))).Methods("PUT")
	apiCreate.Handle("/user/{user_id}", api.Middleware(http.HandlerFunc(u.UserHandler))).Methods("GET")
	apiCreate.Handle("/doctors", api.Middleware(http.HandlerFunc(u.DoctorsHandler))).Methods("GET")

	apiCreate.Handle("/consultation", api.Middleware(http.HandlerFunc(c.CreateConsultationHandler))).Methods("POST")
	apiCreate.Handle("/consultation/{consultation_id}", api.Middleware(http.HandlerFunc(c.ConsultationHandler))).Methods("GET")
	apiCreate.Handle("/consultation/{consultation_id}/notes", api.Middleware(http.HandlerFunc(c.UpdateNotesHandler))).Methods("PATCH")
	apiCreate.Handle("/consultation/{consultation_id}/complete", api.Middleware(http.HandlerFunc(c.CompleteConsultationHandler))).Methods("POST")
	apiCreate.Handle("/consultation/{consultation_id}/cancel", api.Middleware(http.HandlerFunc(c.CancelConsultationHandler))).Methods("POST")
	apiCreate.Handle("/consultations/user/{user_id}", api.Middleware(http.HandlerFunc(c.ConsultationsByUserHandler))).Methods("GET")

	apiCreate.Handle("/consultation/{consultation_id}/audio", api.Middleware(http.HandlerFunc(tr.UploadAudioHandler))).Methods("POST")

	apiCreate.Handle("/billing/{consultation_id}/create-checkout-session", api.Middleware(http.HandlerFunc(b.CreateCheckoutSessionHandler))).Methods("POST")
	apiCreate.Handle("/billing/{consultation_id}/verify-payment", api.Middleware(http.HandlerFunc(b.VerifyPaymentHandler))).Methods("POST")
	apiCreate.Handle("/success", http.HandlerFunc(b.handleSuccessRedirect)).Methods("GET")
	apiCreate.Handle("/cancel", http.HandlerFunc(b.handleCancelRedirect)).Methods("GET")

	apiCreate.Handle("/admin/login", http.HandlerFunc(ad.AdminLoginHandler)).Methods("POST")
	apiCreate.Handle("/admin/doctors", api.Middleware(http.HandlerFunc(ad.AddDoctorHandler))).Methods("POST")
	apiCreate.Handle("/admin/privacy-logs", api.Middleware(http.HandlerFunc(ad.PrivacyLogsHandler))).Methods("GET")

	// websocket upgrade requests from browsers cannot carry an Authorization
	// header, so the session endpoint sits outside the auth middleware and
	// the registry gates joins on consultation status instead
	r.HandleFunc("/ws/{consultation_id}/{user_id}", s.ConsultationSessionHandler)

	// swagger docs hosted at "/"
	r.PathPrefix("/").Handler(http.StripPrefix("/", http.FileServer(http.Dir("./docs/"))))
	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("clinicvault-api has connected to the database")

	// initialize stripe
	stripeKey := os.Getenv("STRIPE_SECRET_KEY")
	if stripeKey == "" {
		return fmt.Errorf("stripe secret key is not set")
	}
	stripe.Key = stripeKey

	// initialize api router
	a.initializeRoutes()
	return nil

}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
