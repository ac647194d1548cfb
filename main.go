package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/clinicvault/clinicvault-api/api/handlers"
	"github.com/clinicvault/clinicvault-api/api/scheduler"

	"go.uber.org/zap"

	"github.com/clinicvault/clinicvault-api/config"
)

func main() {
	a := handlers.App{}
	a.Config = *config.New()

	if err := a.Initialize(); err != nil { //initialize database and router
		log.Fatal(err)
	}

	s := scheduler.NewScheduler(a.Registry, a.Consultations)
	s.Start()
	defer s.Stop()

	port := os.Getenv("PORT")
	baseURL := os.Getenv("BASE_URL")
	zap.S().Infow("clinicvault-api is up and running",
		"port", port,
		"url", baseURL,
	)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%v", port), a.Router))
}
