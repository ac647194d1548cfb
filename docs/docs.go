// Package docs ClinicVault API.
//
// Documentation of ClinicVault API.
//
//     Schemes: https
//     BasePath: /
//     Version: 1.0.0
//     Host: https://api.clinicvault.health
//
//     Consumes:
//     - application/json
//
//     Produces:
//     - application/json
//
//     Security:
//     - basic
//
//    SecurityDefinitions:
//    basic:
//      type: basic
//
// swagger:meta
package docs

import (
	"github.com/clinicvault/clinicvault-api/models"
)

// swagger:route GET /health health healthEndpointID
// Lists the healthchex of the web service api.
// responses:
//   200: healthResponse

// Shows the current health of the api. true means it is alive, false means it is not.
// swagger:response healthResponse
type healthResponseWrapper struct {
	// in:body
	Body models.HealthCheckResponse
}

// swagger:route GET /api/v1/consultation/{consultation_id} consultation consultationByID
// Gets the decrypted consultation record for an authorized participant.
// responses:
//   200: consultationByIDResponse

// Shows a single consultation by the given {ID}
// swagger:response consultationByIDResponse
type consultationByIDResponseWrapper struct {
	// in:body
	Body models.ConsultationView
}
