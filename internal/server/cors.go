package server

import (
	"net/http"

	"github.com/rs/cors"
)

// withCORS allows every origin, mirroring the websocket endpoint's origin
// policy.
func withCORS(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(next)
}
