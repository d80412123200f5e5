package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Operational endpoints
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Write side: ingestion and derived-state rebuild
	api.HandleFunc("/ingest/statements", handler.IngestStatements).Methods("POST")
	api.HandleFunc("/rebuild", handler.Rebuild).Methods("POST")

	// Read side: reconstructed state and audit trails
	api.HandleFunc("/positions", handler.GetPositions).Methods("GET")
	api.HandleFunc("/lots", handler.GetLotClosures).Methods("GET")
	api.HandleFunc("/lots/summary", handler.GetRealizedSummary).Methods("GET")
	api.HandleFunc("/transfers", handler.GetTransfers).Methods("GET")
	api.HandleFunc("/events", handler.GetEvents).Methods("GET")

	return r
}
