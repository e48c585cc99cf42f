package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

func SetupRoutes(reportHandler *ReportService) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", reportHandler.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/discrepancies/totals", reportHandler.GetDiffTotals)
		r.Get("/discrepancies/details", reportHandler.GetDiffDetails)
		r.Get("/runs", reportHandler.GetRuns)
	})

	return r
}
