package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/skylinefoods/stocktx/internal/database"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// ReportService serves read-only views over the discrepancy tables and the
// run history. It never writes; the pipeline owns all mutations.
type ReportService struct {
	Store  database.Store
	Schema *database.SchemaSnapshot
}

func NewReportService(store database.Store, schema *database.SchemaSnapshot) *ReportService {
	return &ReportService{Store: store, Schema: schema}
}

func (h *ReportService) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *ReportService) GetDiffTotals(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseDiffFilter(w, r)
	if !ok {
		return
	}

	totals, err := h.Store.FetchDiffTotals(h.Schema, filter)
	if err != nil {
		http.Error(w, "Failed to retrieve discrepancy totals", http.StatusInternalServerError)
		return
	}

	writeJSON(w, totals)
}

func (h *ReportService) GetDiffDetails(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseDiffFilter(w, r)
	if !ok {
		return
	}

	details, err := h.Store.FetchDiffDetails(h.Schema, filter)
	if err != nil {
		http.Error(w, "Failed to retrieve discrepancy details", http.StatusInternalServerError)
		return
	}

	writeJSON(w, details)
}

func (h *ReportService) GetRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "Invalid 'limit'. Use a positive integer.", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	runs, err := h.Store.ListRuns(limit)
	if err != nil {
		http.Error(w, "Failed to retrieve runs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, runs)
}

func parseDiffFilter(w http.ResponseWriter, r *http.Request) (database.DiffFilter, bool) {
	filter := database.DiffFilter{
		Department:  r.URL.Query().Get("department"),
		ProductCode: r.URL.Query().Get("product_num"),
	}

	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "Invalid 'from' format. Use YYYY-MM-DD.", http.StatusBadRequest)
			return database.DiffFilter{}, false
		}
		filter.From = &from
	}

	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "Invalid 'to' format. Use YYYY-MM-DD.", http.StatusBadRequest)
			return database.DiffFilter{}, false
		}
		filter.To = &to
	}

	return filter, true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
