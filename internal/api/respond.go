package api

import (
	"encoding/json"
	"net/http"

	"github.com/lucerna/catalog-engine/internal/domain"
	"github.com/lucerna/catalog-engine/internal/observability"
)

func writeJSON(logger *observability.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{"error": message}
	if detail != "" {
		resp["detail"] = detail
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeDomainError maps the error taxonomy onto HTTP statuses: validation
// and ingestion problems are the caller's fault, everything else is ours.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsType(err, domain.ErrorTypeValidation),
		domain.IsType(err, domain.ErrorTypeIngestion):
		status = http.StatusBadRequest
	}
	writeError(w, status, err.Error(), "")
}

func writeXLSX(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
