package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cloudx-io/sealedauction/ledgerapi"
)

var codeStatus = map[ledgerapi.Code]int{
	ledgerapi.CodeInsufficientFee:   http.StatusPaymentRequired,
	ledgerapi.CodeInvalidDuration:   http.StatusBadRequest,
	ledgerapi.CodeInvalidCiphertext: http.StatusBadRequest,
	ledgerapi.CodeBadRequest:        http.StatusBadRequest,
	ledgerapi.CodeNotFound:          http.StatusNotFound,
	ledgerapi.CodeUnauthorized:      http.StatusForbidden,
	ledgerapi.CodePermissionDenied:  http.StatusForbidden,
	ledgerapi.CodeNotActive:         http.StatusConflict,
	ledgerapi.CodeAlreadyFinalized:  http.StatusConflict,
	ledgerapi.CodeNoBidsYet:         http.StatusConflict,
	ledgerapi.CodeNotResolved:       http.StatusConflict,
}

// StatusFor returns the HTTP status for a wire error code.
func StatusFor(code ledgerapi.Code) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ledgerapi.NewErrorResponse(err)
	if resp.Code == ledgerapi.CodeInternal {
		log.Printf("ERROR: %s %s (request %s) failed: %v", r.Method, r.URL.Path, middleware.GetReqID(r.Context()), err)
	}
	respondJSON(w, StatusFor(resp.Code), resp)
}

func respondUnauthenticated(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusUnauthorized, ledgerapi.ErrorResponse{
		Type:    "error",
		Code:    ledgerapi.CodeUnauthorized,
		Message: msg,
	})
}
