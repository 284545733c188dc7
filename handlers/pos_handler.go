package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"drinkPassAPI/internal/ledgerstore"
	"drinkPassAPI/internal/scanflow"
	"drinkPassAPI/internal/types/entitlement"
	"drinkPassAPI/middleware"
	"drinkPassAPI/services"
)

type POSHandler struct {
	posService   *services.POSService
	auditService *services.AuditService
}

func NewPOSHandler(posService *services.POSService, auditService *services.AuditService) *POSHandler {
	return &POSHandler{
		posService:   posService,
		auditService: auditService,
	}
}

type scanRequest struct {
	ScannedText string `json:"scannedText"`
	Kind        string `json:"kind"`
}

// ProcessScan runs one scanned QR through the redemption pipeline.
func (h *POSHandler) ProcessScan(w http.ResponseWriter, r *http.Request) {
	// Two network hops (Lu.ma, then the ledger), so a little more headroom
	// than the usual 5 seconds.
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	operatorID, ok := middleware.GetOperatorID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Operator not authenticated")
		return
	}

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ScannedText == "" {
		respondWithError(w, http.StatusBadRequest, "scannedText is required")
		return
	}

	kind := entitlement.Kind(req.Kind)
	if req.Kind == "" {
		kind = entitlement.KindDrink
	}
	if !kind.Valid() {
		respondWithError(w, http.StatusBadRequest, "kind must be \"drink\" or \"meal\"")
		return
	}

	terminalID := terminalID(r)
	log.Printf("POS Handler: scan on terminal %s by operator %s", terminalID, operatorID)

	result, err := h.posService.ProcessScan(ctx, terminalID, req.ScannedText, kind)
	if err != nil {
		respondWithScanError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// TerminalState lets the UI observe where the terminal's scan session is.
func (h *POSHandler) TerminalState(w http.ResponseWriter, r *http.Request) {
	state := h.posService.TerminalState(terminalID(r))
	respondWithJSON(w, http.StatusOK, map[string]string{"state": state.String()})
}

// RecentScans returns the latest audit entries, newest first.
func (h *POSHandler) RecentScans(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	events, err := h.auditService.RecentScans(ctx, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load recent scans")
		return
	}

	respondWithJSON(w, http.StatusOK, events)
}

// TodayStats returns how many redemptions went through since midnight.
func (h *POSHandler) TodayStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	count, err := h.auditService.TodayCount(ctx)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to count today's redemptions")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{"redemptions_today": count})
}

func terminalID(r *http.Request) string {
	if id := r.Header.Get("X-Terminal-ID"); id != "" {
		return id
	}
	return "default"
}

// respondWithScanError maps the scan error taxonomy onto status codes. The
// message is what the operator sees; every rejection names its reason.
func respondWithScanError(w http.ResponseWriter, err error) {
	var mismatch *services.EventMismatchError

	switch {
	case errors.Is(err, services.ErrUnrecognizedFormat):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &mismatch):
		respondWithError(w, http.StatusConflict, mismatch.Error())
	case errors.Is(err, services.ErrProviderUnavailable):
		respondWithError(w, http.StatusBadGateway, "Guest list provider unavailable. Re-scan to try again.")
	case errors.Is(err, services.ErrGuestNotVerifiable):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrAlreadyExhausted), errors.Is(err, ledgerstore.ErrExhausted):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrDuplicateScan):
		respondWithError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, scanflow.ErrScanInProgress):
		respondWithError(w, http.StatusConflict, "A scan is already in progress on this terminal")
	case errors.Is(err, services.ErrRecordVanished):
		respondWithError(w, http.StatusInternalServerError, err.Error())
	default:
		log.Printf("POS Handler: scan failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to process scan")
	}
}

// Helper functions
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
