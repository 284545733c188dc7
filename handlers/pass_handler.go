package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"drinkPassAPI/services"
)

type PassHandler struct {
	passService *services.PassService
}

func NewPassHandler(passService *services.PassService) *PassHandler {
	return &PassHandler{
		passService: passService,
	}
}

// GeneratePass is the self-service flow: attendee email in, QR code of
// their check-in URL out. Public, but behind the IP rate limiter.
func (h *PassHandler) GeneratePass(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Email == "" {
		respondWithError(w, http.StatusBadRequest, "email is required")
		return
	}

	pass, err := h.passService.GeneratePass(ctx, body.Email)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrGuestNotVerifiable):
			respondWithError(w, http.StatusNotFound, "Email not found on the event guest list")
		case errors.Is(err, services.ErrProviderUnavailable):
			respondWithError(w, http.StatusBadGateway, "Guest list provider unavailable. Please try again.")
		default:
			respondWithError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, pass)
}
