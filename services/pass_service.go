package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/skip2/go-qrcode"

	"drinkPassAPI/internal/luma"
)

// PassService is the self-service flow: an attendee types their email and
// gets back a QR code of their personal check-in URL. Only guests the
// Lu.ma guest list can vouch for ever get a pass; there is no placeholder
// identity path.
type PassService struct {
	client  *luma.Client
	eventID string
}

type PassResponse struct {
	AttendeeName string `json:"attendee_name"`
	Email        string `json:"email"`
	TicketName   string `json:"ticket_name"`
	CheckInURL   string `json:"check_in_url"`
	QrCodeBase64 string `json:"qr_code_base64"`
}

func NewPassService(client *luma.Client, eventID string) *PassService {
	return &PassService{client: client, eventID: eventID}
}

// GeneratePass looks the email up on the guest list and renders the
// check-in URL as a QR PNG.
func (s *PassService) GeneratePass(ctx context.Context, email string) (*PassResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email address")
	}

	identity, proxyKey, err := s.client.GetGuestByEmail(ctx, s.eventID, email)
	if err != nil {
		log.Printf("Pass: Lu.ma lookup failed for %s: %v", email, err)
		if errors.Is(err, luma.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return nil, err
	}
	if identity == nil || proxyKey == "" {
		return nil, ErrGuestNotVerifiable
	}

	checkInURL := fmt.Sprintf("https://lu.ma/check-in/%s?pk=%s", s.eventID, proxyKey)

	pngBytes, err := qrcode.Encode(checkInURL, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR png: %w", err)
	}

	return &PassResponse{
		AttendeeName: displayName(identity.Name, identity.Email),
		Email:        identity.Email,
		TicketName:   identity.TicketName,
		CheckInURL:   checkInURL,
		QrCodeBase64: base64.StdEncoding.EncodeToString(pngBytes),
	}, nil
}
