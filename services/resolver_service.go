package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"

	"drinkPassAPI/internal/luma"
	"drinkPassAPI/internal/types/guest"
)

var (
	// ErrUnrecognizedFormat: the scanned text is not a Lu.ma check-in URL.
	// Rejected before any network call.
	ErrUnrecognizedFormat = errors.New("scanned code is not a recognized check-in QR")

	// ErrProviderUnavailable: Lu.ma could not be reached. The operator can
	// re-scan; we never retry on our own.
	ErrProviderUnavailable = errors.New("guest list provider unavailable")

	// ErrGuestNotVerifiable: the provider answered but returned no guest or
	// no email. We fail closed here; an unverifiable guest never gets an
	// entitlement record.
	ErrGuestNotVerifiable = errors.New("guest could not be verified against the event guest list")
)

// EventMismatchError is a hard stop: entitlement limits are scoped to one
// event, so a credential for another event must not touch the ledger.
type EventMismatchError struct {
	ScannedEventID    string
	ConfiguredEventID string
}

func (e *EventMismatchError) Error() string {
	return fmt.Sprintf("scanned event %q does not match configured event %q", e.ScannedEventID, e.ConfiguredEventID)
}

var checkInURLPattern = regexp.MustCompile(`https://lu\.ma/check-in/([^?]+)\?pk=([^&]+)`)

// ResolverService turns scanned QR text into a verified guest identity.
type ResolverService struct {
	client *luma.Client
	// configuredEventID, when non-empty, rejects credentials for any other
	// event before the provider is called.
	configuredEventID string
}

func NewResolverService(client *luma.Client, configuredEventID string) *ResolverService {
	return &ResolverService{
		client:            client,
		configuredEventID: configuredEventID,
	}
}

// ParseCredential validates the scanned text against the check-in URL shape
// and extracts the event ID and public key. Pure; makes no network calls.
func (s *ResolverService) ParseCredential(scannedText string) (*guest.Credential, error) {
	// Decode once so percent-encoded scanner output matches too. Text that
	// is not valid percent-encoding is matched as-is.
	decoded, err := url.QueryUnescape(scannedText)
	if err != nil {
		decoded = scannedText
	}

	match := checkInURLPattern.FindStringSubmatch(decoded)
	if match == nil {
		return nil, ErrUnrecognizedFormat
	}

	cred := &guest.Credential{
		EventID:   match[1],
		PublicKey: match[2],
		RawURL:    decoded,
	}

	if s.configuredEventID != "" && s.configuredEventID != cred.EventID {
		return nil, &EventMismatchError{
			ScannedEventID:    cred.EventID,
			ConfiguredEventID: s.configuredEventID,
		}
	}

	return cred, nil
}

// ResolveIdentity asks Lu.ma who the credential belongs to. A provider
// response without an email is treated as unverifiable, never defaulted to
// a verified identity.
func (s *ResolverService) ResolveIdentity(ctx context.Context, cred *guest.Credential) (*guest.Identity, error) {
	identity, err := s.client.GetGuestByProxyKey(ctx, cred.EventID, cred.PublicKey)
	if err != nil {
		log.Printf("Resolver: Lu.ma lookup failed for pk %s: %v", cred.PublicKey, err)
		if errors.Is(err, luma.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return nil, err
	}
	if identity == nil {
		return nil, ErrGuestNotVerifiable
	}

	identity.Email = strings.ToLower(strings.TrimSpace(identity.Email))
	identity.Name = displayName(identity.Name, identity.Email)
	return identity, nil
}

// Resolve is ParseCredential followed by ResolveIdentity. The POS pipeline
// calls the steps separately so the double-scan guard can run in between.
func (s *ResolverService) Resolve(ctx context.Context, scannedText string) (*guest.Credential, *guest.Identity, error) {
	cred, err := s.ParseCredential(scannedText)
	if err != nil {
		return nil, nil, err
	}

	identity, err := s.ResolveIdentity(ctx, cred)
	if err != nil {
		return nil, nil, err
	}
	return cred, identity, nil
}

// displayName prefers the provider-supplied name, then the local part of
// the email, then a literal fallback.
func displayName(name, email string) string {
	if name != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return "Unknown Guest"
}
