package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drinkPassAPI/internal/luma"
)

// fakeLuma serves a configurable get-guest response and counts hits.
func fakeLuma(t *testing.T, body string, status int) (*luma.Client, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return luma.NewClient(srv.URL, "test-key", 2*time.Second), &hits
}

func verifiedGuestBody(email, name string) string {
	return fmt.Sprintf(`{"guest": {"api_id": "g1", "user_email": %q, "user_name": %q, "approval_status": "approved", "event_ticket": {"name": "GA"}}}`, email, name)
}

func TestParseCredentialExtractsEventAndKey(t *testing.T) {
	resolver := NewResolverService(nil, "")

	cases := []struct {
		name    string
		scanned string
	}{
		{"plain URL", "https://lu.ma/check-in/evt_123?pk=abc"},
		{"percent-encoded URL", "https%3A%2F%2Flu.ma%2Fcheck-in%2Fevt_123%3Fpk%3Dabc"},
		{"trailing query params", "https://lu.ma/check-in/evt_123?pk=abc&utm_source=apple"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cred, err := resolver.ParseCredential(tc.scanned)
			require.NoError(t, err)
			assert.Equal(t, "evt_123", cred.EventID)
			assert.Equal(t, "abc", cred.PublicKey)
		})
	}
}

func TestParseCredentialRejectsGarbage(t *testing.T) {
	resolver := NewResolverService(nil, "")

	for _, scanned := range []string{
		"",
		"hello world",
		`{"email": "legacy@example.com", "attendeeId": "a1"}`, // deprecated JSON payloads
		"https://lu.ma/evt_123?pk=abc",
		"https://example.com/check-in/evt_123?pk=abc",
	} {
		_, err := resolver.ParseCredential(scanned)
		assert.ErrorIs(t, err, ErrUnrecognizedFormat, "input %q", scanned)
	}
}

func TestResolveRejectsGarbageWithoutNetworkCall(t *testing.T) {
	client, hits := fakeLuma(t, verifiedGuestBody("a@b.c", "A"), http.StatusOK)
	resolver := NewResolverService(client, "")

	_, _, err := resolver.Resolve(context.Background(), "not a url")
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)
	assert.Equal(t, int64(0), hits.Load())
}

func TestResolveEventMismatchBeforeProviderCall(t *testing.T) {
	client, hits := fakeLuma(t, verifiedGuestBody("a@b.c", "A"), http.StatusOK)
	resolver := NewResolverService(client, "evt_expected")

	_, _, err := resolver.Resolve(context.Background(), "https://lu.ma/check-in/evt_other?pk=abc")

	var mismatch *EventMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "evt_other", mismatch.ScannedEventID)
	assert.Equal(t, "evt_expected", mismatch.ConfiguredEventID)
	assert.Equal(t, int64(0), hits.Load())
}

func TestResolveNormalizesEmail(t *testing.T) {
	client, _ := fakeLuma(t, verifiedGuestBody("  Jane.Doe@Example.COM ", "Jane Doe"), http.StatusOK)
	resolver := NewResolverService(client, "")

	_, identity, err := resolver.Resolve(context.Background(), "https://lu.ma/check-in/evt_123?pk=abc")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", identity.Email)
	assert.Equal(t, "Jane Doe", identity.Name)
}

func TestResolveNameFallbacks(t *testing.T) {
	t.Run("local part of email", func(t *testing.T) {
		client, _ := fakeLuma(t, verifiedGuestBody("jane.doe@example.com", ""), http.StatusOK)
		resolver := NewResolverService(client, "")

		_, identity, err := resolver.Resolve(context.Background(), "https://lu.ma/check-in/evt_123?pk=abc")
		require.NoError(t, err)
		assert.Equal(t, "jane.doe", identity.Name)
	})

	t.Run("unknown guest literal", func(t *testing.T) {
		assert.Equal(t, "Unknown Guest", displayName("", ""))
	})
}

func TestResolveMissingEmailFailsClosed(t *testing.T) {
	client, _ := fakeLuma(t, `{"guest": {"user_name": "No Email"}}`, http.StatusOK)
	resolver := NewResolverService(client, "")

	_, _, err := resolver.Resolve(context.Background(), "https://lu.ma/check-in/evt_123?pk=abc")
	assert.ErrorIs(t, err, ErrGuestNotVerifiable)
}

func TestResolveProviderDown(t *testing.T) {
	client, _ := fakeLuma(t, "nope", http.StatusInternalServerError)
	resolver := NewResolverService(client, "")

	_, _, err := resolver.Resolve(context.Background(), "https://lu.ma/check-in/evt_123?pk=abc")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}
