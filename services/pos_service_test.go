package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drinkPassAPI/internal/ledgerstore"
	"drinkPassAPI/internal/luma"
	"drinkPassAPI/internal/scanflow"
	"drinkPassAPI/internal/types/entitlement"
)

const scanURL = "https://lu.ma/check-in/evt_123?pk=abc"

// lumaStub is a fake Lu.ma server whose response can be swapped mid-test.
type lumaStub struct {
	mu     sync.Mutex
	status int
	body   string
	block  chan struct{} // when set, requests stall until it closes
	hits   int
	srv    *httptest.Server
}

func newLumaStub(t *testing.T) *lumaStub {
	t.Helper()
	stub := &lumaStub{status: http.StatusOK, body: verifiedGuestBody("jane@example.com", "Jane Doe")}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		status, body, block := stub.status, stub.body, stub.block
		stub.hits++
		stub.mu.Unlock()

		// Only the guest under test stalls; other public keys answer
		// immediately so cross-terminal checks are not blocked too.
		if block != nil && r.URL.Query().Get("proxy_key") == "abc" {
			<-block
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(stub.srv.Close)
	return stub
}

func (s *lumaStub) respond(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.body = status, body
}

func (s *lumaStub) hitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

type posFixture struct {
	pos    *POSService
	ledger *LedgerService
	stub   *lumaStub
	mr     *miniredis.Miniredis
}

func newPOSFixture(t *testing.T) *posFixture {
	t.Helper()

	stub := newLumaStub(t)
	client := luma.NewClient(stub.srv.URL, "test-key", 2*time.Second)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	resolver := NewResolverService(client, "evt_123")
	ledger := NewLedgerService(ledgerstore.NewMemoryStore(), entitlement.Limits{Drinks: 3, Meals: 1})
	dedup := NewDedupService(rdb, 5*time.Second)

	return &posFixture{
		pos:    NewPOSService(resolver, ledger, dedup, nil),
		ledger: ledger,
		stub:   stub,
		mr:     mr,
	}
}

func TestProcessScanFirstAndRepeat(t *testing.T) {
	f := newPOSFixture(t)
	ctx := context.Background()

	// First scan: record created with 3 drinks, one redeemed.
	result, err := f.pos.ProcessScan(ctx, "pos-1", scanURL, entitlement.KindDrink)
	require.NoError(t, err)
	assert.True(t, result.NewGuest)
	assert.Equal(t, 2, result.Record.RemainingDrinks)
	assert.Equal(t, 1, result.Record.RemainingMeals)
	assert.Equal(t, "jane@example.com", result.Record.Email)
	assert.Equal(t, entitlement.KindDrink, result.Record.LastRedemptionType)

	// An immediate rescan is a double scan.
	_, err = f.pos.ProcessScan(ctx, "pos-1", scanURL, entitlement.KindDrink)
	assert.ErrorIs(t, err, ErrDuplicateScan)

	// After the dedup window the same guest redeems again: the record is
	// found, not reset.
	f.mr.FastForward(6 * time.Second)
	result, err = f.pos.ProcessScan(ctx, "pos-1", scanURL, entitlement.KindDrink)
	require.NoError(t, err)
	assert.False(t, result.NewGuest)
	assert.Equal(t, 1, result.Record.RemainingDrinks)

	// Terminal is idle again after each scan.
	assert.Equal(t, scanflow.StateIdle, f.pos.TerminalState("pos-1"))
}

func TestProcessScanMealExhaustion(t *testing.T) {
	f := newPOSFixture(t)
	ctx := context.Background()

	result, err := f.pos.ProcessScan(ctx, "pos-1", scanURL, entitlement.KindMeal)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Record.RemainingMeals)

	// The meal counter is spent; the next attempt is rejected before
	// Redeem is ever called, and the record stays put.
	f.mr.FastForward(6 * time.Second)
	_, err = f.pos.ProcessScan(ctx, "pos-1", scanURL, entitlement.KindMeal)
	assert.ErrorIs(t, err, ErrAlreadyExhausted)

	// Drinks are untouched by the meal rejections.
	f.mr.FastForward(6 * time.Second)
	result, err = f.pos.ProcessScan(ctx, "pos-1", scanURL, entitlement.KindDrink)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Record.RemainingDrinks)
	assert.Equal(t, 0, result.Record.RemainingMeals)
}

func TestProcessScanBadFormatNoNetwork(t *testing.T) {
	f := newPOSFixture(t)

	_, err := f.pos.ProcessScan(context.Background(), "pos-1", "gibberish", entitlement.KindDrink)
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)
	assert.Equal(t, 0, f.stub.hitCount())
}

func TestProcessScanEventMismatch(t *testing.T) {
	f := newPOSFixture(t)

	_, err := f.pos.ProcessScan(context.Background(), "pos-1",
		"https://lu.ma/check-in/evt_other?pk=abc", entitlement.KindDrink)

	var mismatch *EventMismatchError
	assert.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 0, f.stub.hitCount())
}

func TestProcessScanUnverifiableGuestCreatesNothing(t *testing.T) {
	f := newPOSFixture(t)
	ctx := context.Background()

	f.stub.respond(http.StatusOK, `{"guest": {"user_name": "No Email"}}`)
	_, err := f.pos.ProcessScan(ctx, "pos-1", scanURL, entitlement.KindDrink)
	assert.ErrorIs(t, err, ErrGuestNotVerifiable)

	// The failed scan released its dedup reservation and wrote no record:
	// the next verified scan starts from a full allocation.
	f.stub.respond(http.StatusOK, verifiedGuestBody("jane@example.com", "Jane Doe"))
	result, err := f.pos.ProcessScan(ctx, "pos-1", scanURL, entitlement.KindDrink)
	require.NoError(t, err)
	assert.True(t, result.NewGuest)
	assert.Equal(t, 2, result.Record.RemainingDrinks)
}

func TestProcessScanProviderDownThenRecovers(t *testing.T) {
	f := newPOSFixture(t)
	ctx := context.Background()

	f.stub.respond(http.StatusBadGateway, "upstream broke")
	_, err := f.pos.ProcessScan(ctx, "pos-1", scanURL, entitlement.KindDrink)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	// Manual re-scan works immediately; the failure released the
	// reservation instead of locking the guest out for the TTL.
	f.stub.respond(http.StatusOK, verifiedGuestBody("jane@example.com", "Jane Doe"))
	_, err = f.pos.ProcessScan(ctx, "pos-1", scanURL, entitlement.KindDrink)
	assert.NoError(t, err)
}

func TestProcessScanSerializesPerTerminal(t *testing.T) {
	f := newPOSFixture(t)
	ctx := context.Background()

	block := make(chan struct{})
	f.stub.mu.Lock()
	f.stub.block = block
	f.stub.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := f.pos.ProcessScan(ctx, "pos-1", scanURL, entitlement.KindDrink)
		done <- err
	}()

	// Wait until the first scan is holding the session at Resolving.
	require.Eventually(t, func() bool {
		return f.pos.TerminalState("pos-1") == scanflow.StateResolving
	}, 2*time.Second, 10*time.Millisecond)

	_, err := f.pos.ProcessScan(ctx, "pos-1", "https://lu.ma/check-in/evt_123?pk=other", entitlement.KindDrink)
	assert.ErrorIs(t, err, scanflow.ErrScanInProgress)

	// A different terminal is not blocked.
	_, err = f.pos.ProcessScan(ctx, "pos-2", "https://lu.ma/check-in/evt_123?pk=other2", entitlement.KindDrink)
	assert.NoError(t, err)

	close(block)
	require.NoError(t, <-done)
}

func TestProcessScanInvalidKind(t *testing.T) {
	f := newPOSFixture(t)

	_, err := f.pos.ProcessScan(context.Background(), "pos-1", scanURL, entitlement.Kind("dessert"))
	assert.Error(t, err)
	assert.Equal(t, 0, f.stub.hitCount())
}
