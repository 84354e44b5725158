package credentials

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestStore_InsertIssuedTicketbook_RoundTrips(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	tb := Ticketbook{
		ID:                        1,
		Type:                      TicketMixnetEntry,
		TotalTickets:              100,
		UsedTickets:               10,
		TicketSize:                1024,
		IssuedAt:                  now.Add(-time.Hour),
		ExpirationDate:            now.Add(24 * time.Hour),
		EpochID:                   7,
		AggregatedWalletSignature: []byte("wallet-signature-bytes"),
		CoinIndexSignatures:       []byte("coin-index-signature-bytes"),
		ExpirationSignatures:      []byte("expiration-signature-bytes"),
	}
	require.NoError(t, s.InsertIssuedTicketbook(tb))

	available, err := s.AvailableTicketbooks(now)
	require.NoError(t, err)
	require.Len(t, available, 1)

	got := available[0]
	require.Equal(t, tb.ID, got.ID)
	require.Equal(t, tb.Type, got.Type)
	require.Equal(t, uint32(90), got.Remaining)
	require.False(t, got.Expired)
	require.Equal(t, tb.AggregatedWalletSignature, got.AggregatedWalletSignature)
	require.Equal(t, tb.CoinIndexSignatures, got.CoinIndexSignatures)
	require.Equal(t, tb.ExpirationSignatures, got.ExpirationSignatures)
}

func TestStore_InsertIssuedTicketbook_IdempotentByID(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	first := Ticketbook{ID: 1, Type: TicketMixnetEntry, TotalTickets: 100, UsedTickets: 0, TicketSize: 1024, ExpirationDate: now.Add(time.Hour)}
	second := Ticketbook{ID: 1, Type: TicketMixnetEntry, TotalTickets: 500, UsedTickets: 0, TicketSize: 1024, ExpirationDate: now.Add(time.Hour)}

	require.NoError(t, s.InsertIssuedTicketbook(first))
	require.NoError(t, s.InsertIssuedTicketbook(second))

	available, err := s.AvailableTicketbooks(now)
	require.NoError(t, err)
	require.Len(t, available, 1)
	require.Equal(t, uint32(100), available[0].TotalTickets, "second insert under the same id must be a no-op")
}

func TestStore_InsertMasterVerificationKey_IdempotentByEpoch(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.InsertMasterVerificationKey(EpochVerificationKey{EpochID: 3, MasterVerificationKey: []byte("first")}))
	require.NoError(t, s.InsertMasterVerificationKey(EpochVerificationKey{EpochID: 3, MasterVerificationKey: []byte("second")}))

	vk, err := s.MasterVerificationKey(3)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), vk)
}

func TestStore_MasterVerificationKey_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.MasterVerificationKey(999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AvailableTicketbooks_ExpiredTicketbooksExcludedFromRemaining(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	require.NoError(t, s.InsertIssuedTicketbook(Ticketbook{
		ID: 1, Type: TicketMixnetEntry, TotalTickets: 100, UsedTickets: 0, TicketSize: 10,
		ExpirationDate: now.Add(-time.Hour), // already expired
	}))
	require.NoError(t, s.InsertIssuedTicketbook(Ticketbook{
		ID: 2, Type: TicketMixnetEntry, TotalTickets: 50, UsedTickets: 0, TicketSize: 10,
		ExpirationDate: now.Add(time.Hour),
	}))

	available, err := s.AvailableTicketbooks(now)
	require.NoError(t, err)

	require.Equal(t, uint64(500), available.RemainingData(TicketMixnetEntry), "only the non-expired ticketbook's bytes should count")
}

func TestStore_CheckTicketTypesRunningLow(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	// MixnetEntry: well above threshold.
	require.NoError(t, s.InsertIssuedTicketbook(Ticketbook{
		ID: 1, Type: TicketMixnetEntry, TotalTickets: 1000, UsedTickets: 0, TicketSize: LowTicketThreshold,
		ExpirationDate: now.Add(time.Hour),
	}))
	// MixnetExit: a single tiny ticketbook, well below threshold.
	require.NoError(t, s.InsertIssuedTicketbook(Ticketbook{
		ID: 2, Type: TicketMixnetExit, TotalTickets: 1, UsedTickets: 0, TicketSize: 1,
		ExpirationDate: now.Add(time.Hour),
	}))
	// WireguardEntry/WireguardExit: nothing stored at all.

	low, err := s.CheckTicketTypesRunningLow(now)
	require.NoError(t, err)
	require.ElementsMatch(t, []TicketType{TicketMixnetExit, TicketWireguardEntry, TicketWireguardExit}, low)
}

func TestStore_Reset_ClearsEverything(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	require.NoError(t, s.InsertIssuedTicketbook(Ticketbook{ID: 1, Type: TicketMixnetEntry, ExpirationDate: now.Add(time.Hour)}))
	require.NoError(t, s.InsertMasterVerificationKey(EpochVerificationKey{EpochID: 1, MasterVerificationKey: []byte("x")}))

	require.NoError(t, s.Reset())

	available, err := s.AvailableTicketbooks(now)
	require.NoError(t, err)
	require.Empty(t, available)

	_, err = s.MasterVerificationKey(1)
	require.ErrorIs(t, err, ErrNotFound)
}
