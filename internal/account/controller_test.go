package account

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nymtech/nym-vpnd-core/internal/credentials"
)

// fakeAPIClient is a minimal in-memory APIClient for controller tests.
type fakeAPIClient struct {
	mu sync.Mutex

	summary      AccountSummary
	activeByID   map[string]bool
	withdrawals  int32
	acceptWith   func(req WithdrawalRequest) (WithdrawalAccepted, error)
	status       map[string]ZkNymStatus
	keys         map[string]PartialVerificationKeys
	confirmCalls []string

	summaryCalls int32
}

func newFakeAPIClient() *fakeAPIClient {
	return &fakeAPIClient{
		activeByID: make(map[string]bool),
		status:     make(map[string]ZkNymStatus),
		keys:       make(map[string]PartialVerificationKeys),
	}
}

func (f *fakeAPIClient) GetAccountSummary(ctx context.Context, mnemonicID string) (AccountSummary, error) {
	atomic.AddInt32(&f.summaryCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary, nil
}

func (f *fakeAPIClient) RegisterDevice(ctx context.Context, mnemonicID string, device DeviceKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeByID[device.Public.String()] = true
	return nil
}

func (f *fakeAPIClient) GetDevices(ctx context.Context, mnemonicID string) ([]Device, error) {
	return f.GetActiveDevices(ctx, mnemonicID)
}

func (f *fakeAPIClient) GetActiveDevices(ctx context.Context, mnemonicID string) ([]Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var devices []Device
	for id, active := range f.activeByID {
		devices = append(devices, Device{Identity: id, Active: active})
	}
	return devices, nil
}

func (f *fakeAPIClient) GetUsage(ctx context.Context, mnemonicID string) ([]Usage, error) {
	return nil, nil
}

func (f *fakeAPIClient) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (WithdrawalAccepted, error) {
	atomic.AddInt32(&f.withdrawals, 1)
	if f.acceptWith != nil {
		return f.acceptWith(req)
	}
	return WithdrawalAccepted{Type: req.Type, ID: "withdrawal-" + req.Type.String()}, nil
}

func (f *fakeAPIClient) PollZkNymStatus(ctx context.Context, id string) (ZkNymStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.status[id]; ok {
		return s, nil
	}
	return ZkNymActive, nil
}

func (f *fakeAPIClient) GetPartialVerificationKeys(ctx context.Context, id string) (PartialVerificationKeys, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if k, ok := f.keys[id]; ok {
		return k, nil
	}
	return PartialVerificationKeys{
		EpochID:      1,
		Shares:       [][]byte{[]byte("share-a"), []byte("share-b")},
		TotalTickets: 1000,
		TicketSize:   512,
	}, nil
}

func (f *fakeAPIClient) ConfirmZkNymDownloaded(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls = append(f.confirmCalls, id)
	return nil
}

func newTestController(t *testing.T, api *fakeAPIClient, opts ...Option) (*Controller, *credentials.Store) {
	t.Helper()
	storage := NewStorage(t.TempDir())
	store, err := credentials.Open(t.TempDir() + "/credentials.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	c := NewController(storage, store, api, nil, opts...)
	t.Cleanup(c.Close)
	return c, store
}

func TestController_StoreAccount_SyncsAndPublishesState(t *testing.T) {
	api := newFakeAPIClient()
	api.summary = AccountSummary{Account: AccountActive, Subscription: SubscriptionActive, Device: DeviceActive}
	c, _ := newTestController(t, api)

	require.NoError(t, c.StoreAccount(context.Background(), testMnemonic))

	state := c.State()
	require.Equal(t, MnemonicStored, state.Mnemonic)
	require.Equal(t, AccountActive, state.Account)
	require.Equal(t, SubscriptionActive, state.Subscription)
	require.Equal(t, DeviceActive, state.Device)
	require.NotEmpty(t, state.MnemonicID)
}

func TestController_SyncAccountState_CoalescesConcurrentCallers(t *testing.T) {
	api := newFakeAPIClient()
	c, _ := newTestController(t, api)
	require.NoError(t, c.storage.StoreMnemonic(testMnemonic))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, c.SyncAccountState(context.Background()))
		}()
	}
	wg.Wait()

	// 10 concurrent callers must coalesce into far fewer than 10 API calls.
	require.Less(t, int(atomic.LoadInt32(&api.summaryCalls)), 10)
}

func TestController_RegisterDevice_ActivatesDevice(t *testing.T) {
	api := newFakeAPIClient()
	c, _ := newTestController(t, api)
	require.NoError(t, c.storage.StoreMnemonic(testMnemonic))

	require.NoError(t, c.RegisterDevice(context.Background()))
	require.Equal(t, DeviceActive, c.State().Device)

	devices, err := c.GetActiveDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
}

func TestController_ForgetAccount_ResetsEverything(t *testing.T) {
	api := newFakeAPIClient()
	api.summary = AccountSummary{Account: AccountActive, Subscription: SubscriptionActive, Device: DeviceActive}
	c, store := newTestController(t, api)

	require.NoError(t, c.StoreAccount(context.Background(), testMnemonic))
	require.NoError(t, store.InsertIssuedTicketbook(credentials.Ticketbook{
		ID:             1,
		Type:           credentials.TicketMixnetEntry,
		TotalTickets:   10,
		IssuedAt:       time.Now(),
		ExpirationDate: time.Now().Add(24 * time.Hour),
	}))

	require.NoError(t, c.ForgetAccount(context.Background()))

	require.False(t, c.IsAccountStored())
	require.Equal(t, MnemonicNotStored, c.State().Mnemonic)

	tickets, err := store.AvailableTicketbooks(time.Now())
	require.NoError(t, err)
	require.Empty(t, tickets)
}

func TestController_RequestZkNym_ImportsTicketbooksAndClearsPending(t *testing.T) {
	api := newFakeAPIClient()
	c, store := newTestController(t, api)
	require.NoError(t, c.storage.StoreMnemonic(testMnemonic))

	err := c.RequestZkNym(context.Background())
	require.NoError(t, err)

	state := c.State()
	require.False(t, state.PendingZkNym)
	require.Equal(t, ZkNymResultOk, state.RequestZkNymResult.Kind)
	require.Len(t, state.RequestZkNymResult.IDs, len(credentials.AllTicketTypes))

	tickets, err := store.AvailableTicketbooks(time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, tickets)
}

func TestController_ReadyToConnect_FalseUntilFullyProvisioned(t *testing.T) {
	api := newFakeAPIClient()
	c, _ := newTestController(t, api)
	require.False(t, c.ReadyToConnect())

	api.summary = AccountSummary{Account: AccountActive, Subscription: SubscriptionActive, Device: DeviceActive}
	require.NoError(t, c.StoreAccount(context.Background(), testMnemonic))
	require.True(t, c.ReadyToConnect())
}

func TestController_GetUsage_RequiresStoredAccount(t *testing.T) {
	api := newFakeAPIClient()
	c, _ := newTestController(t, api)

	_, err := c.GetUsage(context.Background())
	require.ErrorIs(t, err, ErrNoAccountStored)

	require.NoError(t, c.storage.StoreMnemonic(testMnemonic))
	_, err = c.GetUsage(context.Background())
	require.NoError(t, err)
}

func TestController_GetZkNymById_FindsConfirmedID(t *testing.T) {
	api := newFakeAPIClient()
	c, _ := newTestController(t, api)
	require.NoError(t, c.storage.StoreMnemonic(testMnemonic))
	require.NoError(t, c.RequestZkNym(context.Background()))

	ids := c.State().RequestZkNymResult.IDs
	require.NotEmpty(t, ids)

	_, found := c.GetZkNymById(ids[0])
	require.True(t, found)

	_, found = c.GetZkNymById("not-a-real-id")
	require.False(t, found)
}
