package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nymtech/nym-vpnd-core/internal/account"
	"github.com/nymtech/nym-vpnd-core/internal/config"
	"github.com/nymtech/nym-vpnd-core/internal/credentials"
	"github.com/nymtech/nym-vpnd-core/internal/gateway"
	"github.com/nymtech/nym-vpnd-core/internal/monitor"
	"github.com/nymtech/nym-vpnd-core/internal/tunnel"
	"github.com/nymtech/nym-vpnd-core/internal/vpn"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

type fakeGatewayProvider struct{ gateways []gateway.Descriptor }

func (f *fakeGatewayProvider) ListGateways(ctx context.Context) ([]gateway.Descriptor, error) {
	return f.gateways, nil
}

func testDirectory() *gateway.Directory {
	return gateway.NewDirectory(&fakeGatewayProvider{gateways: []gateway.Descriptor{
		{Identity: gateway.NodeIdentity{1}, Host: "10.0.0.1", Location: "CH", Probe: &gateway.ProbeOutcome{CanConnect: true}},
		{Identity: gateway.NodeIdentity{2}, Host: "10.0.0.2", Location: "DE", Probe: &gateway.ProbeOutcome{CanConnect: true}},
	}}, time.Minute, nil)
}

type fakeAccountAPI struct{}

func (fakeAccountAPI) GetAccountSummary(ctx context.Context, mnemonicID string) (account.AccountSummary, error) {
	return account.AccountSummary{Account: account.AccountActive, Subscription: account.SubscriptionActive, Device: account.DeviceActive}, nil
}
func (fakeAccountAPI) RegisterDevice(ctx context.Context, mnemonicID string, device account.DeviceKey) error {
	return nil
}
func (fakeAccountAPI) GetDevices(ctx context.Context, mnemonicID string) ([]account.Device, error) {
	return nil, nil
}
func (fakeAccountAPI) GetActiveDevices(ctx context.Context, mnemonicID string) ([]account.Device, error) {
	return nil, nil
}
func (fakeAccountAPI) GetUsage(ctx context.Context, mnemonicID string) ([]account.Usage, error) {
	return nil, nil
}
func (fakeAccountAPI) RequestWithdrawal(ctx context.Context, req account.WithdrawalRequest) (account.WithdrawalAccepted, error) {
	return account.WithdrawalAccepted{Type: req.Type, ID: "withdrawal-" + req.Type.String()}, nil
}
func (fakeAccountAPI) PollZkNymStatus(ctx context.Context, id string) (account.ZkNymStatus, error) {
	return account.ZkNymActive, nil
}
func (fakeAccountAPI) GetPartialVerificationKeys(ctx context.Context, id string) (account.PartialVerificationKeys, error) {
	return account.PartialVerificationKeys{EpochID: 1, Shares: [][]byte{[]byte("a"), []byte("b")}, TotalTickets: 1000, TicketSize: 512}, nil
}
func (fakeAccountAPI) ConfirmZkNymDownloaded(ctx context.Context, id string) error { return nil }

func testHandler(t *testing.T) *handler {
	t.Helper()
	storage := account.NewStorage(t.TempDir())
	credStore, err := credentials.Open(t.TempDir() + "/credentials.db")
	require.NoError(t, err)
	t.Cleanup(func() { credStore.Close() })

	acc := account.NewController(storage, credStore, fakeAccountAPI{}, nil)
	t.Cleanup(acc.Close)

	vpnCtrl := vpn.NewController(tunnel.Deps{}, func() bool { return true }, nil)
	t.Cleanup(vpnCtrl.Close)

	dir := testDirectory()
	t.Cleanup(dir.Close)

	return &handler{
		deps: Deps{
			VPN:      vpnCtrl,
			Account:  acc,
			Gateways: dir,
			SetNetwork: func(name string) error {
				return nil
			},
			ConnectionStatus: newStatusBroadcaster[monitor.Status](),
		},
		log: nil,
	}
}

func TestServeSetNetwork(t *testing.T) {
	h := testHandler(t)

	body, _ := json.Marshal(setNetworkRequest{Name: config.EnvMainnet})
	req := httptest.NewRequest(http.MethodPost, "/v1/network", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.serveSetNetwork(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	body, _ = json.Marshal(setNetworkRequest{Name: "not-a-real-network"})
	req = httptest.NewRequest(http.MethodPost, "/v1/network", bytes.NewReader(body))
	w = httptest.NewRecorder()
	h.serveSetNetwork(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServeConnect_RefusesWhenNotReady(t *testing.T) {
	h := testHandler(t)
	h.deps.VPN = vpn.NewController(tunnel.Deps{}, func() bool { return false }, nil)
	t.Cleanup(h.deps.VPN.Close)

	body, _ := json.Marshal(connectRequest{})
	req := httptest.NewRequest(http.MethodPost, "/v1/connect", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.serveConnect(w, req)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestServeDisconnect_ConflictWhenNotConnected(t *testing.T) {
	h := testHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/disconnect", nil)
	w := httptest.NewRecorder()
	h.serveDisconnect(w, req)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestServeStatus_ReportsDisconnected(t *testing.T) {
	h := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	w := httptest.NewRecorder()
	h.serveStatus(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp stateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "disconnected", resp.Phase)
}

func TestServeListGatewaysAndCountries(t *testing.T) {
	h := testHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/gateways", nil)
	w := httptest.NewRecorder()
	h.serveListGateways(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var gateways []gatewayResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gateways))
	require.Len(t, gateways, 2)

	req = httptest.NewRequest(http.MethodGet, "/v1/countries", nil)
	w = httptest.NewRecorder()
	h.serveListCountries(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var countries []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &countries))
	require.ElementsMatch(t, []string{"CH", "DE"}, countries)
}

func TestServeAccount_StoreThenGetState(t *testing.T) {
	h := testHandler(t)

	body, _ := json.Marshal(storeAccountRequest{Mnemonic: testMnemonic})
	req := httptest.NewRequest(http.MethodPost, "/v1/account", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.serveAccount(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/account", nil)
	w = httptest.NewRecorder()
	h.serveAccount(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var state accountStateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	require.True(t, state.Stored)
	require.NotEmpty(t, state.MnemonicID)
}

func TestServeGetUsage_RequiresStoredAccount(t *testing.T) {
	h := testHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/account/usage", nil)
	w := httptest.NewRecorder()
	h.serveGetUsage(w, req)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)

	body, _ := json.Marshal(storeAccountRequest{Mnemonic: testMnemonic})
	req = httptest.NewRequest(http.MethodPost, "/v1/account", bytes.NewReader(body))
	w = httptest.NewRecorder()
	h.serveAccount(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/account/usage", nil)
	w = httptest.NewRecorder()
	h.serveGetUsage(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestServeRegisterDeviceAndReadyToConnect(t *testing.T) {
	h := testHandler(t)

	body, _ := json.Marshal(storeAccountRequest{Mnemonic: testMnemonic})
	req := httptest.NewRequest(http.MethodPost, "/v1/account", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.serveAccount(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/devices/register", nil)
	w = httptest.NewRecorder()
	h.serveRegisterDevice(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/zknym/request", nil)
	w = httptest.NewRecorder()
	h.serveRequestZkNym(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/account/ready", nil)
	w = httptest.NewRecorder()
	h.serveIsReadyToConnect(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AccountStored  bool `json:"account_stored"`
		ReadyToConnect bool `json:"ready_to_connect"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.AccountStored)
	require.True(t, resp.ReadyToConnect)
}

func TestServeGetZkNymByID_NotFound(t *testing.T) {
	h := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/zknym/get?id=nope", nil)
	w := httptest.NewRecorder()
	h.serveGetZkNymByID(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeGetAvailableTickets(t *testing.T) {
	h := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/tickets", nil)
	w := httptest.NewRecorder()
	h.serveGetAvailableTickets(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
