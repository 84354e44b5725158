package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nymtech/nym-vpnd-core/internal/credentials"
)

// AccountSummary is the remote account/device/subscription state the API
// reports back for SyncAccountState/SyncDeviceState (spec §4.L).
type AccountSummary struct {
	Account      AccountStatus
	Subscription SubscriptionStatus
	Device       DeviceStatus
}

// Device is one device registered against an account (spec §4.M
// getDevices/getActiveDevices).
type Device struct {
	Identity string
	Active   bool
}

// WithdrawalRequest is one zk-nym withdrawal request for a single ticket
// type (spec §4.L step 2).
type WithdrawalRequest struct {
	Type           credentials.TicketType
	ExpirationDate time.Time
	BlindedMessage []byte
}

// WithdrawalAccepted is the server's acknowledgement of one accepted
// WithdrawalRequest (spec §4.L step 3: "each accepted request yields a
// server-side id").
type WithdrawalAccepted struct {
	Type credentials.TicketType
	ID   string
}

// ZkNymStatus is the polling status of one in-flight withdrawal (spec §4.L
// step 4: "poll ... until status != Pending").
type ZkNymStatus int

const (
	ZkNymPending ZkNymStatus = iota
	ZkNymActive
	ZkNymFailed
)

// PartialVerificationKeys is what the API returns once a withdrawal is
// Active: the per-issuer partial keys plus the epoch they belong to (spec
// §4.L step 4).
type PartialVerificationKeys struct {
	EpochID      uint64
	Shares       [][]byte
	TotalTickets uint32
	TicketSize   uint64
}

// Usage is one billing period's subscription usage record (spec §4.L:
// "GetUsage").
type Usage struct {
	ID         string
	CreatedOn  time.Time
	ValidUntil time.Time
	UsedBytes  uint64
}

// APIClient is the VPN API surface the account controller talks to (spec
// §4.L: "HTTP client to the VPN API"). A real implementation lives in
// httpAPIClient; tests substitute a fake.
type APIClient interface {
	GetAccountSummary(ctx context.Context, mnemonicID string) (AccountSummary, error)
	RegisterDevice(ctx context.Context, mnemonicID string, device DeviceKey) error
	GetDevices(ctx context.Context, mnemonicID string) ([]Device, error)
	GetActiveDevices(ctx context.Context, mnemonicID string) ([]Device, error)
	GetUsage(ctx context.Context, mnemonicID string) ([]Usage, error)

	RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (WithdrawalAccepted, error)
	PollZkNymStatus(ctx context.Context, id string) (ZkNymStatus, error)
	GetPartialVerificationKeys(ctx context.Context, id string) (PartialVerificationKeys, error)
	ConfirmZkNymDownloaded(ctx context.Context, id string) error
}

// httpAPIClient is the real APIClient, a thin JSON-over-HTTP client in the
// same request/retry style internal/probing's DefaultListenFuncWithRetry
// uses for transient-failure recovery.
type httpAPIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPAPIClient returns an APIClient backed by the VPN API at baseURL.
func NewHTTPAPIClient(baseURL string, httpClient *http.Client) APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &httpAPIClient{baseURL: baseURL, httpClient: httpClient}
}

func (c *httpAPIClient) retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.Multiplier = 2.0
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

func (c *httpAPIClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	op := func() error {
		var reader *bytes.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("account: marshal request: %w", err))
			}
			reader = bytes.NewReader(data)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("account: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("account: %s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("account: %s %s: server error %d", method, path, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("account: %s %s: client error %d", method, path, resp.StatusCode))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("account: decode response: %w", err))
			}
		}
		return nil
	}

	return backoff.Retry(op, c.retryPolicy(ctx))
}

func (c *httpAPIClient) GetAccountSummary(ctx context.Context, mnemonicID string) (AccountSummary, error) {
	var out AccountSummary
	err := c.doJSON(ctx, http.MethodGet, "/v1/accounts/"+mnemonicID, nil, &out)
	return out, err
}

func (c *httpAPIClient) RegisterDevice(ctx context.Context, mnemonicID string, device DeviceKey) error {
	body := map[string]string{"identity": device.Public.String()}
	return c.doJSON(ctx, http.MethodPost, "/v1/accounts/"+mnemonicID+"/devices", body, nil)
}

func (c *httpAPIClient) GetDevices(ctx context.Context, mnemonicID string) ([]Device, error) {
	var out []Device
	err := c.doJSON(ctx, http.MethodGet, "/v1/accounts/"+mnemonicID+"/devices", nil, &out)
	return out, err
}

func (c *httpAPIClient) GetActiveDevices(ctx context.Context, mnemonicID string) ([]Device, error) {
	var out []Device
	err := c.doJSON(ctx, http.MethodGet, "/v1/accounts/"+mnemonicID+"/devices/active", nil, &out)
	return out, err
}

func (c *httpAPIClient) GetUsage(ctx context.Context, mnemonicID string) ([]Usage, error) {
	var out []Usage
	err := c.doJSON(ctx, http.MethodGet, "/v1/accounts/"+mnemonicID+"/usage", nil, &out)
	return out, err
}

func (c *httpAPIClient) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (WithdrawalAccepted, error) {
	var out WithdrawalAccepted
	err := c.doJSON(ctx, http.MethodPost, "/v1/zk-nyms/withdrawals", req, &out)
	return out, err
}

func (c *httpAPIClient) PollZkNymStatus(ctx context.Context, id string) (ZkNymStatus, error) {
	var out struct{ Status ZkNymStatus }
	err := c.doJSON(ctx, http.MethodGet, "/v1/zk-nyms/withdrawals/"+id, nil, &out)
	return out.Status, err
}

func (c *httpAPIClient) GetPartialVerificationKeys(ctx context.Context, id string) (PartialVerificationKeys, error) {
	var out PartialVerificationKeys
	err := c.doJSON(ctx, http.MethodGet, "/v1/zk-nyms/withdrawals/"+id+"/verification-keys", nil, &out)
	return out, err
}

func (c *httpAPIClient) ConfirmZkNymDownloaded(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/zk-nyms/withdrawals/"+id+"/confirm", nil, nil)
}
