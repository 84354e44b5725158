package account

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"

	"github.com/nymtech/nym-vpnd-core/internal/credentials"
)

// ticketsLowCacheKey is the ticketsLowCache's sole entry; ReadyToConnect can
// be polled often (the control surface's isReadyToConnect/status calls), and
// each miss means a full bbolt scan plus zstd decompression of every
// ticketbook record, so short-TTL caching is worth it the same way
// internal/gateway.Directory caches ListGateways.
const ticketsLowCacheKey = "low"

// ticketsLowCacheTTL bounds how stale a ReadyToConnect/sufficientTickets
// check can be; short enough that a zk-nym refresh completing is reflected
// within one UI poll interval.
const ticketsLowCacheTTL = 2 * time.Second

// mnemonicIDFromMnemonic derives the locally-known account identifier from
// a mnemonic: a stable fingerprint usable before the first successful
// SyncAccountState has told us anything the server-side account id.
func mnemonicIDFromMnemonic(mnemonic string) string {
	sum := sha256.Sum256([]byte(mnemonic))
	return hex.EncodeToString(sum[:16])
}

// accountSyncInterval and zkNymRefreshInterval are the controller's two
// background timers (spec §4.L: "5 min account-state sync, 6 min zk-nym
// refresh").
const (
	accountSyncInterval  = 5 * time.Minute
	zkNymRefreshInterval = 6 * time.Minute
)

// ErrNoAccountStored is returned by operations that require a stored
// mnemonic (sync, register, zk-nym) when none has been stored yet.
var ErrNoAccountStored = errors.New("account: no account stored")

// Controller is the account command-queue daemon (spec §4.L): it owns the
// mnemonic/device-key storage, talks to the VPN API, runs the zk-nym
// refresh protocol, and publishes the resulting State through SharedState.
// Every exported method is safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	storage   *Storage
	credStore *credentials.Store
	api       APIClient
	ecash     EcashEngine

	state *SharedState
	log   *slog.Logger
	clock clockwork.Clock

	credentialsMode        bool
	backgroundZkNymRefresh bool
	zkNymFailsInARow       int

	running         *runningCommands
	ticketsLowCache *ttlcache.Cache[string, []credentials.TicketType]

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithCredentialsMode enables the "sufficient tickets" term of
// ReadyToConnect (spec §4.L: "if credentials mode").
func WithCredentialsMode(enabled bool) Option {
	return func(c *Controller) { c.credentialsMode = enabled }
}

// WithBackgroundZkNymRefresh enables the 6-minute background refresh timer.
// Manual RequestZkNym calls work regardless of this setting.
func WithBackgroundZkNymRefresh(enabled bool) Option {
	return func(c *Controller) { c.backgroundZkNymRefresh = enabled }
}

// WithClock overrides the controller's clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithEcashEngine overrides the default zk-nym ecash engine, for tests.
func WithEcashEngine(ecash EcashEngine) Option {
	return func(c *Controller) { c.ecash = ecash }
}

// NewController wires storage, credStore, and api into a Controller in the
// zero State. Call Run to start the background loop.
func NewController(storage *Storage, credStore *credentials.Store, api APIClient, log *slog.Logger, opts ...Option) *Controller {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cache := ttlcache.New[string, []credentials.TicketType](
		ttlcache.WithTTL[string, []credentials.TicketType](ticketsLowCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, []credentials.TicketType](),
	)
	go cache.Start()
	c := &Controller{
		storage:         storage,
		credStore:       credStore,
		api:             api,
		ecash:           NewHashEcashEngine(),
		state:           NewSharedState(),
		log:             log,
		clock:           clockwork.NewRealClock(),
		running:         newRunningCommands(),
		ticketsLowCache: cache,
		rootCtx:         ctx,
		rootCancel:      cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current account state snapshot.
func (c *Controller) State() State { return c.state.Get() }

// Subscribe registers for every future state change (spec §4.M
// getAccountState streaming variant).
func (c *Controller) Subscribe() (<-chan State, func()) { return c.state.Subscribe() }

// ReadyToConnect reports whether the tunnel is allowed to connect right now
// (spec §4.L predicate, wired into vpn.Controller's readyToConnect param).
func (c *Controller) ReadyToConnect() bool {
	sufficient, _ := c.sufficientTickets()
	return c.state.Get().ReadyToConnect(c.credentialsMode, sufficient)
}

func (c *Controller) sufficientTickets() (bool, error) {
	if item := c.ticketsLowCache.Get(ticketsLowCacheKey); item != nil {
		return len(item.Value()) == 0, nil
	}
	low, err := c.credStore.CheckTicketTypesRunningLow(c.clock.Now())
	if err != nil {
		return false, err
	}
	c.ticketsLowCache.Set(ticketsLowCacheKey, low, ttlcache.DefaultTTL)
	return len(low) == 0, nil
}

// Run starts the background sync/refresh loop. It returns once ctx is
// canceled or Close is called; callers typically run it in its own
// goroutine.
func (c *Controller) Run(ctx context.Context) {
	accountTicker := c.clock.NewTicker(accountSyncInterval)
	defer accountTicker.Stop()
	zkNymTicker := c.clock.NewTicker(zkNymRefreshInterval)
	defer zkNymTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.rootCtx.Done():
			return
		case <-accountTicker.Chan():
			if _, err := c.storage.LoadMnemonic(); err != nil {
				continue
			}
			if err := c.runCoalesced(ctx, CommandSyncAccountState, c.syncAccountState); err != nil {
				c.log.Warn("account: background sync failed", "error", err)
			}
		case <-zkNymTicker.Chan():
			if !c.backgroundZkNymRefresh || c.zkNymFailsInARowSnapshot() >= maxZkNymFailsInARow {
				continue
			}
			if _, err := c.storage.LoadMnemonic(); err != nil {
				continue
			}
			if err := c.runCoalesced(ctx, CommandRequestZkNym, c.requestZkNym); err != nil {
				c.log.Warn("account: background zk-nym refresh failed", "error", err)
			}
		}
	}
}

// Close stops the background loop and the tickets-low cache; it does not
// wait for the loop to return. Commands already running keep the context
// they were started with, so cancel that context to stop them.
func (c *Controller) Close() {
	c.rootCancel()
	c.ticketsLowCache.Stop()
}

func (c *Controller) zkNymFailsInARowSnapshot() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zkNymFailsInARow
}

// runCoalesced is the coalescing entry point every multi-caller command
// (sync, register, zk-nym) goes through: the first caller for a kind
// actually runs fn; concurrent callers for the same kind piggyback on its
// result instead of starting a redundant run (spec §4.L command queue).
func (c *Controller) runCoalesced(ctx context.Context, kind CommandKind, fn func(context.Context) error) error {
	resultCh := make(chan error, 1)
	outcome := c.running.add(kind, waiter{resultCh: resultCh})
	if outcome == IsDuplicate {
		select {
		case err := <-resultCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		err := fn(ctx)
		waiters := c.running.finish(kind)
		notifyAll(waiters, err)
	}()

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StoreAccount validates and persists mnemonic, then kicks off an initial
// sync (spec §4.L StoreAccount).
func (c *Controller) StoreAccount(ctx context.Context, mnemonic string) error {
	if err := c.storage.StoreMnemonic(mnemonic); err != nil {
		return err
	}
	c.state.Update(func(s State) State {
		s.MnemonicID = mnemonicIDFromMnemonic(mnemonic)
		s.Mnemonic = MnemonicStored
		return s
	})
	return c.runCoalesced(ctx, CommandSyncAccountState, c.syncAccountState)
}

// ForgetAccount tears the account down entirely: removes the mnemonic and
// device key, resets credential storage, then re-initializes a fresh device
// identity so the daemon is ready to accept a new StoreAccount (spec §4.L
// ForgetAccount / §4.M forgetAccount).
func (c *Controller) ForgetAccount(ctx context.Context) error {
	if err := c.storage.RemoveAllAccountFiles(); err != nil {
		c.log.Warn("account: forget account: file cleanup incomplete", "error", err)
	}
	if err := c.credStore.Reset(); err != nil {
		return fmt.Errorf("account: reset credential storage: %w", err)
	}
	c.ticketsLowCache.Delete(ticketsLowCacheKey)
	if _, err := c.storage.InitKeys(); err != nil {
		return fmt.Errorf("account: reinit device keys: %w", err)
	}

	c.mu.Lock()
	c.zkNymFailsInARow = 0
	c.mu.Unlock()

	c.state.Reset()
	return nil
}

// IsAccountStored reports whether a mnemonic has been stored (spec §4.M
// isAccountStored).
func (c *Controller) IsAccountStored() bool {
	_, err := c.storage.LoadMnemonic()
	return err == nil
}

// GetDeviceIdentity returns the device's base58 public identity, creating
// the keypair on first call (spec §3: "getDeviceIdentity returns a
// string").
func (c *Controller) GetDeviceIdentity() (string, error) {
	dk, err := c.storage.InitKeys()
	if err != nil {
		return "", err
	}
	return dk.Public.String(), nil
}

// ResetDeviceIdentity rotates the device keypair (spec §4.M
// resetDeviceIdentity). Callers are expected to RegisterDevice again
// afterward.
func (c *Controller) ResetDeviceIdentity(ctx context.Context) (string, error) {
	dk, err := c.storage.ResetDeviceIdentity()
	if err != nil {
		return "", err
	}
	c.state.Update(func(s State) State {
		s.Device = DeviceNotRegistered
		return s
	})
	return dk.Public.String(), nil
}

// SyncAccountState re-fetches the remote account summary (spec §4.L
// SyncAccountState / §4.M's implicit account-state sync command).
func (c *Controller) SyncAccountState(ctx context.Context) error {
	return c.runCoalesced(ctx, CommandSyncAccountState, c.syncAccountState)
}

func (c *Controller) syncAccountState(ctx context.Context) error {
	mnemonicID, err := c.mnemonicID()
	if err != nil {
		return err
	}
	summary, err := c.api.GetAccountSummary(ctx, mnemonicID)
	if err != nil {
		return fmt.Errorf("account: sync account state: %w", err)
	}
	c.state.Update(func(s State) State {
		s.MnemonicID = mnemonicID
		s.Mnemonic = MnemonicStored
		s.Account = summary.Account
		s.Subscription = summary.Subscription
		s.Device = summary.Device
		return s
	})
	return nil
}

// SyncDeviceState re-checks this device's registration status (spec §4.L
// SyncDeviceState).
func (c *Controller) SyncDeviceState(ctx context.Context) error {
	return c.runCoalesced(ctx, CommandSyncDeviceState, c.syncDeviceState)
}

func (c *Controller) syncDeviceState(ctx context.Context) error {
	mnemonicID, err := c.mnemonicID()
	if err != nil {
		return err
	}
	identity, err := c.GetDeviceIdentity()
	if err != nil {
		return err
	}
	active, err := c.api.GetActiveDevices(ctx, mnemonicID)
	if err != nil {
		return fmt.Errorf("account: sync device state: %w", err)
	}
	status := DeviceInactive
	for _, d := range active {
		if d.Identity == identity {
			status = DeviceActive
			break
		}
	}
	c.state.Update(func(s State) State {
		s.Device = status
		return s
	})
	return nil
}

// RegisterDevice registers this device's identity against the account
// (spec §4.L RegisterDevice / §4.M registerDevice).
func (c *Controller) RegisterDevice(ctx context.Context) error {
	return c.runCoalesced(ctx, CommandRegisterDevice, c.registerDevice)
}

func (c *Controller) registerDevice(ctx context.Context) error {
	mnemonicID, err := c.mnemonicID()
	if err != nil {
		return err
	}
	dk, err := c.storage.InitKeys()
	if err != nil {
		return err
	}
	if err := c.api.RegisterDevice(ctx, mnemonicID, dk); err != nil {
		return fmt.Errorf("account: register device: %w", err)
	}
	return c.syncDeviceState(ctx)
}

// GetDevices lists every device registered against the account (spec §4.M
// getDevices).
func (c *Controller) GetDevices(ctx context.Context) ([]Device, error) {
	mnemonicID, err := c.mnemonicID()
	if err != nil {
		return nil, err
	}
	return c.api.GetDevices(ctx, mnemonicID)
}

// GetActiveDevices lists only the active devices (spec §4.M
// getActiveDevices).
func (c *Controller) GetActiveDevices(ctx context.Context) ([]Device, error) {
	mnemonicID, err := c.mnemonicID()
	if err != nil {
		return nil, err
	}
	return c.api.GetActiveDevices(ctx, mnemonicID)
}

// GetUsage returns the account's billing-period usage history (spec §4.L
// GetUsage).
func (c *Controller) GetUsage(ctx context.Context) ([]Usage, error) {
	mnemonicID, err := c.mnemonicID()
	if err != nil {
		return nil, err
	}
	return c.api.GetUsage(ctx, mnemonicID)
}

// RequestZkNym manually triggers a zk-nym refresh, bypassing the
// backgroundZkNymRefresh gate and zkNymFailsInARow disable threshold (spec
// §4.M requestZkNym: "manual refresh works regardless").
func (c *Controller) RequestZkNym(ctx context.Context) error {
	return c.runCoalesced(ctx, CommandRequestZkNym, c.requestZkNym)
}

func (c *Controller) requestZkNym(ctx context.Context) error {
	mnemonic, err := c.storage.LoadMnemonic()
	if err != nil {
		return err
	}

	c.state.Update(func(s State) State {
		s.PendingZkNym = true
		s.RequestZkNymResult = ZkNymResult{Kind: ZkNymResultInProgress}
		return s
	})

	ids, err := refreshZkNyms(ctx, mnemonic, c.api, c.credStore, c.ecash, c.log)
	c.ticketsLowCache.Delete(ticketsLowCacheKey)

	c.mu.Lock()
	if err != nil {
		c.zkNymFailsInARow++
	} else {
		c.zkNymFailsInARow = 0
	}
	c.mu.Unlock()

	result := ZkNymResult{Kind: ZkNymResultOk, IDs: ids}
	if err != nil {
		result = ZkNymResult{Kind: ZkNymResultErr, Summary: err.Error()}
	}
	c.state.Update(func(s State) State {
		s.PendingZkNym = false
		s.RequestZkNymResult = result
		return s
	})
	return err
}

// GetZkNymById reports the outcome of the most recent RequestZkNym batch
// (spec §4.M getZkNymById). A successful batch is returned only when id is
// one of its IDs; an in-progress or failed batch is returned for any id.
func (c *Controller) GetZkNymById(id string) (ZkNymResult, bool) {
	result := c.state.Get().RequestZkNymResult
	if result.Kind != ZkNymResultOk {
		return result, result.Kind != ZkNymResultNone
	}
	for _, got := range result.IDs {
		if got == id {
			return result, true
		}
	}
	return ZkNymResult{}, false
}

// ConfirmZkNymDownloaded tells the API this zk-nym has been consumed
// locally (spec §4.M confirmZkNymDownloaded).
func (c *Controller) ConfirmZkNymDownloaded(ctx context.Context, id string) error {
	return c.api.ConfirmZkNymDownloaded(ctx, id)
}

// GetAvailableTickets returns the current per-type ticket inventory (spec
// §4.M getAvailableTickets).
func (c *Controller) GetAvailableTickets(ctx context.Context) (credentials.AvailableTicketbooks, error) {
	return c.credStore.AvailableTicketbooks(c.clock.Now())
}

func (c *Controller) mnemonicID() (string, error) {
	if id := c.state.Get().MnemonicID; id != "" {
		return id, nil
	}
	mnemonic, err := c.storage.LoadMnemonic()
	if err != nil {
		return "", ErrNoAccountStored
	}
	return mnemonicIDFromMnemonic(mnemonic), nil
}
