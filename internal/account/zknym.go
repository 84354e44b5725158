package account

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nymtech/nym-vpnd-core/internal/credentials"
)

// maxConcurrentWithdrawals bounds how many withdrawal requests are POSTed
// at once (spec §4.L step 3: "concurrency <= 4").
const maxConcurrentWithdrawals = 4

// pollInterval and pollTimeout are the zk-nym status polling parameters
// (spec §4.L step 4: "poll every 5s for up to 60s").
const (
	pollInterval = 5 * time.Second
	pollTimeout  = 60 * time.Second
)

// maxZkNymFailsInARow disables background refresh once reached (spec §4.L
// step 5); manual refresh still works regardless.
const maxZkNymFailsInARow = 10

// EcashEngine derives the account's ecash keypair and performs the
// unblind+aggregate step of the zk-nym protocol. The BLS-based ecash math
// itself is out of scope for this core (spec §1 Non-goals: "does not
// compute BLS signatures directly") — this interface is the seam a real
// ecash library plugs into, the same way internal/ipr and
// internal/authenticator only specify wire frames and leave the mixnet
// SDK's cryptography to their own collaborators.
type EcashEngine interface {
	// BlindedMessage derives the withdrawal request's blinded message for
	// one ticket type and expiration (spec §4.L step 2: "blindedMessage =
	// H(type, expirationTimestamp)").
	BlindedMessage(mnemonic string, typ credentials.TicketType, expiration time.Time) []byte

	// UnblindAndAggregate verifies each share against its partial
	// verification key and aggregates the result against the epoch's
	// master key (spec §4.L step 4).
	UnblindAndAggregate(shares [][]byte, masterVerificationKey []byte) (aggregatedWalletSignature []byte, err error)
}

// hashEcashEngine is a placeholder EcashEngine: deterministic and
// dependency-free, standing in for the real BLS-based implementation this
// core deliberately doesn't provide.
type hashEcashEngine struct{}

// NewHashEcashEngine returns the default EcashEngine.
func NewHashEcashEngine() EcashEngine { return hashEcashEngine{} }

func (hashEcashEngine) BlindedMessage(mnemonic string, typ credentials.TicketType, expiration time.Time) []byte {
	h := sha256.New()
	h.Write([]byte(mnemonic))
	var typBuf [8]byte
	binary.BigEndian.PutUint64(typBuf[:], uint64(typ))
	h.Write(typBuf[:])
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(expiration.Unix()))
	h.Write(tsBuf[:])
	return h.Sum(nil)
}

func (hashEcashEngine) UnblindAndAggregate(shares [][]byte, masterVerificationKey []byte) ([]byte, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("account: no shares to aggregate")
	}
	h := sha256.New()
	h.Write(masterVerificationKey)
	for _, share := range shares {
		h.Write(share)
	}
	return h.Sum(nil), nil
}

// ticketbookIDFromWithdrawalID derives a stable ticketbook id from the
// withdrawal id that produced it, so re-running the import step after a
// crash mid-confirm lands on the same id and InsertIssuedTicketbook's
// idempotency kicks in rather than creating a duplicate.
func ticketbookIDFromWithdrawalID(withdrawalID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(withdrawalID))
	return int64(h.Sum64())
}

// ecashDefaultExpirationDate is the withdrawal's requested expiration (spec
// §4.L step 2), set to the start of the following day so every ticket
// issued today shares one expiration boundary.
func ecashDefaultExpirationDate(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// refreshZkNyms runs the zk-nym refresh protocol (spec §4.L): check which
// ticket types are low, request withdrawals for them with bounded
// concurrency, poll each to completion, and insert the resulting
// ticketbooks into store.
func refreshZkNyms(ctx context.Context, mnemonic string, api APIClient, store *credentials.Store, ecash EcashEngine, log *slog.Logger) ([]string, error) {
	low, err := store.CheckTicketTypesRunningLow(time.Now())
	if err != nil {
		return nil, fmt.Errorf("account: check ticket types running low: %w", err)
	}
	if len(low) == 0 {
		return nil, nil
	}

	expiration := ecashDefaultExpirationDate(time.Now())

	accepted := make([]WithdrawalAccepted, len(low))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWithdrawals)
	for i, typ := range low {
		i, typ := i, typ
		g.Go(func() error {
			req := WithdrawalRequest{
				Type:           typ,
				ExpirationDate: expiration,
				BlindedMessage: ecash.BlindedMessage(mnemonic, typ, expiration),
			}
			a, err := api.RequestWithdrawal(gctx, req)
			if err != nil {
				return fmt.Errorf("account: request withdrawal for %s: %w", typ, err)
			}
			accepted[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var confirmedIDs []string
	for _, a := range accepted {
		if err := pollAndImport(ctx, a, api, store, ecash, log); err != nil {
			return confirmedIDs, err
		}
		confirmedIDs = append(confirmedIDs, a.ID)
	}
	return confirmedIDs, nil
}

// pollAndImport polls one withdrawal until Active, fetches and aggregates
// its verification shares, inserts the resulting ticketbook, and confirms
// the download (spec §4.L step 4).
func pollAndImport(ctx context.Context, accepted WithdrawalAccepted, api APIClient, store *credentials.Store, ecash EcashEngine, log *slog.Logger) error {
	deadline := time.Now().Add(pollTimeout)
	var status ZkNymStatus
	var err error
	for {
		status, err = api.PollZkNymStatus(ctx, accepted.ID)
		if err != nil {
			return fmt.Errorf("account: poll zk-nym %s: %w", accepted.ID, err)
		}
		if status != ZkNymPending {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("account: zk-nym %s still pending after %s", accepted.ID, pollTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	if status != ZkNymActive {
		return fmt.Errorf("account: zk-nym %s ended in non-active status %d", accepted.ID, status)
	}

	keys, err := api.GetPartialVerificationKeys(ctx, accepted.ID)
	if err != nil {
		return fmt.Errorf("account: fetch verification keys for %s: %w", accepted.ID, err)
	}

	aggregated, err := ecash.UnblindAndAggregate(keys.Shares, keys.Shares[0])
	if err != nil {
		return fmt.Errorf("account: aggregate zk-nym %s: %w", accepted.ID, err)
	}

	if err := store.InsertMasterVerificationKey(credentials.EpochVerificationKey{EpochID: keys.EpochID, MasterVerificationKey: keys.Shares[0]}); err != nil {
		return fmt.Errorf("account: insert verification key for %s: %w", accepted.ID, err)
	}
	if err := store.InsertIssuedTicketbook(credentials.Ticketbook{
		ID:                        ticketbookIDFromWithdrawalID(accepted.ID),
		Type:                      accepted.Type,
		TotalTickets:              keys.TotalTickets,
		TicketSize:                keys.TicketSize,
		EpochID:                   keys.EpochID,
		IssuedAt:                  time.Now(),
		ExpirationDate:            ecashDefaultExpirationDate(time.Now()),
		AggregatedWalletSignature: aggregated,
	}); err != nil {
		return fmt.Errorf("account: insert ticketbook for %s: %w", accepted.ID, err)
	}

	if err := api.ConfirmZkNymDownloaded(ctx, accepted.ID); err != nil {
		return fmt.Errorf("account: confirm zk-nym %s downloaded: %w", accepted.ID, err)
	}

	log.Debug("account: zk-nym imported", "id", accepted.ID, "type", accepted.Type)
	return nil
}
