package credentials

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketTicketbooks    = []byte("ticketbooks")
	bucketEpochKeys      = []byte("epoch_keys")
	bucketCoinIndexSigs  = []byte("coin_index_sigs")
	bucketExpirationSigs = []byte("expiration_sigs")
)

// ErrNotFound is returned by lookups for an id that has never been inserted.
var ErrNotFound = errors.New("credentials: not found")

// record is the JSON shape a Ticketbook is persisted as; the three
// signature blobs are zstd-compressed independently since they're the bulk
// of a ticketbook's size and the rest of the struct compresses poorly
// alongside them.
type record struct {
	Type           TicketType
	TotalTickets   uint32
	UsedTickets    uint32
	TicketSize     uint64
	IssuedAt       time.Time
	ExpirationDate time.Time
	EpochID        uint64

	AggregatedWalletSignature []byte
	CoinIndexSignatures       []byte
	ExpirationSignatures      []byte
}

// Store is the persistent ticketbook/epoch-key store (spec §4.K), backed by
// a single bbolt file with one bucket per kind of record it holds.
type Store struct {
	db  *bolt.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens (creating if necessary) the credentials database at path and
// ensures its buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("credentials: open %s: %w", path, err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("credentials: new zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("credentials: new zstd decoder: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketTicketbooks, bucketEpochKeys, bucketCoinIndexSigs, bucketExpirationSigs} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, enc: enc, dec: dec}, nil
}

// Close releases the underlying database file and zstd resources.
func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

func ticketbookKey(id int64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(id))
	return k[:]
}

func epochKey(epochID uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], epochID)
	return k[:]
}

// InsertIssuedTicketbook stores tb, idempotent by id (spec §4.K): a second
// insert under the same id is a no-op rather than an error, since the
// zk-nym refresh protocol may retry a confirm step after a partial failure.
func (s *Store) InsertIssuedTicketbook(tb Ticketbook) error {
	r := record{
		Type:                      tb.Type,
		TotalTickets:              tb.TotalTickets,
		UsedTickets:               tb.UsedTickets,
		TicketSize:                tb.TicketSize,
		IssuedAt:                  tb.IssuedAt,
		ExpirationDate:            tb.ExpirationDate,
		EpochID:                   tb.EpochID,
		AggregatedWalletSignature: s.enc.EncodeAll(tb.AggregatedWalletSignature, nil),
		CoinIndexSignatures:       s.enc.EncodeAll(tb.CoinIndexSignatures, nil),
		ExpirationSignatures:      s.enc.EncodeAll(tb.ExpirationSignatures, nil),
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("credentials: marshal ticketbook %d: %w", tb.ID, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTicketbooks)
		key := ticketbookKey(tb.ID)
		if b.Get(key) != nil {
			return nil
		}
		return b.Put(key, data)
	})
}

// InsertMasterVerificationKey stores vk, idempotent by epochId (spec §4.K).
func (s *Store) InsertMasterVerificationKey(vk EpochVerificationKey) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEpochKeys)
		key := epochKey(vk.EpochID)
		if b.Get(key) != nil {
			return nil
		}
		return b.Put(key, vk.MasterVerificationKey)
	})
}

// InsertCoinIndexSignatures stores the aggregated coin-index signatures for
// epochID, compressed the same way a ticketbook's own copy is.
func (s *Store) InsertCoinIndexSignatures(epochID uint64, sigs []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCoinIndexSigs).Put(epochKey(epochID), s.enc.EncodeAll(sigs, nil))
	})
}

// InsertExpirationDateSignatures stores the aggregated expiration-date
// signatures for epochID.
func (s *Store) InsertExpirationDateSignatures(epochID uint64, sigs []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketExpirationSigs).Put(epochKey(epochID), s.enc.EncodeAll(sigs, nil))
	})
}

// MasterVerificationKey looks up the verification key for epochID.
func (s *Store) MasterVerificationKey(epochID uint64) ([]byte, error) {
	var vk []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketEpochKeys).Get(epochKey(epochID))
		if v == nil {
			return ErrNotFound
		}
		vk = append([]byte(nil), v...)
		return nil
	})
	return vk, err
}

// AvailableTicketbooks returns every stored ticketbook enriched with its
// derived fields (spec §4.K).
func (s *Store) AvailableTicketbooks(now time.Time) (AvailableTicketbooks, error) {
	var out AvailableTicketbooks
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTicketbooks).ForEach(func(k, v []byte) error {
			id := int64(binary.BigEndian.Uint64(k))
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("credentials: unmarshal ticketbook %d: %w", id, err)
			}

			walletSig, err := s.dec.DecodeAll(r.AggregatedWalletSignature, nil)
			if err != nil {
				return fmt.Errorf("credentials: decompress ticketbook %d: %w", id, err)
			}
			coinIdx, err := s.dec.DecodeAll(r.CoinIndexSignatures, nil)
			if err != nil {
				return fmt.Errorf("credentials: decompress ticketbook %d coin-index sigs: %w", id, err)
			}
			expirationSigs, err := s.dec.DecodeAll(r.ExpirationSignatures, nil)
			if err != nil {
				return fmt.Errorf("credentials: decompress ticketbook %d expiration sigs: %w", id, err)
			}

			tb := Ticketbook{
				ID:                        id,
				Type:                      r.Type,
				TotalTickets:              r.TotalTickets,
				UsedTickets:               r.UsedTickets,
				TicketSize:                r.TicketSize,
				IssuedAt:                  r.IssuedAt,
				ExpirationDate:            r.ExpirationDate,
				EpochID:                   r.EpochID,
				AggregatedWalletSignature: walletSig,
				CoinIndexSignatures:       coinIdx,
				ExpirationSignatures:      expirationSigs,
			}
			out = append(out, AvailableTicketbook{
				Ticketbook: tb,
				Remaining:  tb.RemainingTickets(),
				Expired:    tb.Expired(now),
			})
			return nil
		})
	})
	return out, err
}

// LowTicketThreshold is the remaining-bytes floor below which a ticket type
// is reported as running low (spec §4.K: "an implementation-defined
// threshold"), fixed here at 50 MiB of remaining bandwidth.
const LowTicketThreshold = 50 * 1024 * 1024 // 50 MiB

// CheckTicketTypesRunningLow returns exactly the ticket types whose
// remaining non-expired bytes fall below LowTicketThreshold (spec §4.K).
func (s *Store) CheckTicketTypesRunningLow(now time.Time) ([]TicketType, error) {
	available, err := s.AvailableTicketbooks(now)
	if err != nil {
		return nil, err
	}

	var low []TicketType
	for _, typ := range AllTicketTypes {
		if available.RemainingData(typ) < LowTicketThreshold {
			low = append(low, typ)
		}
	}
	return low, nil
}

// Reset empties every bucket, used by ForgetAccount (spec §4.L) to discard
// all locally held tickets on account removal.
func (s *Store) Reset() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketTicketbooks, bucketEpochKeys, bucketCoinIndexSigs, bucketExpirationSigs} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

