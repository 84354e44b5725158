// Package credentials implements ticketbook storage (spec §4.K): the
// persistent record of ecash-issued bandwidth tickets a device has
// acquired, and the derived view the account controller consults to decide
// when a ticket type is running low.
package credentials

import "time"

// TicketType is one of the four bandwidth ticket kinds a ticketbook is
// issued for (spec §3 Ticketbook).
type TicketType int

const (
	TicketMixnetEntry TicketType = iota
	TicketMixnetExit
	TicketWireguardEntry
	TicketWireguardExit
)

func (t TicketType) String() string {
	switch t {
	case TicketMixnetEntry:
		return "mixnet-entry"
	case TicketMixnetExit:
		return "mixnet-exit"
	case TicketWireguardEntry:
		return "wireguard-entry"
	case TicketWireguardExit:
		return "wireguard-exit"
	default:
		return "unknown"
	}
}

// AllTicketTypes enumerates the four ticket kinds in a fixed order, mirroring
// the account controller's per-type withdrawal loop (spec §4.L step 2).
var AllTicketTypes = [4]TicketType{TicketMixnetEntry, TicketMixnetExit, TicketWireguardEntry, TicketWireguardExit}

// Ticketbook is one ecash issuance: a batch of unlinkable bandwidth tickets
// plus the material needed to redeem them (spec §3 Ticketbook).
type Ticketbook struct {
	ID                       int64
	Type                     TicketType
	TotalTickets             uint32
	UsedTickets              uint32
	TicketSize               uint64
	IssuedAt                 time.Time
	ExpirationDate           time.Time
	EpochID                  uint64
	AggregatedWalletSignature []byte
	CoinIndexSignatures      []byte
	ExpirationSignatures     []byte
}

// Expired reports whether tb's expiration date has passed as of now (spec
// §3: "expired iff expirationDate <= today").
func (tb Ticketbook) Expired(now time.Time) bool {
	return !tb.ExpirationDate.After(now)
}

// RemainingTickets is totalTickets - usedTickets; the invariant
// usedTickets <= totalTickets means this never underflows in valid data.
func (tb Ticketbook) RemainingTickets() uint32 {
	if tb.UsedTickets >= tb.TotalTickets {
		return 0
	}
	return tb.TotalTickets - tb.UsedTickets
}

// RemainingBytes is the remaining ticket count times the per-ticket
// bandwidth size (spec §3: "remaining bytes = (totalTickets-usedTickets)
// * ticketSize").
func (tb Ticketbook) RemainingBytes() uint64 {
	return uint64(tb.RemainingTickets()) * tb.TicketSize
}

// EpochVerificationKey is the ecash issuers' aggregated master verification
// key for one epoch (spec §3 Epoch verification key); unique per EpochID.
type EpochVerificationKey struct {
	EpochID               uint64
	MasterVerificationKey []byte
}

// AvailableTicketbook is an enriched read-only view of one stored
// ticketbook, exposing the derived fields callers want without recomputing
// them (spec §4.K: "enriched with derived fields (remaining, size)").
type AvailableTicketbook struct {
	Ticketbook
	Remaining uint32
	Expired   bool
}

// AvailableTicketbooks is the full set returned by Store.AvailableTicketbooks,
// with type-scoped aggregate queries (spec §4.K).
type AvailableTicketbooks []AvailableTicketbook

// RemainingTickets sums RemainingTickets over every non-expired ticketbook
// of typ (spec §4.K: "computed by summing over non-expired ticketbooks of
// that type").
func (a AvailableTicketbooks) RemainingTickets(typ TicketType) uint64 {
	var total uint64
	for _, tb := range a {
		if tb.Type == typ && !tb.Expired {
			total += uint64(tb.Remaining)
		}
	}
	return total
}

// RemainingData sums RemainingBytes over every non-expired ticketbook of
// typ.
func (a AvailableTicketbooks) RemainingData(typ TicketType) uint64 {
	var total uint64
	for _, tb := range a {
		if tb.Type == typ && !tb.Expired {
			total += tb.RemainingBytes()
		}
	}
	return total
}
