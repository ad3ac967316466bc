// Package batch defines the bulk transfer data model: the immutable transfer
// requests parsed from an input file and the per-request lifecycle records the
// store persists and the executor drives.
package batch

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// State is the lifecycle state of a single transfer record.
type State string

const (
	// StatePending means the transfer has not been submitted yet.
	StatePending State = "pending"
	// StateSubmitted means a transaction was sent and holds a handle, but
	// finalization has not been observed.
	StateSubmitted State = "submitted"
	// StateConfirmed means the ledger finalized the transaction. Terminal.
	StateConfirmed State = "confirmed"
	// StateFailed means the last submission or confirmation attempt failed.
	// A later run may resubmit.
	StateFailed State = "failed"
)

// ErrInvalidTransition indicates a state change that violates the forward-only
// record lifecycle.
var ErrInvalidTransition = errors.New("invalid record state transition")

// validTransitions is the forward-only lifecycle: pending -> submitted ->
// confirmed, with failed reachable from a submission attempt that never got a
// handle or from a submitted transaction the ledger dropped, and retryable
// back to submitted. Confirmed is terminal.
//
//nolint:gochecknoglobals // Compile-time transition table.
var validTransitions = map[State][]State{
	StatePending:   {StateSubmitted, StateFailed},
	StateSubmitted: {StateConfirmed, StateFailed},
	StateFailed:    {StateSubmitted},
	StateConfirmed: {},
}

// ValidTransition reports whether a record may move from one state to another.
func ValidTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransferRequest is one immutable (recipient, amount) pair from the input
// file. Identity is positional: duplicate pairs remain distinct records.
type TransferRequest struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

// TransferRecord tracks one request through the transfer lifecycle. Records
// are owned by the store; the executor mutates them only through store
// updates.
type TransferRecord struct {
	Index   int             `json:"index"`
	Request TransferRequest `json:"request"`
	State   State           `json:"state"`

	// Handle is the opaque transaction handle, set on transition to
	// submitted and retained through confirmed and failed-after-submit.
	Handle string `json:"handle,omitempty"`

	// LastError is the most recent failure reason; meaningful only while
	// the record is failed.
	LastError string `json:"last_error,omitempty"`

	// Attempts counts submission calls made for this record.
	Attempts int `json:"attempts"`
}

// Terminal reports whether the record needs no further work.
func (r *TransferRecord) Terminal() bool {
	return r.State == StateConfirmed
}

// Validate checks the structural invariants a persisted record must satisfy.
func (r *TransferRecord) Validate() error {
	switch r.State {
	case StatePending:
		if r.Handle != "" {
			return fmt.Errorf("record %d: pending record has handle %q", r.Index, r.Handle)
		}
	case StateSubmitted, StateConfirmed:
		if r.Handle == "" {
			return fmt.Errorf("record %d: %s record missing handle", r.Index, r.State)
		}
	case StateFailed:
		if r.Attempts == 0 {
			return fmt.Errorf("record %d: failed record with zero attempts", r.Index)
		}
	default:
		return fmt.Errorf("record %d: unknown state %q", r.Index, r.State)
	}
	if r.Attempts < 0 {
		return fmt.Errorf("record %d: negative attempts", r.Index)
	}
	return nil
}

// Batch is the ordered set of transfer records derived from one input file.
type Batch struct {
	// ID is a ULID assigned when the batch is first persisted.
	ID string `json:"id,omitempty"`

	// Source identifies the input the batch was loaded from, typically the
	// base name of the CSV file. Together with the environment it names the
	// persisted record set.
	Source string `json:"source,omitempty"`

	Records []TransferRecord `json:"records"`
}

// Total returns the sum of all record amounts.
func (b *Batch) Total() decimal.Decimal {
	total := decimal.Zero
	for i := range b.Records {
		total = total.Add(b.Records[i].Request.Amount)
	}
	return total
}

// CountByState returns how many records are in each state.
func (b *Batch) CountByState() map[State]int {
	counts := make(map[State]int, 4)
	for i := range b.Records {
		counts[b.Records[i].State]++
	}
	return counts
}
