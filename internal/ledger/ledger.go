// Package ledger talks to the Solana JSON-RPC layer: submitting signed token
// transfers, polling signature status, and reading token balances. The
// executor only sees the Client interface, so tests substitute fakes and the
// transport stays swappable.
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Status is the ledger's view of a submitted transaction.
type Status int

const (
	// StatusPending means the transaction has not reached finalized
	// commitment yet (or is not visible to the queried node).
	StatusPending Status = iota
	// StatusFinalized means the cluster finalized the transaction.
	StatusFinalized
	// StatusDropped means the transaction landed but failed, or expired
	// without landing. The transfer did not take effect.
	StatusDropped
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFinalized:
		return "finalized"
	case StatusDropped:
		return "dropped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Client is the capability set the bulk transfer workflow consumes. The
// sender wallet and token mint are bound at construction, so callers deal
// only in recipients and amounts.
type Client interface {
	// SubmitTransfer builds, signs and submits one token transfer and
	// returns the transaction signature as an opaque handle.
	SubmitTransfer(ctx context.Context, recipient string, amount decimal.Decimal) (string, error)

	// GetStatus reports the current commitment status for a handle.
	GetStatus(ctx context.Context, handle string) (Status, error)

	// GetBalance returns the sender's token balance, or the balance of the
	// given address when non-empty.
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// SubmissionError wraps a failure to submit a transfer. It is transient from
// the workflow's perspective: the record is marked failed and a later run
// retries it.
type SubmissionError struct {
	Recipient string
	Err       error
}

// Error implements error.
func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submitting transfer to %s: %v", e.Recipient, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SubmissionError) Unwrap() error { return e.Err }

// RPCError wraps a transport or node-level JSON-RPC failure.
type RPCError struct {
	Method string
	Code   int
	Err    error
}

// Error implements error.
func (e *RPCError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("rpc %s failed (code %d): %v", e.Method, e.Code, e.Err)
	}
	return fmt.Sprintf("rpc %s failed: %v", e.Method, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RPCError) Unwrap() error { return e.Err }
