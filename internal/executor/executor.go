// Package executor drives batch transfer records through submission and
// confirmation against the ledger, persisting every externally observable
// event through the store before reporting it. Runs are re-entrant: invoking
// Run any number of times converges on the same terminal state set and never
// resubmits a confirmed record.
package executor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/solbeam/solbeam/internal/batch"
	"github.com/solbeam/solbeam/internal/ledger"
	"github.com/solbeam/solbeam/internal/store"
)

// nodeBehindPause is how long to pause after an RPC node reports it is behind.
// Submitting again immediately would keep failing for at least that long.
const nodeBehindPause = time.Second

// Options controls a single Run invocation.
type Options struct {
	// SkipConfirm leaves submitted records unresolved in this pass. The run
	// finishes faster but the operator must invoke confirm later.
	SkipConfirm bool
}

// Config holds executor tunables, typically sourced from the config file.
type Config struct {
	// Workers bounds how many records are processed concurrently.
	Workers int

	// ConfirmTimeout bounds the total confirmation wait per record. On
	// timeout the record stays submitted so a later confirm can resume.
	ConfirmTimeout time.Duration

	// ConfirmPoll is the base delay between status polls for one record.
	// The delay grows linearly with consecutive pending polls.
	ConfirmPoll time.Duration
}

// Executor runs the bulk transfer state machine for one batch at a time.
type Executor struct {
	store  *store.Store
	client ledger.Client
	cfg    Config
	logger zerolog.Logger
}

// New builds an Executor. Zero-valued config fields get safe defaults.
func New(st *store.Store, client ledger.Client, cfg Config, logger zerolog.Logger) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	if cfg.ConfirmPoll <= 0 {
		cfg.ConfirmPoll = time.Second
	}
	return &Executor{store: st, client: client, cfg: cfg, logger: logger}
}

// PlanRow is one line of a dry-run projection.
type PlanRow struct {
	Index     int
	Recipient string
	Amount    string
	State     batch.State
	Action    string
}

// DryRun projects what a run would do without touching the ledger or the
// store. It is a pure read over the store snapshot.
func (e *Executor) DryRun(id store.Identity) ([]PlanRow, error) {
	records, err := e.store.Snapshot(id)
	if err != nil {
		return nil, err
	}

	rows := make([]PlanRow, 0, len(records))
	for i := range records {
		rec := &records[i]
		action := "none"
		switch rec.State {
		case batch.StatePending, batch.StateFailed:
			action = "submit"
		case batch.StateSubmitted:
			action = "confirm"
		case batch.StateConfirmed:
		}
		rows = append(rows, PlanRow{
			Index:     rec.Index,
			Recipient: rec.Request.Recipient,
			Amount:    rec.Request.Amount.String(),
			State:     rec.State,
			Action:    action,
		})
	}
	return rows, nil
}

// Run drives every record not yet confirmed toward the confirmed state:
// pending and failed records are submitted and then, unless opts.SkipConfirm
// is set, each submission is waited on until the ledger finalizes or drops
// it. Per-record failures are absorbed into the
// record state; only structural errors (missing batch, lock contention)
// abort the invocation. Cancellation stops new records at record boundaries
// while letting in-flight ledger calls complete.
func (e *Executor) Run(ctx context.Context, id store.Identity, opts Options) (*Report, error) {
	release, err := e.store.AcquireRun(id)
	if err != nil {
		return nil, err
	}
	defer release()

	b, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With().Str("batch", b.ID).Logger()
	counts := b.CountByState()
	logger.Info().
		Int("total", len(b.Records)).
		Int("pending", counts[batch.StatePending]+counts[batch.StateFailed]).
		Int("submitted", counts[batch.StateSubmitted]).
		Int("confirmed", counts[batch.StateConfirmed]).
		Msg("starting bulk transfer run")

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Workers)

	for i := range b.Records {
		rec := b.Records[i]
		if rec.Terminal() {
			continue
		}
		// No new record begins after cancellation; workers already running
		// finish their in-flight ledger call.
		if groupCtx.Err() != nil {
			break
		}

		group.Go(func() error {
			e.processRecord(groupCtx, id, rec, opts, logger)
			return nil
		})
	}

	if waitErr := group.Wait(); waitErr != nil {
		return nil, waitErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Warn().Msg("run interrupted, progress persisted")
	}

	return e.buildReport(id)
}

// processRecord drives one record a single step forward. Errors are absorbed
// into the record's persisted state.
func (e *Executor) processRecord(
	ctx context.Context,
	id store.Identity,
	rec batch.TransferRecord,
	opts Options,
	logger zerolog.Logger,
) {
	if claimErr := e.store.Claim(id, rec.Index); claimErr != nil {
		// Another worker holds the record; skip rather than fail the batch.
		logger.Debug().Int("record", rec.Index).Msg("record already claimed, skipping")
		return
	}
	defer e.store.Release(id, rec.Index)

	switch rec.State {
	case batch.StatePending, batch.StateFailed:
		handle, ok := e.submitRecord(ctx, id, rec, logger)
		if ok && !opts.SkipConfirm {
			rec.Handle = handle
			e.confirmRecord(ctx, id, rec, logger)
		}
	case batch.StateSubmitted:
		if !opts.SkipConfirm {
			e.confirmRecord(ctx, id, rec, logger)
		}
	case batch.StateConfirmed:
	}
}

// submitRecord submits one transfer and persists the outcome, returning the
// transaction handle when the record reached the submitted state. The handle
// is durable before the submission is reported as successful, so a crash
// right after submission resumes through confirmation instead of
// resubmitting.
func (e *Executor) submitRecord(
	ctx context.Context,
	id store.Identity,
	rec batch.TransferRecord,
	logger zerolog.Logger,
) (string, bool) {
	handle, err := e.client.SubmitTransfer(ctx, rec.Request.Recipient, rec.Request.Amount)
	if err != nil {
		logger.Error().
			Int("record", rec.Index).
			Str("recipient", rec.Request.Recipient).
			Err(err).
			Msg("transfer submission failed")

		if updateErr := e.store.Update(id, rec.Index, func(r *batch.TransferRecord) {
			r.State = batch.StateFailed
			r.LastError = err.Error()
			r.Attempts++
		}); updateErr != nil {
			logger.Error().Int("record", rec.Index).Err(updateErr).Msg("persisting failure state failed")
		}

		// An RPC node that is behind keeps failing for a while; pausing
		// briefly beats hammering it.
		if strings.Contains(err.Error(), "Node is behind by") {
			select {
			case <-time.After(nodeBehindPause):
			case <-ctx.Done():
			}
		}
		return "", false
	}

	if updateErr := e.store.Update(id, rec.Index, func(r *batch.TransferRecord) {
		r.State = batch.StateSubmitted
		r.Handle = handle
		r.LastError = ""
		r.Attempts++
	}); updateErr != nil {
		logger.Error().Int("record", rec.Index).Err(updateErr).Msg("persisting submitted state failed")
		return "", false
	}

	logger.Info().
		Int("record", rec.Index).
		Str("recipient", rec.Request.Recipient).
		Str("amount", rec.Request.Amount.String()).
		Str("signature", handle).
		Msg("transfer submitted")
	return handle, true
}

// confirmRecord polls the ledger until the record's transaction finalizes,
// is reported dropped, or the per-record confirmation window elapses. On
// timeout the record stays submitted; a later confirm resumes the wait
// without assuming failure.
func (e *Executor) confirmRecord(
	ctx context.Context,
	id store.Identity,
	rec batch.TransferRecord,
	logger zerolog.Logger,
) {
	deadline := time.Now().Add(e.cfg.ConfirmTimeout)

	for attempt := 1; ; attempt++ {
		status, err := e.client.GetStatus(ctx, rec.Handle)
		if err != nil {
			logger.Warn().
				Int("record", rec.Index).
				Str("signature", rec.Handle).
				Err(err).
				Msg("status poll failed, leaving record submitted")
			return
		}

		switch status {
		case ledger.StatusFinalized:
			if updateErr := e.store.Update(id, rec.Index, func(r *batch.TransferRecord) {
				r.State = batch.StateConfirmed
				r.LastError = ""
			}); updateErr != nil {
				logger.Error().Int("record", rec.Index).Err(updateErr).Msg("persisting confirmed state failed")
				return
			}
			logger.Info().
				Int("record", rec.Index).
				Str("signature", rec.Handle).
				Msg("transfer confirmed")
			return

		case ledger.StatusDropped:
			// The ledger gave up on this transaction. Marking it failed
			// lets a later run resubmit; the rare double fee is accepted
			// over silently abandoning a recipient.
			if updateErr := e.store.Update(id, rec.Index, func(r *batch.TransferRecord) {
				r.State = batch.StateFailed
				r.LastError = "not finalized"
			}); updateErr != nil {
				logger.Error().Int("record", rec.Index).Err(updateErr).Msg("persisting failed state failed")
				return
			}
			logger.Warn().
				Int("record", rec.Index).
				Str("signature", rec.Handle).
				Msg("transaction dropped, eligible for resubmission")
			return

		case ledger.StatusPending:
		}

		// Linear backoff between polls, bounded by the per-record window.
		wait := time.Duration(attempt) * e.cfg.ConfirmPoll
		if time.Now().Add(wait).After(deadline) {
			logger.Debug().
				Int("record", rec.Index).
				Str("signature", rec.Handle).
				Msg("confirmation window elapsed, record stays submitted")
			return
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// Confirm polls every submitted record and applies the same transition rule
// as the run confirmation path. Confirming an already confirmed record is a
// no-op, so the operation is safe to repeat.
func (e *Executor) Confirm(ctx context.Context, id store.Identity) (*Report, error) {
	release, err := e.store.AcquireRun(id)
	if err != nil {
		return nil, err
	}
	defer release()

	b, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With().Str("batch", b.ID).Logger()
	submitted := b.CountByState()[batch.StateSubmitted]
	logger.Info().
		Int("total", len(b.Records)).
		Int("unconfirmed", submitted).
		Msg("confirming submitted transfers")

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Workers)

	for i := range b.Records {
		rec := b.Records[i]
		if rec.State != batch.StateSubmitted {
			continue
		}
		if groupCtx.Err() != nil {
			break
		}

		group.Go(func() error {
			if claimErr := e.store.Claim(id, rec.Index); claimErr != nil {
				return nil
			}
			defer e.store.Release(id, rec.Index)
			e.confirmRecord(groupCtx, id, rec, logger)
			return nil
		})
	}

	if waitErr := group.Wait(); waitErr != nil {
		return nil, waitErr
	}
	return e.buildReport(id)
}

// buildReport reads the final record states and aggregates them in original
// batch order.
func (e *Executor) buildReport(id store.Identity) (*Report, error) {
	records, err := e.store.Snapshot(id)
	if err != nil {
		return nil, err
	}
	return NewReport(records), nil
}

// IsStructural reports whether err should abort the invocation rather than
// be absorbed into a record.
func IsStructural(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrAlreadyExists) ||
		errors.Is(err, store.ErrCorrupted) ||
		errors.Is(err, store.ErrConcurrentAccess)
}
