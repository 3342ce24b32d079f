package mongo

import (
	"context"

	"github.com/pkg/errors"
)

// Flush issues writes in order and returns the number of affected documents.
//
// Inside an active explicit transaction the writes join it and nothing is
// committed; a failure leaves the transaction active for the caller to decide.
// Otherwise the session's AutoTransactionPolicy decides: a wrapped batch is
// committed as a whole or rolled back before the error is returned, an
// unwrapped batch stops at the first failure and keeps what was written before
// it, reporting that count alongside the error.
func (s *Session) Flush(ctx context.Context, writes []WriteOperation) (int64, error) {
	n, _, err := s.flush(ctx, writes)
	return n, err
}

// flush is Flush that also returns how many leading writes of the batch were
// committed on their own, outside any transaction.
func (s *Session) flush(ctx context.Context, writes []WriteOperation) (int64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed.Load() {
		return 0, 0, ErrSessionDisposed
	}
	if len(writes) == 0 {
		return 0, 0, nil
	}

	if t := s.activeLocked(); t != nil {
		n, _, err := s.execute(s.backend.Bind(ctx), writes)
		return n, 0, err
	}

	if !s.AutoTransactions().wraps(len(writes), false) {
		return s.execute(s.backend.Bind(ctx), writes)
	}

	t, err := s.begin(ctx, true)
	if err != nil {
		return 0, 0, err
	}

	n, _, err := s.execute(t.ctx, writes)
	if err != nil {
		if rbErr := s.abandon(ctx, t); rbErr != nil {
			return 0, 0, errors.Wrapf(err, "rollback also failed: %v", rbErr)
		}
		return 0, 0, err
	}
	if err := s.commitLocked(ctx, t); err != nil {
		rbErr := s.abandon(ctx, t)
		switch {
		case errors.Is(rbErr, ErrCommitOutcomeUnknown):
			return 0, 0, errors.Wrapf(ErrCommitOutcomeUnknown, "implicit transaction %s: %v", t.id, err)
		case rbErr != nil:
			return 0, 0, errors.Wrapf(err, "rollback also failed: %v", rbErr)
		}
		return 0, 0, err
	}
	return n, len(writes), nil
}

// abandon rolls back an implicit transaction after a failure. The transaction
// is closed even when the rollback fails; ending the session discards whatever
// the server still holds for it.
func (s *Session) abandon(ctx context.Context, t *Txn) error {
	err := s.abortLocked(context.WithoutCancel(ctx), t, true)
	if err != nil {
		s.log.Error("implicit transaction rollback failed", "txn_id", t.id, "error", err)
	}
	return err
}

// execute returns the affected count and how many writes succeeded before the first failure.
func (s *Session) execute(ctx context.Context, writes []WriteOperation) (int64, int, error) {
	var total int64
	for i, w := range writes {
		n, err := w.Execute(ctx, s.db)
		if err != nil {
			return total, i, errors.Wrapf(err, "write %d of %d on %s", i+1, len(writes), w.Collection())
		}
		total += n
	}
	return total, len(writes), nil
}
