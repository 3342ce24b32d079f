package mongo

import (
	"context"

	"github.com/pkg/errors"
)

// ChangeDetector returns the writes needed to persist changes made to tracked entities.
type ChangeDetector func(ctx context.Context) ([]WriteOperation, error)

// UnitOfWork collects writes and saves them through its own session.
type UnitOfWork struct {
	session *Session
	detect  ChangeDetector
	pending []WriteOperation
}

// NewUnitOfWork opens a session for the unit of work. detect may be nil.
func NewUnitOfWork(ctx context.Context, db *Database, detect ChangeDetector, opts ...SessionOption) (*UnitOfWork, error) {
	s, err := db.NewSession(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return newUnitOfWork(s, detect), nil
}

func newUnitOfWork(s *Session, detect ChangeDetector) *UnitOfWork {
	return &UnitOfWork{session: s, detect: detect}
}

func (u *UnitOfWork) Session() *Session { return u.session }

func (u *UnitOfWork) Add(ops ...WriteOperation) {
	u.pending = append(u.pending, ops...)
}

func (u *UnitOfWork) Pending() int { return len(u.pending) }

func (u *UnitOfWork) AutoTransactions() AutoTransactionPolicy {
	return u.session.AutoTransactions()
}

func (u *UnitOfWork) SetAutoTransactions(p AutoTransactionPolicy) {
	u.session.SetAutoTransactions(p)
}

func (u *UnitOfWork) BeginTransaction(ctx context.Context, opts ...TxnOptions) (*Txn, error) {
	return u.session.BeginTransaction(ctx, opts...)
}

// SaveChanges flushes the pending writes followed by the detected ones when
// autoDetectChanges is set. Pending writes are cleared on success. On failure
// the ones already committed outside a transaction, which only happens under
// AutoTransactionsNever, are dropped and the rest stay pending.
func (u *UnitOfWork) SaveChanges(ctx context.Context, autoDetectChanges bool) (int64, error) {
	batch := u.pending
	if autoDetectChanges && u.detect != nil {
		ops, err := u.detect(ctx)
		if err != nil {
			return 0, errors.Wrap(err, "detect changes")
		}
		batch = append(append([]WriteOperation{}, u.pending...), ops...)
	}

	n, committed, err := u.session.flush(ctx, batch)
	if err != nil {
		u.pending = u.pending[min(committed, len(u.pending)):]
		return n, err
	}
	u.pending = nil
	return n, nil
}

// Dispose releases the session; see Session.Dispose.
func (u *UnitOfWork) Dispose(ctx context.Context) error {
	u.pending = nil
	return u.session.Dispose(ctx)
}
