package mongo

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/session"
	"go.uber.org/atomic"
)

const labelUnknownCommitResult = "UnknownTransactionCommitResult"

// sessionBackend is the part of a driver session the transaction manager drives.
type sessionBackend interface {
	StartTransaction(opts ...*options.TransactionOptions) error
	CommitTransaction(ctx context.Context) error
	AbortTransaction(ctx context.Context) error
	EndSession(ctx context.Context)
	ID() bson.Raw
	// Bind returns a context whose operations run on this session.
	Bind(ctx context.Context) context.Context
}

type driverSession struct {
	mongo.Session
}

func (d driverSession) Bind(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, d.Session)
}

// Session is a caller-owned handle on one driver session. It owns at most
// one active transaction at a time and is meant for a single caller; the
// *Async methods exist so that caller can run it on another goroutine.
//
// Observers are called while the session is locked and must not call back into it.
type Session struct {
	mu        sync.Mutex
	backend   sessionBackend
	db        *mongo.Database
	lsid      string
	txn       *Txn
	defaults  TxnOptions
	policy    atomic.Int32
	detector  AmbientDetector
	ambient   bool
	disposed  atomic.Bool
	seq       atomic.Int64
	log       Logger
	observers []Observer
}

type SessionOption func(s *Session)

// WithPolicy sets the auto transaction policy the session starts with.
func WithPolicy(p AutoTransactionPolicy) SessionOption {
	return func(s *Session) { s.policy.Store(int32(p)) }
}

// WithTxnOptions sets the defaults applied to every transaction of the session.
func WithTxnOptions(o TxnOptions) SessionOption {
	return func(s *Session) { s.defaults = s.defaults.merge(o) }
}

func WithAmbientDetector(d AmbientDetector) SessionOption {
	return func(s *Session) {
		if d != nil {
			s.detector = d
		}
	}
}

func newSession(ctx context.Context, backend sessionBackend, db *mongo.Database, log Logger, observers []Observer, opts ...SessionOption) *Session {
	if log == nil {
		log = NopLogger()
	}
	s := &Session{
		backend:   backend,
		db:        db,
		lsid:      sessionID(backend.ID()),
		detector:  DefaultAmbientDetector,
		log:       log,
		observers: observers,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ambient = s.detector(ctx)
	return s
}

// sessionID formats the driver's logical session id, {id: UUID}.
func sessionID(raw bson.Raw) string {
	if len(raw) == 0 {
		return uuid.NewString()
	}
	val, err := raw.LookupErr("id")
	if err != nil {
		return uuid.NewString()
	}
	_, data, ok := val.BinaryOK()
	if !ok {
		return uuid.NewString()
	}
	id, err := uuid.FromBytes(data)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Session) ID() string { return s.lsid }

func (s *Session) AutoTransactions() AutoTransactionPolicy {
	return AutoTransactionPolicy(s.policy.Load())
}

// SetAutoTransactions changes the policy used by the next Flush.
func (s *Session) SetAutoTransactions(p AutoTransactionPolicy) {
	s.policy.Store(int32(p))
}

// DetectAmbientTransaction reports whether ctx, or the context the session
// was opened with, runs inside an externally managed transaction.
func (s *Session) DetectAmbientTransaction(ctx context.Context) bool {
	return s.ambient || s.detector(ctx)
}

// Context returns ctx bound to the session. Reads made with it observe the
// session's own uncommitted writes.
func (s *Session) Context(ctx context.Context) context.Context {
	return s.backend.Bind(ctx)
}

func (s *Session) Model(ctx context.Context, model any) *Model {
	return NewModel(s.Context(ctx), s, model)
}

// Transaction returns the most recent transaction of the session, or nil.
func (s *Session) Transaction() *Txn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txn
}

func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked() != nil
}

func (s *Session) activeLocked() *Txn {
	if s.txn != nil && s.txn.state == TxnActive {
		return s.txn
	}
	return nil
}

// BeginTransaction starts an explicit transaction. It fails with
// ErrAlreadyInTransaction while another one is active, and with
// ErrAmbientTransaction when the caller already runs inside an external
// transaction. Neither failure changes the session.
func (s *Session) BeginTransaction(ctx context.Context, opts ...TxnOptions) (*Txn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begin(ctx, false, opts...)
}

func (s *Session) begin(ctx context.Context, implicit bool, opts ...TxnOptions) (*Txn, error) {
	if s.disposed.Load() {
		return nil, ErrSessionDisposed
	}
	if t := s.activeLocked(); t != nil {
		return nil, errors.Wrapf(ErrAlreadyInTransaction, "transaction %s", t.id)
	}
	if s.DetectAmbientTransaction(ctx) {
		return nil, errors.Wrapf(ErrAmbientTransaction, "session %s", s.lsid)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}

	o := s.defaults
	for _, v := range opts {
		o = o.merge(v)
	}
	t := &Txn{
		session:  s,
		id:       fmt.Sprintf("%s:%d", s.lsid, s.seq.Inc()),
		opts:     o,
		implicit: implicit,
	}

	s.emit(EventTxnStarting, t, nil)
	if err := s.backend.StartTransaction(o.driver()); err != nil {
		err = errors.Wrapf(err, "start transaction %s", t.id)
		s.emit(EventTxnStarted, t, err)
		return nil, err
	}
	t.ctx = s.backend.Bind(ctx)
	t.state = TxnActive
	s.txn = t
	s.emit(EventTxnStarted, t, nil)
	return t, nil
}

// Commit commits the active transaction of the session.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn == nil {
		return ErrNoActiveTransaction
	}
	return s.commitLocked(ctx, s.txn)
}

// Rollback aborts the active transaction of the session.
func (s *Session) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn == nil {
		return ErrNoActiveTransaction
	}
	return s.rollbackLocked(ctx, s.txn)
}

func (s *Session) commit(ctx context.Context, t *Txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, t)
}

func (s *Session) rollback(ctx context.Context, t *Txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbackLocked(ctx, t)
}

// commitLocked leaves t active when the commit fails, cancellation included,
// so the caller can retry or roll back.
func (s *Session) commitLocked(ctx context.Context, t *Txn) error {
	if s.disposed.Load() {
		return ErrSessionDisposed
	}
	if t.state != TxnActive {
		return errors.Wrapf(ErrNoActiveTransaction, "commit %s: transaction is %s", t.id, t.state)
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "commit transaction %s", t.id)
	}

	s.emit(EventTxnCommitting, t, nil)
	if err := s.backend.CommitTransaction(ctx); err != nil {
		t.commitErr = err
		err = errors.Wrapf(err, "commit transaction %s", t.id)
		s.emit(EventTxnCommitted, t, err)
		return err
	}
	t.commitErr = nil
	t.state = TxnCommitted
	s.emit(EventTxnCommitted, t, nil)
	return nil
}

func (s *Session) rollbackLocked(ctx context.Context, t *Txn) error {
	if s.disposed.Load() {
		return ErrSessionDisposed
	}
	if t.state != TxnActive {
		return errors.Wrapf(ErrNoActiveTransaction, "rollback %s: transaction is %s", t.id, t.state)
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "rollback transaction %s", t.id)
	}
	return s.abortLocked(ctx, t, false)
}

// abortLocked aborts the active transaction t. With closing set, t ends
// RolledBack even when the abort fails.
//
// Once a commit attempt failed for any reason but a timeout, the driver
// refuses to abort. When the server reported that it did not commit, the
// transaction is over and counts as rolled back. Otherwise the outcome is
// unknown: ErrCommitOutcomeUnknown is returned and t is closed, so the session
// can start a new transaction.
func (s *Session) abortLocked(ctx context.Context, t *Txn, closing bool) error {
	s.emit(EventTxnRollingBack, t, nil)
	err := s.backend.AbortTransaction(ctx)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrAbortAfterCommit) && !commitOutcomeUnknown(t.commitErr):
		err = nil
	case errors.Is(err, session.ErrAbortAfterCommit):
		err = errors.Wrapf(ErrCommitOutcomeUnknown, "rollback transaction %s: commit failed with %v", t.id, t.commitErr)
		closing = true
	default:
		err = errors.Wrapf(err, "rollback transaction %s", t.id)
	}
	if err == nil || closing {
		t.state = TxnRolledBack
	}
	s.emit(EventTxnRolledBack, t, err)
	return err
}

// commitOutcomeUnknown reports whether a failed commit may still have been
// applied. Only a server error without the UnknownTransactionCommitResult
// label proves it was not.
func commitOutcomeUnknown(err error) bool {
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorLabel(labelUnknownCommitResult)
	}
	return true
}

// disposeTxn aborts t if it is still active and reports that as
// ErrUnterminatedTransaction. t is closed afterwards even if the abort failed.
func (s *Session) disposeTxn(ctx context.Context, t *Txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.state != TxnActive || s.disposed.Load() {
		return nil
	}

	if err := s.abortLocked(context.WithoutCancel(ctx), t, true); err != nil {
		return errors.Wrapf(ErrUnterminatedTransaction, "transaction %s (%v)", t.id, err)
	}
	return errors.Wrapf(ErrUnterminatedTransaction, "transaction %s", t.id)
}

// Dispose ends the driver session. A transaction still active at this point
// is aborted before the session ends and reported as ErrUnterminatedTransaction.
// Calling Dispose again is a no-op.
func (s *Session) Dispose(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.disposed.CompareAndSwap(false, true) {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	if t := s.activeLocked(); t != nil {
		abortErr := s.abortLocked(ctx, t, true)
		if abortErr != nil {
			s.log.Warn("abort on dispose failed, ending the session", "txn_id", t.id, "error", abortErr)
		}
		// Ending the session aborts whatever the server still holds for it.
		s.backend.EndSession(ctx)
		if abortErr != nil {
			return errors.Wrapf(ErrUnterminatedTransaction, "transaction %s (abort: %v)", t.id, abortErr)
		}
		return errors.Wrapf(ErrUnterminatedTransaction, "transaction %s", t.id)
	}
	s.backend.EndSession(ctx)
	return nil
}

// EnlistAmbient always fails: sessions cannot join externally managed transactions.
func (s *Session) EnlistAmbient(context.Context) error {
	return errors.Wrap(ErrNotSupported, "enlisting in an ambient transaction")
}

// Savepoint always fails: nested transactions are not available.
func (s *Session) Savepoint(name string) error {
	return errors.Wrapf(ErrNotSupported, "savepoint %q", name)
}
