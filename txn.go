// Package mongo provides transaction management for MongoDB operations.
package mongo

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// TxnState is the state of one transaction context.
// Committed and RolledBack are terminal.
type TxnState int

const (
	TxnNone TxnState = iota
	TxnActive
	TxnCommitted
	TxnRolledBack
)

func (s TxnState) String() string {
	switch s {
	case TxnNone:
		return "none"
	case TxnActive:
		return "active"
	case TxnCommitted:
		return "committed"
	case TxnRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// TxnOptions are captured when a transaction starts. Empty fields inherit
// the session defaults, and then the client's.
type TxnOptions struct {
	// ReadConcern level: local, majority, snapshot, ...
	ReadConcern string
	// WriteConcern is "majority", a node count such as "1", or a tag set name.
	WriteConcern  string
	MaxCommitTime time.Duration
}

// merge returns o with every non-empty field of over applied on top.
func (o TxnOptions) merge(over TxnOptions) TxnOptions {
	if over.ReadConcern != "" {
		o.ReadConcern = over.ReadConcern
	}
	if over.WriteConcern != "" {
		o.WriteConcern = over.WriteConcern
	}
	if over.MaxCommitTime > 0 {
		o.MaxCommitTime = over.MaxCommitTime
	}
	return o
}

func (o TxnOptions) driver() *options.TransactionOptions {
	opt := options.Transaction()
	if o.ReadConcern != "" {
		opt.SetReadConcern(readconcern.New(readconcern.Level(o.ReadConcern)))
	}
	if wc := strings.TrimSpace(o.WriteConcern); wc != "" {
		switch n, err := strconv.Atoi(wc); {
		case wc == "majority":
			opt.SetWriteConcern(writeconcern.New(writeconcern.WMajority()))
		case err == nil:
			opt.SetWriteConcern(writeconcern.New(writeconcern.W(n)))
		default:
			opt.SetWriteConcern(writeconcern.New(writeconcern.WTagSet(wc)))
		}
	}
	if o.MaxCommitTime > 0 {
		opt.SetMaxCommitTime(Pointer(o.MaxCommitTime))
	}
	return opt
}

// Txn is a transaction context. It belongs to exactly one Session and is
// only usable while that session is alive.
type Txn struct {
	ctx      context.Context
	session  *Session
	id       string
	opts     TxnOptions
	implicit bool
	state    TxnState

	// commitErr is the driver error of the last failed commit attempt.
	commitErr error
}

func (txn *Txn) ID() string          { return txn.id }
func (txn *Txn) Options() TxnOptions { return txn.opts }

// Implicit reports whether the transaction was opened by Flush rather than by the caller.
func (txn *Txn) Implicit() bool { return txn.implicit }

func (txn *Txn) State() TxnState {
	txn.session.mu.Lock()
	defer txn.session.mu.Unlock()
	return txn.state
}

// Context is bound to the owning session. Operations run with it take part in the transaction.
func (txn *Txn) Context() context.Context {
	return txn.ctx
}

func (txn *Txn) Model(model any) *Model {
	return NewModel(txn.ctx, txn.session, model)
}

func (txn *Txn) Commit(ctx context.Context) error {
	return txn.session.commit(ctx, txn)
}

func (txn *Txn) Rollback(ctx context.Context) error {
	return txn.session.rollback(ctx, txn)
}

// Dispose aborts an active transaction and reports ErrUnterminatedTransaction.
// It is a no-op once the transaction was committed or rolled back.
func (txn *Txn) Dispose(ctx context.Context) error {
	return txn.session.disposeTxn(ctx, txn)
}
