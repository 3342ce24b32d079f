package mongo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/session"
)

// fakeStore is the committed state shared by every fakeBackend.
type fakeStore struct {
	mu   sync.Mutex
	docs map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]string{}}
}

func (st *fakeStore) committed(id string) (string, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	v, ok := st.docs[id]
	return v, ok
}

// fakeBackend stands in for one driver session: writes made while a
// transaction runs are staged and only reach the store on commit.
//
// Like the driver, a commit that fails for any reason but a timeout leaves
// the session in the committed state: the transaction no longer runs, a
// commit may be retried and an abort fails with ErrAbortAfterCommit.
type fakeBackend struct {
	store       *fakeStore
	lsid        uuid.UUID
	running     bool
	afterCommit bool
	aborted     bool // set by a failed write, as the server does
	staged      map[string]string
	ended       bool
	calls       []string
	started     []*options.TransactionOptions

	startErr  error
	commitErr error
	abortErr  error
}

type fakeKey struct{}

func newFakeBackend(store *fakeStore) *fakeBackend {
	return &fakeBackend{store: store, lsid: uuid.New()}
}

func (b *fakeBackend) StartTransaction(opts ...*options.TransactionOptions) error {
	b.calls = append(b.calls, "start")
	if b.startErr != nil {
		return b.startErr
	}
	if b.running {
		return session.ErrTransactInProgress
	}
	b.running, b.afterCommit, b.aborted = true, false, false
	b.staged = map[string]string{}
	b.started = append(b.started, options.MergeTransactionOptions(opts...))
	return nil
}

func (b *fakeBackend) CommitTransaction(context.Context) error {
	b.calls = append(b.calls, "commit")
	if !b.running && !b.afterCommit {
		return session.ErrNoTransactStarted
	}
	if b.commitErr != nil {
		if !errors.Is(b.commitErr, context.DeadlineExceeded) {
			b.running, b.afterCommit = false, true
		}
		return b.commitErr
	}
	b.store.mu.Lock()
	for k, v := range b.staged {
		b.store.docs[k] = v
	}
	b.store.mu.Unlock()
	b.running, b.afterCommit, b.staged = false, true, nil
	return nil
}

func (b *fakeBackend) AbortTransaction(context.Context) error {
	b.calls = append(b.calls, "abort")
	if b.abortErr != nil {
		return b.abortErr
	}
	if b.afterCommit {
		return session.ErrAbortAfterCommit
	}
	if !b.running {
		return session.ErrNoTransactStarted
	}
	b.running, b.staged = false, nil
	return nil
}

func (b *fakeBackend) EndSession(context.Context) {
	b.calls = append(b.calls, "end")
	b.running, b.staged, b.ended = false, nil, true
}

func (b *fakeBackend) ID() bson.Raw {
	raw, err := bson.Marshal(bson.M{"id": primitive.Binary{Subtype: 4, Data: b.lsid[:]}})
	if err != nil {
		panic(err)
	}
	return raw
}

func (b *fakeBackend) Bind(ctx context.Context) context.Context {
	return context.WithValue(ctx, fakeKey{}, b)
}

// get reads the way the session would: its own staged writes first.
func (b *fakeBackend) get(id string) (string, bool) {
	if b.running {
		if v, ok := b.staged[id]; ok {
			return v, true
		}
	}
	return b.store.committed(id)
}

func (b *fakeBackend) count() int {
	b.store.mu.Lock()
	n := len(b.store.docs)
	b.store.mu.Unlock()
	if b.running {
		for k := range b.staged {
			if _, ok := b.store.committed(k); !ok {
				n++
			}
		}
	}
	return n
}

func (b *fakeBackend) insert(id, val string) error {
	if _, ok := b.get(id); ok {
		if b.running {
			b.aborted = true
		}
		return mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}}}
	}
	if b.running {
		b.staged[id] = val
		return nil
	}
	b.store.mu.Lock()
	b.store.docs[id] = val
	b.store.mu.Unlock()
	return nil
}

// fakeInsert inserts into whichever fakeBackend the context is bound to.
type fakeInsert struct {
	id, val string
}

func (w fakeInsert) Collection() string { return "doc" }

func (w fakeInsert) Execute(ctx context.Context, _ *mongo.Database) (int64, error) {
	b, ok := ctx.Value(fakeKey{}).(*fakeBackend)
	if !ok {
		return 0, ErrNoActiveTransaction
	}
	if err := b.insert(w.id, w.val); err != nil {
		return 0, err
	}
	return 1, nil
}

// noSuchTransaction is how the server rejects a commit it did not apply.
func noSuchTransaction() error {
	return mongo.CommandError{
		Code:    251,
		Name:    "NoSuchTransaction",
		Message: "Transaction 1 has been aborted.",
		Labels:  []string{"TransientTransactionError"},
	}
}

// unknownCommitResult is a commit failure that may or may not have been applied.
func unknownCommitResult() error {
	return mongo.CommandError{
		Code:    91,
		Name:    "ShutdownInProgress",
		Message: "connection reset during commit",
		Labels:  []string{labelUnknownCommitResult, "RetryableWriteError"},
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) ObserveEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func newTestSession(t *testing.T, store *fakeStore, opts ...SessionOption) (*Session, *fakeBackend, *recorder) {
	t.Helper()
	b := newFakeBackend(store)
	rec := &recorder{}
	s := newSession(context.Background(), b, nil, NopLogger(), []Observer{rec}, opts...)
	require.Equal(t, b.lsid.String(), s.ID())
	return s, b, rec
}
