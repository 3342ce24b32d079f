package mongo

import "context"

// Future holds the outcome of an operation started by one of the *Async
// methods. The operation is the synchronous one run on another goroutine,
// so both conventions share the same state machine.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func goFuture[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn()
	}()
	return f
}

func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the operation finishes or ctx is done. Giving up on ctx
// does not stop the operation; cancel the context passed to it for that.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (s *Session) BeginTransactionAsync(ctx context.Context, opts ...TxnOptions) *Future[*Txn] {
	return goFuture(func() (*Txn, error) { return s.BeginTransaction(ctx, opts...) })
}

func (s *Session) CommitAsync(ctx context.Context) *Future[struct{}] {
	return goFuture(func() (struct{}, error) { return struct{}{}, s.Commit(ctx) })
}

func (s *Session) RollbackAsync(ctx context.Context) *Future[struct{}] {
	return goFuture(func() (struct{}, error) { return struct{}{}, s.Rollback(ctx) })
}

func (s *Session) FlushAsync(ctx context.Context, writes []WriteOperation) *Future[int64] {
	return goFuture(func() (int64, error) { return s.Flush(ctx, writes) })
}

func (s *Session) DisposeAsync(ctx context.Context) *Future[struct{}] {
	return goFuture(func() (struct{}, error) { return struct{}{}, s.Dispose(ctx) })
}

func (txn *Txn) CommitAsync(ctx context.Context) *Future[struct{}] {
	return goFuture(func() (struct{}, error) { return struct{}{}, txn.Commit(ctx) })
}

func (txn *Txn) RollbackAsync(ctx context.Context) *Future[struct{}] {
	return goFuture(func() (struct{}, error) { return struct{}{}, txn.Rollback(ctx) })
}

func (u *UnitOfWork) SaveChangesAsync(ctx context.Context, autoDetectChanges bool) *Future[int64] {
	return goFuture(func() (int64, error) { return u.SaveChanges(ctx, autoDetectChanges) })
}

func (t *Database) ProvisionSchemaAsync(ctx context.Context, s Schema) *Future[bool] {
	return goFuture(func() (bool, error) { return t.ProvisionSchema(ctx, s) })
}

func (t *Database) DatabaseExistsAsync(ctx context.Context) *Future[bool] {
	return goFuture(func() (bool, error) { return t.DatabaseExists(ctx) })
}

func (t *Database) DeleteDatabaseAsync(ctx context.Context) *Future[struct{}] {
	return goFuture(func() (struct{}, error) { return struct{}{}, t.DeleteDatabase(ctx) })
}
